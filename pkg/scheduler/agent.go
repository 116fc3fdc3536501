package scheduler

import (
	"github.com/google/uuid"

	"github.com/plugincraft/forge/pkg/shared/types"
)

// Capabilities is the fixed task-type → required-capability-set map from
// spec.md §4.2. A task's type may be served by any agent holding at least
// one of these capabilities.
var Capabilities = map[types.TaskType][]string{
	types.TaskCreation:     {"prompt_refinement", "code_generation", "template_application"},
	types.TaskValidation:   {"code_validation", "syntax_checking", "best_practice_analysis"},
	types.TaskCompilation:  {"compilation", "error_resolution", "dependency_management"},
	types.TaskOptimization: {"quality_improvement", "performance_optimization"},
	types.TaskRepair:       {"error_diagnosis", "automated_fixing", "code_repair"},
}

// NewAgent constructs an available Agent with the given role and capability
// set, ready to register with a Scheduler.
func NewAgent(name string, role types.AgentRole, capabilities ...string) *types.Agent {
	caps := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}
	return &types.Agent{
		ID:           uuid.NewString(),
		Name:         name,
		Role:         role,
		Capabilities: caps,
		Available:    true,
	}
}

// score ranks an agent for selection: 70% weight on historical success
// rate, 30% weight on speed (spec.md §4.2).
func score(a *types.Agent) float64 {
	avgSec := a.Performance.AverageTimeMs / 1000.0
	return 0.7*a.Performance.SuccessRate + 0.3*(1.0/(avgSec+1.0))
}

func hasAnyCapability(a *types.Agent, required []string) bool {
	for _, c := range required {
		if a.HasCapability(c) {
			return true
		}
	}
	return false
}

func isFallbackCandidate(a *types.Agent) bool {
	if a.Role == types.RoleGeneralist {
		return true
	}
	return len(a.Capabilities) >= 4
}
