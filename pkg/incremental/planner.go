package incremental

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/plugincraft/forge/pkg/llm"
	"github.com/plugincraft/forge/pkg/shared/types"
)

// Planner produces an ordered FileStep plan for a requirements description
// (spec.md §4.3 "Planning").
type Planner struct {
	client *llm.Client
	logger *logrus.Logger
}

// NewPlanner wires a Planner around an LLM gateway client.
func NewPlanner(client *llm.Client, logger *logrus.Logger) *Planner {
	return &Planner{client: client, logger: logger}
}

// rawPlanStep mirrors the JSON array the LLM is asked to emit.
type rawPlanStep struct {
	FileName     string   `json:"fileName"`
	FileType     string   `json:"fileType"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
	Priority     int      `json:"priority"`
}

// Plan asks C1 for an ordered file plan, falls back to a deterministic
// three-file plan on any parse failure, and returns the steps in stable
// topological order.
func (p *Planner) Plan(ctx context.Context, requirements, pluginName string) ([]*types.FileStep, bool) {
	prompt := buildPlanningPrompt(requirements, pluginName)

	text, err := p.client.Call(ctx, "plan_files", prompt)
	if err != nil {
		if p.logger != nil {
			p.logger.WithError(err).Warn("incremental: planning call failed, using fallback plan")
		}
		return topoSort(fallbackPlan(pluginName)), false
	}

	steps, ok := parsePlanJSON(text)
	if !ok || len(steps) == 0 {
		if p.logger != nil {
			p.logger.Warn("incremental: planning response unparsable, using fallback plan")
		}
		return topoSort(fallbackPlan(pluginName)), false
	}

	return topoSort(steps), true
}

func buildPlanningPrompt(requirements, pluginName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan the files for a Minecraft Bukkit/Spigot plugin named %q.\n", pluginName)
	b.WriteString("Requirements:\n")
	b.WriteString(requirements)
	b.WriteString("\n\nRespond with ONLY a JSON array of file steps, no prose, no markdown fences. ")
	b.WriteString("Each element: {\"fileName\":string, \"fileType\": one of main_class|config|command|listener|utility|resource|build_config|plugin_descriptor, ")
	b.WriteString("\"description\":string, \"dependencies\":[fileName,...], \"priority\":int}.\n")
	return b.String()
}

func parsePlanJSON(text string) ([]*types.FileStep, bool) {
	trimmed := strings.TrimSpace(text)
	start := strings.IndexByte(trimmed, '[')
	end := strings.LastIndexByte(trimmed, ']')
	if start < 0 || end < start {
		return nil, false
	}
	trimmed = trimmed[start : end+1]

	var raw []rawPlanStep
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, false
	}

	steps := make([]*types.FileStep, 0, len(raw))
	for i, r := range raw {
		if r.FileName == "" {
			continue
		}
		steps = append(steps, &types.FileStep{
			ID:           uuid.NewString(),
			Order:        i,
			FileName:     r.FileName,
			FileType:     normalizeFileType(r.FileType),
			Description:  r.Description,
			Dependencies: r.Dependencies,
			Priority:     r.Priority,
			Status:       types.StepPending,
			MaxRetries:   DefaultMaxRetriesPerFile,
		})
	}
	if len(steps) == 0 {
		return nil, false
	}
	return steps, true
}

func normalizeFileType(s string) types.FileType {
	switch types.FileType(s) {
	case types.FileMainClass, types.FileConfig, types.FileCommand, types.FileListener,
		types.FileUtility, types.FileResource, types.FileBuildConfig, types.FilePluginDescriptor:
		return types.FileType(s)
	default:
		return types.FileUtility
	}
}

// fallbackPlan is the deterministic three-step plan used whenever planning
// fails to parse: build config → plugin descriptor → main class.
func fallbackPlan(pluginName string) []*types.FileStep {
	return []*types.FileStep{
		{
			ID: uuid.NewString(), Order: 0, FileName: "pom.xml", FileType: types.FileBuildConfig,
			Description: "Maven build descriptor", Status: types.StepPending, MaxRetries: DefaultMaxRetriesPerFile,
		},
		{
			ID: uuid.NewString(), Order: 1, FileName: "src/main/resources/plugin.yml", FileType: types.FilePluginDescriptor,
			Description: "Plugin descriptor", Dependencies: []string{"pom.xml"},
			Status: types.StepPending, MaxRetries: DefaultMaxRetriesPerFile,
		},
		{
			ID: uuid.NewString(), Order: 2, FileName: mainClassPath(pluginName), FileType: types.FileMainClass,
			Description: "Main plugin class", Dependencies: []string{"src/main/resources/plugin.yml"},
			Status: types.StepPending, MaxRetries: DefaultMaxRetriesPerFile,
		},
	}
}

func mainClassPath(pluginName string) string {
	name := sanitizeIdentifier(pluginName)
	if name == "" {
		name = "Plugin"
	}
	pkg := strings.ToLower(name)
	return fmt.Sprintf("src/main/java/com/forge/%s/%s.java", pkg, name)
}

func sanitizeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// topoSort orders steps by dependency, breaking ties and cycles by
// original insertion order (stable Kahn's algorithm, spec.md §8 property 5).
func topoSort(steps []*types.FileStep) []*types.FileStep {
	byName := make(map[string]*types.FileStep, len(steps))
	indexOf := make(map[string]int, len(steps))
	for i, s := range steps {
		byName[s.FileName] = s
		indexOf[s.FileName] = i
	}

	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for _, s := range steps {
		if _, ok := indegree[s.FileName]; !ok {
			indegree[s.FileName] = 0
		}
		for _, dep := range s.Dependencies {
			if _, ok := byName[dep]; !ok {
				continue // dependency not in this plan, ignore
			}
			indegree[s.FileName]++
			dependents[dep] = append(dependents[dep], s.FileName)
		}
	}

	remaining := make(map[string]bool, len(steps))
	for _, s := range steps {
		remaining[s.FileName] = true
	}

	var ordered []*types.FileStep
	for len(remaining) > 0 {
		// Pick the earliest-by-original-order remaining step with indegree 0;
		// if none exists (a cycle), pick the earliest remaining step of any
		// indegree, breaking the cycle deterministically.
		next := earliestZeroIndegree(steps, remaining, indegree)
		if next == "" {
			next = earliestRemaining(steps, remaining)
		}
		ordered = append(ordered, byName[next])
		delete(remaining, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
		}
	}

	for i, s := range ordered {
		s.Order = i
	}
	return ordered
}

func earliestZeroIndegree(steps []*types.FileStep, remaining map[string]bool, indegree map[string]int) string {
	for _, s := range steps {
		if remaining[s.FileName] && indegree[s.FileName] <= 0 {
			return s.FileName
		}
	}
	return ""
}

func earliestRemaining(steps []*types.FileStep, remaining map[string]bool) string {
	for _, s := range steps {
		if remaining[s.FileName] {
			return s.FileName
		}
	}
	return ""
}
