// Package orchestrator implements C7, the multi-phase orchestrator: it
// sequences analysis, optimization, generation, quality, compilation and
// assessment into one createPlugin call, publishing weighted progress
// through the bus as it goes (spec.md §4.1).
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/plugincraft/forge/internal/config"
	"github.com/plugincraft/forge/pkg/compiler"
	"github.com/plugincraft/forge/pkg/events"
	"github.com/plugincraft/forge/pkg/incremental"
	"github.com/plugincraft/forge/pkg/llm"
	"github.com/plugincraft/forge/pkg/scheduler"
	"github.com/plugincraft/forge/pkg/shared/types"
)

// sessionTTL bounds how long a finished session is kept addressable by
// ListSessions before it ages out of the in-memory registry.
const sessionTTL = 24 * time.Hour

// SessionStore persists session snapshots so a restart doesn't lose
// visibility into in-flight or recently finished creations. pkg/sessionstore
// satisfies this against Redis with an in-memory fallback.
type SessionStore interface {
	Save(ctx context.Context, session types.Session) error
}

// AuditRecorder records every session's terminal outcome. pkg/audit
// satisfies this against Postgres. It only ever receives the already-
// computed CreationResult, never the prompt or any user record (spec.md's
// Non-goal on storing user data).
type AuditRecorder interface {
	Record(ctx context.Context, result types.CreationResult) error
}

// Orchestrator is C7: it owns no domain logic of its own, only the
// sequencing and progress bookkeeping around the other components.
type Orchestrator struct {
	cfg    config.OrchestratorConfig
	incCfg config.IncrementalConfig

	maxCompilationAttempts int

	llmClient *llm.Client
	scheduler *scheduler.Scheduler
	bus       *events.Bus
	compiler  *compiler.Engine
	planner   *incremental.Planner
	store     SessionStore
	audit     AuditRecorder
	logger    *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*types.Session
	cancels  map[string]context.CancelFunc
}

// NewOrchestrator wires an Orchestrator around the already-built
// components. store and audit may both be nil, in which case a session's
// snapshot and terminal outcome are simply not persisted anywhere outside
// the bus.
func NewOrchestrator(
	cfg config.OrchestratorConfig,
	incCfg config.IncrementalConfig,
	maxCompilationAttempts int,
	llmClient *llm.Client,
	sched *scheduler.Scheduler,
	bus *events.Bus,
	compilerEngine *compiler.Engine,
	store SessionStore,
	audit AuditRecorder,
	logger *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:                    cfg,
		incCfg:                 incCfg,
		maxCompilationAttempts: maxCompilationAttempts,
		llmClient:              llmClient,
		scheduler:              sched,
		bus:                    bus,
		compiler:               compilerEngine,
		planner:                incremental.NewPlanner(llmClient, logger),
		store:                  store,
		audit:                  audit,
		logger:                 logger,
		sessions:               make(map[string]*types.Session),
		cancels:                make(map[string]context.CancelFunc),
	}
}

// CreatePlugin is the createPlugin(prompt, pluginName, userId) contract of
// spec.md §4.1: it runs the six fixed phases in order and never returns a
// non-nil error for a domain failure — those are folded into
// CreationResult.Success/Issues instead, so a caller only sees err for a
// session-bookkeeping problem that prevented the run from starting.
func (o *Orchestrator) CreatePlugin(ctx context.Context, prompt, pluginName, userID string) (result *types.CreationResult, err error) {
	start := time.Now()
	session := newSession(pluginName, userID, prompt, sessionTTL)
	runCtx, cancel := context.WithCancel(ctx)
	o.register(session, cancel)
	defer cancel()
	defer o.forget(session.ID)

	result = &types.CreationResult{SessionID: session.ID}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.QualityScore = 0
			result.Issues = []string{fmt.Sprintf("internal error: %v", r)}
			result.Suggestions = []string{"retry the request; if the problem persists, contact support"}
			if o.logger != nil {
				o.logger.WithField("session_id", session.ID).Errorf("orchestrator: panic recovered: %v", r)
			}
		}
		result.TimeTakenMs = time.Since(start).Milliseconds()
		result.AgentsUsed = session.AgentsUsed

		if o.store != nil {
			_ = o.store.Save(context.Background(), *session)
		}
		if o.audit != nil {
			_ = o.audit.Record(context.Background(), *result)
		}
	}()

	analysis := o.runAnalysisPhase(runCtx, session, prompt)
	o.completePhase(session, types.PhaseAnalysis)

	refinedPrompt := o.runOptimizationPhase(runCtx, session, analysis)
	session.RefinedPrompt = refinedPrompt
	o.completePhase(session, types.PhaseOptimization)

	gen, genErr := o.runGenerationPhase(runCtx, session, refinedPrompt, pluginName, userID)
	if genErr != nil {
		o.failPhase(session, types.PhaseGeneration, genErr)
		result.Issues = append(result.Issues, genErr.Error())
		result.Suggestions = append(result.Suggestions, "generation failed; inspect the LLM gateway logs and retry")
		return result, nil
	}
	o.completePhase(session, types.PhaseGeneration)

	projectPath, qualityErr := o.runQualityPhase(runCtx, session, gen, userID, pluginName)
	if qualityErr != nil {
		o.failPhase(session, types.PhaseQuality, qualityErr)
		result.Issues = append(result.Issues, qualityErr.Error())
		return result, nil
	}
	result.PluginPath = projectPath
	o.completePhase(session, types.PhaseQuality)

	compileResult := o.runCompilationPhase(runCtx, session, projectPath)
	o.completePhase(session, types.PhaseCompilation)

	finalScore, issues, suggestions := o.runAssessmentPhase(runCtx, session, gen, compileResult)
	o.completePhase(session, types.PhaseAssessment)

	result.Success = compileResult != nil && compileResult.Success
	result.QualityScore = finalScore
	result.Issues = append(result.Issues, issues...)
	result.Suggestions = append(result.Suggestions, suggestions...)
	if compileResult != nil && compileResult.Artifact != nil {
		result.JarPath = compileResult.Artifact.Path
	}

	return result, nil
}

// projectPath is where a session's plugin project lives on disk:
// <projectRoot>/<userId>/<pluginName>.
func (o *Orchestrator) projectPath(userID, pluginName string) string {
	root := o.cfg.ProjectRoot
	if root == "" {
		root = "generated"
	}
	return filepath.Join(root, userID, pluginName)
}

func percentOf(n, max int) int {
	if max <= 0 {
		return 100
	}
	p := n * 100 / max
	if p > 100 {
		p = 100
	}
	return p
}
