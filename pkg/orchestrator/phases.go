package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/plugincraft/forge/pkg/compiler"
	"github.com/plugincraft/forge/pkg/incremental"
	"github.com/plugincraft/forge/pkg/parser"
	forgeerrors "github.com/plugincraft/forge/pkg/shared/errors"
	"github.com/plugincraft/forge/pkg/shared/types"
	"github.com/plugincraft/forge/pkg/validator"
)

// analysisResult composes the three analysis sub-tasks into one figure
// the optimization phase can act on (spec.md §4.1).
type analysisResult struct {
	Classification string
	RefinedPrompt  string
	Requirements   string
	Confidence     float64
}

// generationOutcome is the common shape both the standard and incremental
// generation paths produce, so quality/compilation/assessment don't need
// to know which path ran.
type generationOutcome struct {
	files       map[string]string
	score       int
	issues      []string
	suggestions []string
	incremental bool
}

// runAnalysisPhase fans classify_intent, refine_prompt and
// extract_requirements out concurrently — all three are quick actions
// (types.QuickActions), so none of them holds an agent unavailable while
// the others run. Confidence is the mean of the three sub-confidences.
func (o *Orchestrator) runAnalysisPhase(ctx context.Context, session *types.Session, prompt string) analysisResult {
	type subResult struct {
		text       string
		confidence float64
	}
	actions := [3]string{"classify_intent", "refine_prompt", "extract_requirements"}
	results := make([]subResult, len(actions))

	var g errgroup.Group
	for i, action := range actions {
		i, action := i, action
		g.Go(func() error {
			text, confidence := o.dispatchLLMTask(ctx, session, types.TaskCreation, action, prompt)
			results[i] = subResult{text: text, confidence: confidence}
			o.publishPhaseProgress(session, types.PhaseAnalysis, action, (i+1)*100/len(actions), action+" complete")
			return nil
		})
	}
	_ = g.Wait() // each sub-task degrades to a deterministic fallback, never aborts the phase

	var sum float64
	for _, r := range results {
		sum += r.confidence
	}

	return analysisResult{
		Classification: results[0].text,
		RefinedPrompt:  firstNonEmpty(results[1].text, prompt),
		Requirements:   results[2].text,
		Confidence:     sum / float64(len(results)),
	}
}

// runOptimizationPhase always runs optimize_prompt, then runs enhance_prompt
// too when analysis confidence fell below 0.8 (spec.md §4.1).
func (o *Orchestrator) runOptimizationPhase(ctx context.Context, session *types.Session, analysis analysisResult) string {
	refined := analysis.RefinedPrompt

	if optimized, _ := o.dispatchLLMTask(ctx, session, types.TaskOptimization, "optimize_prompt", refined); strings.TrimSpace(optimized) != "" {
		refined = optimized
	}
	o.publishPhaseProgress(session, types.PhaseOptimization, "optimize_prompt", 60, "prompt optimized")

	if analysis.Confidence < 0.8 {
		if enhanced, _ := o.dispatchLLMTask(ctx, session, types.TaskOptimization, "enhance_prompt", refined); strings.TrimSpace(enhanced) != "" {
			refined = enhanced
		}
		o.publishPhaseProgress(session, types.PhaseOptimization, "enhance_prompt", 100, "prompt enhanced")
	} else {
		o.publishPhaseProgress(session, types.PhaseOptimization, "enhance_prompt", 100, "skipped: analysis confidence sufficient")
	}

	return refined
}

// dispatchLLMTask runs one LLM-backed task through the scheduler with two
// retries, falling back to a deterministic, low-confidence result on
// exhaustion rather than failing the phase outright.
func (o *Orchestrator) dispatchLLMTask(ctx context.Context, session *types.Session, taskType types.TaskType, action, prompt string) (string, float64) {
	task := &types.Task{
		ID:         fmt.Sprintf("%s-%s", session.ID, action),
		Type:       taskType,
		Priority:   types.PriorityMedium,
		Action:     action,
		Data:       map[string]interface{}{"prompt": prompt},
		MaxRetries: 2,
	}

	var text string
	err := o.scheduler.Dispatch(ctx, session.ID, task, func(ctx context.Context, task *types.Task, agent *types.Agent) (interface{}, error) {
		out, callErr := o.llmClient.Call(ctx, action, llmPrompt(action, prompt))
		if callErr != nil {
			return nil, callErr
		}
		text = strings.TrimSpace(out)
		o.recordAgentUsed(session, agent.ID)
		return text, nil
	})
	if err != nil || text == "" {
		return deterministicFallback(action, prompt), 0.5
	}
	return text, 0.9
}

func llmPrompt(action, prompt string) string {
	switch action {
	case "classify_intent":
		return "Classify the kind of Minecraft plugin requested, in one short phrase:\n" + prompt
	case "refine_prompt":
		return "Rewrite this plugin request as a precise, unambiguous specification:\n" + prompt
	case "extract_requirements":
		return "List the concrete functional requirements implied by this plugin request:\n" + prompt
	case "optimize_prompt":
		return "Tighten this plugin specification for an AI code generator, removing ambiguity:\n" + prompt
	case "enhance_prompt":
		return "Add any missing but implied detail (permissions, config keys, commands) to this plugin specification:\n" + prompt
	default:
		return prompt
	}
}

// deterministicFallback never fails: it is the value used when the LLM
// gateway's breaker is open or a sub-task keeps erroring out.
func deterministicFallback(action, prompt string) string {
	switch action {
	case "classify_intent":
		return "general_plugin"
	case "extract_requirements":
		return "basic enable/disable lifecycle, configuration file, one primary feature"
	default:
		return prompt
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// runGenerationPhase delegates to the incremental (C5) path when enabled,
// otherwise runs the standard up-to-N-attempt generation loop.
func (o *Orchestrator) runGenerationPhase(ctx context.Context, session *types.Session, prompt, pluginName, userID string) (*generationOutcome, error) {
	if o.incCfg.Enabled {
		return o.runIncrementalGeneration(ctx, session, prompt, pluginName, userID)
	}
	return o.runStandardGeneration(ctx, session, prompt, pluginName)
}

// runStandardGeneration asks C1 for a complete file set, parses it through
// C2, and scores it with C4, retrying up to MaxGenerationAttempts with an
// early exit once the mean score reaches 90 (spec.md §4.1's "score >= 0.9"
// on the validator's 0-100 scale).
func (o *Orchestrator) runStandardGeneration(ctx context.Context, session *types.Session, prompt, pluginName string) (*generationOutcome, error) {
	maxAttempts := o.cfg.MaxGenerationAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var best *generationOutcome
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		o.publishPhaseProgress(session, types.PhaseGeneration, "generate_code", attempt*100/(maxAttempts+1),
			fmt.Sprintf("generation attempt %d/%d", attempt, maxAttempts))

		text, _ := o.dispatchLLMTask(ctx, session, types.TaskCreation, "generate_code", generationPrompt(prompt, pluginName, best))
		outcome := o.scoreGeneration(parser.Parse(text, pluginName), pluginName)

		if best == nil || outcome.score > best.score {
			best = outcome
		}
		if best.score >= 90 {
			break
		}
	}

	if best == nil || len(best.files) == 0 {
		best = o.scoreGeneration(parser.SynthesizeMinimalPlugin(pluginName), pluginName)
		best.suggestions = append(best.suggestions, "generation fell back to a minimal skeleton plugin; review the prompt for clarity")
	}

	o.publishPhaseProgress(session, types.PhaseGeneration, "generate_code", 100, "generation complete")
	return best, nil
}

func generationPrompt(prompt, pluginName string, previous *generationOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a complete Bukkit/Spigot Minecraft plugin named %s for this request:\n%s\n\n", pluginName, prompt)
	b.WriteString(`Respond with ONLY a JSON object {"createdFiles":[{"path":...,"content":...}],"modifiedFiles":[],"deletedFiles":[]}.`)
	if previous != nil && len(previous.issues) > 0 {
		b.WriteString("\n\nThe previous attempt scored low; fix these issues:\n")
		for _, issue := range previous.issues {
			b.WriteString("- " + issue + "\n")
		}
	}
	return b.String()
}

// scoreGeneration validates every produced file against the rest of the
// batch with C4 and folds the per-file scores into one mean, consistent
// with how pkg/incremental's AverageQuality composes scores.
func (o *Orchestrator) scoreGeneration(result *parser.Result, pluginName string) *generationOutcome {
	files := make(map[string]string)
	for _, op := range result.CreatedFiles {
		files[op.Path] = op.Content
	}
	for _, op := range result.ModifiedFiles {
		files[op.Path] = op.Content
	}

	projectCtx := validator.ProjectContext{Files: files, PluginName: pluginName}

	var (
		total       int
		issues      []string
		suggestions []string
	)
	for path, content := range files {
		step := &types.FileStep{FileName: path, FileType: inferFileType(path)}
		v := validator.Validate(step, content, projectCtx)
		total += v.Score
		issues = append(issues, v.Issues...)
		suggestions = append(suggestions, v.Suggestions...)
	}

	score := 0
	if len(files) > 0 {
		score = total / len(files)
	}
	return &generationOutcome{files: files, score: score, issues: issues, suggestions: suggestions}
}

func inferFileType(path string) types.FileType {
	switch {
	case strings.HasSuffix(path, "plugin.yml"):
		return types.FilePluginDescriptor
	case strings.HasSuffix(path, "pom.xml"):
		return types.FileBuildConfig
	case strings.HasSuffix(path, ".yml"), strings.HasSuffix(path, ".yaml"):
		return types.FileConfig
	case strings.Contains(path, "Listener"):
		return types.FileListener
	case strings.Contains(path, "Command"):
		return types.FileCommand
	case strings.HasSuffix(path, ".java"):
		return types.FileMainClass
	default:
		return types.FileUtility
	}
}

// runIncrementalGeneration delegates the entire plan-then-produce cycle to
// C5, translating its per-file commits into synthetic generation-phase
// progress events.
func (o *Orchestrator) runIncrementalGeneration(ctx context.Context, session *types.Session, prompt, pluginName, userID string) (*generationOutcome, error) {
	projectPath := o.projectPath(userID, pluginName)

	steps, parsedFromLLM := o.planner.Plan(ctx, prompt, pluginName)
	o.publishPhaseProgress(session, types.PhaseGeneration, "plan", 10,
		fmt.Sprintf("planned %d files (llm_parsed=%v)", len(steps), parsedFromLLM))

	ictx := incremental.NewContext(projectPath, pluginName)
	executor := incremental.NewExecutor(o.llmClient, incremental.ExecutorConfig{
		ProjectPath:          projectPath,
		MaxContextBytes:      o.incCfg.MaxContextBytes,
		MinPassingScore:      o.incCfg.MinPassingScore,
		MaxIterationsPerFile: o.incCfg.MaxIterationsPerFile,
	}, o.logger)

	execResult, err := executor.Execute(ctx, ictx, steps)
	if err != nil {
		return nil, err
	}

	for i, name := range execResult.Committed {
		o.publishPhaseProgress(session, types.PhaseGeneration, name, 10+(i+1)*90/max(1, len(execResult.Committed)), "committed "+name)
	}

	_, content := ictx.Snapshot()
	return &generationOutcome{
		files:       content,
		score:       int(execResult.AverageScore),
		issues:      execResult.Issues,
		suggestions: execResult.Suggestions,
		incremental: true,
	}, nil
}

// runQualityPhase writes a standard-path generation's files to disk under
// <projectRoot>/<userId>/<pluginName> (an incremental-path generation has
// already written its files during Execute) and runs a final
// validate_generated_code pass.
func (o *Orchestrator) runQualityPhase(ctx context.Context, session *types.Session, gen *generationOutcome, userID, pluginName string) (string, error) {
	projectPath := o.projectPath(userID, pluginName)

	if !gen.incremental {
		if err := incremental.ValidateProjectPath(projectPath); err != nil {
			return "", forgeerrors.New(forgeerrors.KindConfig, "orchestrator.quality", err)
		}
		for relPath, content := range gen.files {
			target, err := incremental.SafeJoin(projectPath, relPath)
			if err != nil {
				return "", forgeerrors.New(forgeerrors.KindInternal, "orchestrator.quality", err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", forgeerrors.FailedToWithDetails("create directory", "orchestrator", filepath.Dir(target), err)
			}
			if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
				return "", forgeerrors.FailedToWithDetails("write file", "orchestrator", target, err)
			}
		}
	}

	o.dispatchLLMTask(ctx, session, types.TaskValidation, "validate_generated_code",
		fmt.Sprintf("%d files written to %s", len(gen.files), projectPath))
	o.publishPhaseProgress(session, types.PhaseQuality, "validate_generated_code", 100, "quality pass complete")

	return projectPath, nil
}

// runCompilationPhase invokes C3 repeatedly, summing Result.Attempts
// across calls, until either the build succeeds or the cumulative
// invocation count reaches maxCompilationAttempts (spec.md §4.5).
func (o *Orchestrator) runCompilationPhase(ctx context.Context, session *types.Session, projectPath string) *compiler.Result {
	if o.compiler == nil {
		return nil
	}

	budget := o.maxCompilationAttempts
	if budget <= 0 {
		budget = 5
	}

	var (
		last     *compiler.Result
		attempts int
	)
	for attempts < budget {
		result, err := o.compiler.Run(ctx, projectPath)
		if err != nil {
			o.publishPhaseProgress(session, types.PhaseCompilation, "build", 100, err.Error())
			return last
		}
		last = result
		attempts += result.Attempts
		o.publishPhaseProgress(session, types.PhaseCompilation, "build", percentOf(attempts, budget),
			fmt.Sprintf("compilation attempts so far: %d/%d", attempts, budget))
		if result.Success {
			break
		}
	}
	return last
}

// runAssessmentPhase composes the final quality score from the
// generation-phase score and the compilation outcome, and runs a closing
// final_quality_assessment pass.
func (o *Orchestrator) runAssessmentPhase(ctx context.Context, session *types.Session, gen *generationOutcome, compileResult *compiler.Result) (int, []string, []string) {
	issues := append([]string(nil), gen.issues...)
	suggestions := append([]string(nil), gen.suggestions...)
	score := gen.score

	if compileResult != nil {
		if !compileResult.Success {
			score = score * 60 / 100 // a non-compiling project cannot be judged complete
			issues = append(issues, "final build did not succeed")
			suggestions = append(suggestions, "review the compilation diagnostics and retry with a more specific prompt")
		}
		if compileResult.Artifact != nil {
			issues = append(issues, compileResult.Artifact.Warnings...)
		}
	}

	o.dispatchLLMTask(ctx, session, types.TaskValidation, "final_quality_assessment",
		fmt.Sprintf("score=%d issues=%d", score, len(issues)))
	o.publishPhaseProgress(session, types.PhaseAssessment, "final_quality_assessment", 100, "assessment complete")

	return score, issues, suggestions
}
