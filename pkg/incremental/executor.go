package incremental

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/plugincraft/forge/pkg/llm"
	forgeerrors "github.com/plugincraft/forge/pkg/shared/errors"
	"github.com/plugincraft/forge/pkg/shared/types"
	"github.com/plugincraft/forge/pkg/validator"
)

// DefaultMaxRetriesPerFile bounds how many times one step is rescheduled
// before the executor gives up on it.
const DefaultMaxRetriesPerFile = 2

// truncationMarker is emitted in place of older file content once the
// complete-context prompt would exceed MaxContextBytes (spec.md §8
// property 7, "documented truncation marker").
const truncationMarker = "\n/* --- context truncated, earlier file content omitted --- */\n"

// meaningfulTokens are the raw-content prefixes the LLM's response is
// trimmed forward to, discarding any leading prose (spec.md §4.3 step 2).
var meaningfulTokens = []string{"package ", "import ", "public ", "class ", "name:", "version:", "main:", "<?xml"}

// ExecutorConfig carries the session-level knobs the executor needs from
// internal/config.IncrementalConfig plus the project root on disk.
type ExecutorConfig struct {
	ProjectPath          string
	MaxContextBytes      int
	MinPassingScore      int
	MaxIterationsPerFile int
}

// Executor runs a planned set of FileSteps one at a time, carrying
// complete cross-file context into every prompt (spec.md §4.3 "Execution").
type Executor struct {
	client *llm.Client
	logger *logrus.Logger
	cfg    ExecutorConfig
}

// NewExecutor wires an Executor around an LLM gateway client.
func NewExecutor(client *llm.Client, cfg ExecutorConfig, logger *logrus.Logger) *Executor {
	if cfg.MaxContextBytes <= 0 {
		cfg.MaxContextBytes = 100 * 1024
	}
	if cfg.MinPassingScore <= 0 {
		cfg.MinPassingScore = 95
	}
	if cfg.MaxIterationsPerFile <= 0 {
		cfg.MaxIterationsPerFile = 5
	}
	return &Executor{client: client, logger: logger, cfg: cfg}
}

// Result summarizes one Execute run.
type Result struct {
	Committed       []string
	AverageScore    float64
	Issues          []string
	Suggestions     []string
	UncommittedStep string
}

// Execute runs every step in plan order, writing committed files under
// ictx.ProjectPath (which must already have passed ValidateProjectPath).
func (e *Executor) Execute(ctx context.Context, ictx *Context, plan []*types.FileStep) (*Result, error) {
	if err := ValidateProjectPath(ictx.ProjectPath); err != nil {
		return nil, forgeerrors.New(forgeerrors.KindConfig, "incremental.execute", err)
	}

	result := &Result{}
	queue := append([]*types.FileStep(nil), plan...)

	for i := 0; i < len(queue); i++ {
		step := queue[i]
		if ctx.Err() != nil {
			return nil, forgeerrors.New(forgeerrors.KindCancelled, "incremental.execute", ctx.Err())
		}

		content, score, issues, suggestions, err := e.produceStep(ctx, ictx, step)
		if err != nil {
			step.RetryCount++
			if step.RetryCount > step.MaxRetries {
				step.Status = types.StepFailed
				result.UncommittedStep = step.FileName
				ictx.RecordFailure(fmt.Sprintf("%s: %v", step.FileName, err))
				result.Issues = append(result.Issues, fmt.Sprintf("%s: %v", step.FileName, err))
				continue
			}
			// Reschedule to the end of the plan, per spec.md §4.3.
			queue = append(queue, step)
			continue
		}

		if err := e.writeWithBackup(ictx.ProjectPath, step.FileName, content); err != nil {
			return nil, forgeerrors.New(forgeerrors.KindInternal, "incremental.write", err)
		}

		step.Content = content
		step.Status = types.StepCompleted
		step.LastValidation = &types.ValidationResult{IsValid: len(issues) == 0, Score: score, Issues: issues, Suggestions: suggestions}
		ictx.RecordFile(step, content, score)
		result.Committed = append(result.Committed, step.FileName)
		result.Issues = append(result.Issues, issues...)
		result.Suggestions = append(result.Suggestions, suggestions...)
	}

	result.AverageScore = ictx.AverageQuality()
	return result, nil
}

// produceStep drives one file through generate → validate → correct until
// it commits or exhausts maxIterationsPerFile.
func (e *Executor) produceStep(ctx context.Context, ictx *Context, step *types.FileStep) (string, int, []string, []string, error) {
	var (
		content string
		result  types.ValidationResult
	)

	for iteration := 0; iteration < e.cfg.MaxIterationsPerFile; iteration++ {
		prompt := e.buildContextPrompt(ictx, step, content, result)

		raw, err := e.client.Call(ctx, "generate_file", prompt)
		if err != nil {
			return "", 0, nil, nil, err
		}
		content = cleanFileContent(raw)
		if content == "" {
			continue
		}

		result = validator.Validate(step, content, ictx.ProjectContext())
		if result.Score >= 95 || result.Score >= e.cfg.MinPassingScore {
			return content, result.Score, result.Issues, result.Suggestions, nil
		}

		corrected, ok := applyCorrectionPasses(step, content, result, ictx.ProjectContext())
		if ok {
			content = corrected
			result = validator.Validate(step, content, ictx.ProjectContext())
			if result.Score >= 95 || result.Score >= e.cfg.MinPassingScore {
				return content, result.Score, result.Issues, result.Suggestions, nil
			}
		}
	}

	return "", 0, nil, nil, fmt.Errorf("exhausted %d iterations without reaching minPassingScore (last score %d)", e.cfg.MaxIterationsPerFile, result.Score)
}

// buildContextPrompt assembles the complete-context prompt: every
// already-committed file's content in commit order, truncated once the
// running size exceeds MaxContextBytes, followed by this step's brief and
// (if this is a correction retry) the previous attempt plus its issues.
func (e *Executor) buildContextPrompt(ictx *Context, step *types.FileStep, previousContent string, previousResult types.ValidationResult) string {
	order, content := ictx.Snapshot()

	var b strings.Builder
	b.WriteString("You are generating one file of a Minecraft Bukkit/Spigot plugin.\n")
	b.WriteString("Do not use markdown code fences. Respond with raw file content only.\n\n")
	b.WriteString("Existing project files:\n")

	budget := e.cfg.MaxContextBytes
	truncated := false
	for _, name := range order {
		entry := fmt.Sprintf("\n--- %s ---\n%s\n", name, content[name])
		if budget <= 0 {
			truncated = true
			continue
		}
		if len(entry) > budget {
			entry = entry[:budget] + truncationMarker
			budget = 0
			truncated = true
		} else {
			budget -= len(entry)
		}
		b.WriteString(entry)
	}
	if truncated {
		b.WriteString(truncationMarker)
	}

	fmt.Fprintf(&b, "\nNow produce: %s (type: %s)\n%s\n", step.FileName, step.FileType, step.Description)

	if previousContent != "" && len(previousResult.Issues) > 0 {
		b.WriteString("\nThe previous attempt had these issues, fix them:\n")
		for _, issue := range previousResult.Issues {
			b.WriteString("- " + issue + "\n")
		}
		b.WriteString("\nPrevious attempt:\n" + previousContent + "\n")
	}

	return b.String()
}

// cleanFileContent strips markdown fences and any leading explanatory
// prose up to the first meaningful token (spec.md §4.3 step 2).
func cleanFileContent(raw string) string {
	text := strings.ReplaceAll(raw, "```java", "")
	text = strings.ReplaceAll(text, "```yaml", "")
	text = strings.ReplaceAll(text, "```yml", "")
	text = strings.ReplaceAll(text, "```xml", "")
	text = strings.ReplaceAll(text, "```", "")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, token := range meaningfulTokens {
			if strings.HasPrefix(trimmed, token) {
				return strings.TrimRight(strings.Join(lines[i:], "\n"), "\n") + "\n"
			}
		}
	}
	return strings.TrimSpace(text)
}

// writeWithBackup writes content to root/relPath, first renaming any
// existing file to a ".backup" sibling, and rejects any relPath that would
// escape root (spec.md §8 property 10).
func (e *Executor) writeWithBackup(root, relPath, content string) error {
	target, err := SafeJoin(root, relPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return forgeerrors.FailedToWithDetails("create directory", "incremental", filepath.Dir(target), err)
	}

	if _, err := os.Stat(target); err == nil {
		if err := os.Rename(target, target+".backup"); err != nil {
			return forgeerrors.FailedToWithDetails("back up file", "incremental", target, err)
		}
	}

	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return forgeerrors.FailedToWithDetails("write file", "incremental", target, err)
	}
	return nil
}
