// Package compiler implements C3, the compile/repair engine: it invokes
// the build toolchain, parses its diagnostics, applies rule-based fixes
// and — failing those — an AI-assisted repair pass, then validates the
// produced artifact (spec.md §4.5).
package compiler

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/plugincraft/forge/internal/config"
	"github.com/plugincraft/forge/pkg/llm"
	"github.com/plugincraft/forge/pkg/parser"
	forgeerrors "github.com/plugincraft/forge/pkg/shared/errors"
	"github.com/plugincraft/forge/pkg/shared/logging"
	"github.com/plugincraft/forge/pkg/shared/types"
)

// Engine is C3: one build-invocation/repair cycle around a project tree.
type Engine struct {
	cfg    config.CompilerConfig
	llm    *llm.Client
	logger *logrus.Logger
}

// NewEngine wires an Engine. client may be nil if AI-assisted repair is
// disabled for this deployment (cfg.AIFix == false).
func NewEngine(cfg config.CompilerConfig, client *llm.Client, logger *logrus.Logger) *Engine {
	return &Engine{cfg: cfg, llm: client, logger: logger}
}

// Result is one Run's outcome.
type Result struct {
	Success      bool
	Diagnostics  []types.CompilationDiagnostic
	Artifact     *ArtifactResult
	BuildLog     string
	Attempts     int
	RepairedBy   []string
}

// Run executes the full build/repair cycle described by spec.md §4.5:
// precondition checks and optional scaffolding, a build, and — on
// failure — a rule-based-fix rebuild followed by an AI-fallback-fix
// rebuild. It performs at most three subprocess invocations; C7 is
// responsible for bounding the cumulative per-session invocation count
// at maxCompilationAttempts across repeated Run calls.
func (e *Engine) Run(ctx context.Context, projectPath string) (*Result, error) {
	if e.cfg.AutoFix {
		e.runPreconditionScaffolding(projectPath)
	}

	result := &Result{}

	buildLog, diagnostics, ok, err := e.build(ctx, projectPath)
	result.Attempts++
	result.BuildLog = buildLog
	result.Diagnostics = diagnostics
	if err != nil {
		return result, err
	}
	if ok {
		return e.finish(projectPath, result)
	}

	if e.cfg.AutoFix {
		applied, fixErr := e.applyRuleFixes(projectPath, diagnostics, buildLog)
		if fixErr != nil {
			return result, fixErr
		}
		if applied {
			result.RepairedBy = append(result.RepairedBy, "rule-based")
			buildLog, diagnostics, ok, err = e.build(ctx, projectPath)
			result.Attempts++
			result.BuildLog = buildLog
			result.Diagnostics = diagnostics
			if err != nil {
				return result, err
			}
			if ok {
				return e.finish(projectPath, result)
			}
		}
	}

	if e.cfg.AIFix && e.llm != nil {
		applied, fixErr := e.applyAIFix(ctx, projectPath, buildLog)
		if fixErr != nil {
			if e.logger != nil {
				e.logger.WithError(fixErr).Warn("compiler: AI-assisted repair failed")
			}
		} else if applied {
			result.RepairedBy = append(result.RepairedBy, "ai-assisted")
			buildLog, diagnostics, ok, err = e.build(ctx, projectPath)
			result.Attempts++
			result.BuildLog = buildLog
			result.Diagnostics = diagnostics
			if err != nil {
				return result, err
			}
			if ok {
				return e.finish(projectPath, result)
			}
		}
	}

	result.Success = false
	return result, nil
}

func (e *Engine) finish(projectPath string, result *Result) (*Result, error) {
	result.Success = true
	artifact, err := findArtifact(projectPath)
	if err != nil {
		return result, err
	}
	result.Artifact = artifact
	return result, nil
}

// build runs the configured build tool with "clean install -B", tees
// combined output to <projectPath>/maven.log, and returns it alongside
// parsed diagnostics. ok is true only when the combined output shows no
// failure signal (exit status alone is not trusted, spec.md §6).
func (e *Engine) build(ctx context.Context, projectPath string) (string, []types.CompilationDiagnostic, bool, error) {
	timeout := e.cfg.Timeout.AsDuration()
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	buildCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(buildCtx, e.cfg.BuildCmd, "clean", "install", "-B")
	cmd.Dir = projectPath

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	runErr := cmd.Run()
	output := out.String()

	logPath := filepath.Join(projectPath, "maven.log")
	_ = os.WriteFile(logPath, []byte(output), 0o644)

	if buildCtx.Err() == context.DeadlineExceeded {
		return output, nil, false, forgeerrors.New(forgeerrors.KindTimeout, "compiler.build", buildCtx.Err())
	}

	diagnostics := parseDiagnostics(output)
	failed := isBuildFailure(output, runErr)

	if e.logger != nil {
		e.logger.WithFields(logging.NewFields().Component("compiler").Operation("build").
			Duration(time.Since(start)).Custom("failed", failed).ToLogrus()).Info("build invocation complete")
	}

	return output, diagnostics, !failed, nil
}

// runPreconditionScaffolding patches obvious omissions before a build is
// attempted at all: a missing resource-filtering section and a missing
// plugin descriptor for an existing JavaPlugin main class. It does not
// create a main class when the project has none.
func (e *Engine) runPreconditionScaffolding(projectPath string) {
	if _, err := e.fixMissingDescriptor(projectPath); err != nil && e.logger != nil {
		e.logger.WithError(err).Warn("compiler: descriptor scaffolding failed")
	}
	if err := e.ensureResourceFiltering(projectPath); err != nil && e.logger != nil {
		e.logger.WithError(err).Warn("compiler: resource-filtering scaffolding failed")
	}
}

// ensureResourceFiltering adds a <resources> filtering section to the
// build descriptor when absent, so plugin.yml's ${project.version}-style
// placeholders (if any) get substituted during packaging.
func (e *Engine) ensureResourceFiltering(projectPath string) error {
	pomPath := filepath.Join(projectPath, "pom.xml")
	content, err := os.ReadFile(pomPath)
	if err != nil {
		return nil
	}
	pom := string(content)
	if strings.Contains(pom, "<resources>") {
		return nil
	}

	block := `  <build>
    <resources>
      <resource>
        <directory>src/main/resources</directory>
        <filtering>true</filtering>
      </resource>
    </resources>
  </build>
`
	idx := strings.Index(pom, "</project>")
	if idx < 0 {
		return nil
	}
	pom = pom[:idx] + block + pom[idx:]
	return os.WriteFile(pomPath, []byte(pom), 0o644)
}

// applyAIFix calls C1 with the trimmed build log, the descriptor, and up
// to three Java files, then applies the {createdFiles, modifiedFiles,
// deletedFiles} result C2 parses from the response.
func (e *Engine) applyAIFix(ctx context.Context, projectPath, buildLog string) (bool, error) {
	prompt, err := e.buildRepairPrompt(projectPath, buildLog)
	if err != nil {
		return false, err
	}

	text, err := e.llm.Call(ctx, "repair_compilation", prompt)
	if err != nil {
		return false, err
	}

	result := parser.Parse(text, filepath.Base(projectPath))
	if result.Synthesized {
		// A synthesized fallback plugin is not a targeted repair; applying
		// it over an existing partially-working project would regress it.
		return false, nil
	}

	applied := false
	for _, op := range result.CreatedFiles {
		if err := writeProjectFile(projectPath, op.Path, op.Content); err != nil {
			return applied, err
		}
		applied = true
	}
	for _, op := range result.ModifiedFiles {
		if err := writeProjectFile(projectPath, op.Path, op.Content); err != nil {
			return applied, err
		}
		applied = true
	}
	for _, path := range result.DeletedFiles {
		target, err := safeProjectPath(projectPath, path)
		if err != nil {
			continue
		}
		_ = os.Remove(target)
		applied = true
	}

	return applied, nil
}

func (e *Engine) buildRepairPrompt(projectPath, buildLog string) (string, error) {
	var b strings.Builder
	b.WriteString("The following Maven build failed. Fix it by returning ONLY a JSON object ")
	b.WriteString("{\"createdFiles\":[{\"path\":...,\"content\":...}],\"modifiedFiles\":[...],\"deletedFiles\":[...]}.\n\n")
	b.WriteString("Build log (trimmed):\n")
	b.WriteString(trimBuildLog(buildLog, 8000))

	descriptorPath := filepath.Join(projectPath, "src", "main", "resources", "plugin.yml")
	if descriptor, err := os.ReadFile(descriptorPath); err == nil {
		b.WriteString("\n\nPlugin descriptor:\n")
		b.Write(descriptor)
	}

	javaFiles, err := collectJavaFiles(projectPath, 3)
	if err != nil {
		return "", err
	}
	for _, jf := range javaFiles {
		fmt.Fprintf(&b, "\n\n--- %s ---\n%s", jf.path, jf.content)
	}

	return b.String(), nil
}

func trimBuildLog(log string, max int) string {
	if len(log) <= max {
		return log
	}
	return log[len(log)-max:]
}

type javaFile struct {
	path    string
	content string
}

func collectJavaFiles(projectPath string, limit int) ([]javaFile, error) {
	var files []javaFile
	err := filepath.WalkDir(projectPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || len(files) >= limit {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".java") {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(projectPath, path)
		if relErr != nil {
			rel = path
		}
		files = append(files, javaFile{path: rel, content: string(content)})
		return nil
	})
	return files, err
}

func writeProjectFile(projectPath, relPath, content string) error {
	target, err := safeProjectPath(projectPath, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if _, statErr := os.Stat(target); statErr == nil {
		_ = os.Rename(target, target+".backup")
	}
	return os.WriteFile(target, []byte(content), 0o644)
}

func safeProjectPath(projectPath, relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("compiler: file path %q must be relative", relPath)
	}
	joined := filepath.Join(projectPath, relPath)
	root := filepath.Clean(projectPath) + string(filepath.Separator)
	if !strings.HasPrefix(joined, root) {
		return "", fmt.Errorf("compiler: file path %q escapes projectPath", relPath)
	}
	return joined, nil
}
