package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/plugincraft/forge/internal/config"
	"github.com/plugincraft/forge/pkg/breaker"
	"github.com/plugincraft/forge/pkg/compiler"
	"github.com/plugincraft/forge/pkg/events"
	"github.com/plugincraft/forge/pkg/llm"
	"github.com/plugincraft/forge/pkg/orchestrator"
	"github.com/plugincraft/forge/pkg/scheduler"
	"github.com/plugincraft/forge/pkg/shared/types"
)

func TestOrchestrator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Multi-Phase Orchestrator Suite")
}

// scriptedProvider returns a fixed JSON file-set response to every
// generate_code call and an echo of the prompt otherwise, standing in for
// a real model backend.
type scriptedProvider struct {
	calls      int32
	generation string
}

func (p *scriptedProvider) Complete(_ context.Context, _ string, _ float32, _ int, prompt string) (string, error) {
	atomic.AddInt32(&p.calls, 1)
	return p.generation, nil
}

const cleanGenerationResponse = `{
  "createdFiles": [
    {"path": "pom.xml", "content": "<project><modelVersion>4.0.0</modelVersion></project>"},
    {"path": "src/main/resources/plugin.yml", "content": "name: CoolPlugin\nversion: 1.0.0\nmain: com.forge.cool.CoolPlugin\napi-version: \"1.20\"\n"},
    {"path": "src/main/java/com/forge/cool/CoolPlugin.java", "content": "package com.forge.cool;\n\nimport org.bukkit.plugin.java.JavaPlugin;\n\npublic class CoolPlugin extends JavaPlugin {\n    @Override\n    public void onEnable() {\n        getLogger().info(\"enabled\");\n    }\n\n    @Override\n    public void onDisable() {\n        getLogger().info(\"disabled\");\n    }\n}\n"}
  ],
  "modifiedFiles": [],
  "deletedFiles": []
}`

func newTestOrchestrator(projectRoot string, generation string, compilerEngine *compiler.Engine) *orchestrator.Orchestrator {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	registry := breaker.NewRegistry(10, 30*time.Second, logger)
	provider := &scriptedProvider{generation: generation}
	client := llm.NewClientWithProvider(config.LLMConfig{Model: "test-model", BackoffCapMs: 1000}, provider, registry, logger)

	bus := events.NewBus()
	sched := scheduler.NewScheduler(logger, bus)
	sched.RegisterAgent(scheduler.NewAgent("analyst", types.RoleGeneralist,
		"prompt_refinement", "code_generation", "template_application",
		"quality_improvement", "performance_optimization",
		"code_validation", "syntax_checking", "best_practice_analysis"))

	orchCfg := config.OrchestratorConfig{MaxGenerationAttempts: 2, ProjectRoot: projectRoot}
	incCfg := config.IncrementalConfig{Enabled: false}

	return orchestrator.NewOrchestrator(orchCfg, incCfg, 5, client, sched, bus, compilerEngine, nil, nil, logger)
}

var _ = Describe("Orchestrator.CreatePlugin", func() {
	var projectRoot string

	BeforeEach(func() {
		var err error
		projectRoot, err = os.MkdirTemp("", "forge-orchestrator-*")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(projectRoot)
	})

	It("runs all six phases and writes the project without a compiler", func() {
		o := newTestOrchestrator(projectRoot, cleanGenerationResponse, nil)

		result, err := o.CreatePlugin(context.Background(), "a plugin that announces joins", "CoolPlugin", "user-1")

		Expect(err).ToNot(HaveOccurred())
		Expect(result.SessionID).ToNot(BeEmpty())
		Expect(result.PluginPath).To(Equal(filepath.Join(projectRoot, "user-1", "CoolPlugin")))
		Expect(result.QualityScore).To(BeNumerically(">", 0))

		pom := filepath.Join(result.PluginPath, "pom.xml")
		_, statErr := os.Stat(pom)
		Expect(statErr).ToNot(HaveOccurred())
	})

	It("compiles the generated project and reports success when the build succeeds", func() {
		script := filepath.Join(projectRoot, "build.sh")
		Expect(os.WriteFile(script, []byte("#!/bin/sh\necho 'BUILD SUCCESS'\nexit 0\n"), 0o755)).To(Succeed())

		cfg := config.CompilerConfig{BuildCmd: script, Timeout: config.Duration(5 * time.Second), AutoFix: false, AIFix: false}
		engine := compiler.NewEngine(cfg, nil, nil)

		o := newTestOrchestrator(projectRoot, cleanGenerationResponse, engine)

		result, err := o.CreatePlugin(context.Background(), "a plugin that announces joins", "CoolPlugin", "user-2")

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Success).To(BeTrue())
	})

	It("reports a failing build without losing the already-written project files", func() {
		script := filepath.Join(projectRoot, "build.sh")
		Expect(os.WriteFile(script, []byte("#!/bin/sh\necho '[ERROR] boom'\nexit 1\n"), 0o755)).To(Succeed())

		cfg := config.CompilerConfig{BuildCmd: script, Timeout: config.Duration(5 * time.Second), AutoFix: false, AIFix: false}
		engine := compiler.NewEngine(cfg, nil, nil)

		o := newTestOrchestrator(projectRoot, cleanGenerationResponse, engine)

		result, err := o.CreatePlugin(context.Background(), "a plugin that announces joins", "CoolPlugin", "user-3")

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Success).To(BeFalse())

		pluginPath := filepath.Join(projectRoot, "user-3", "CoolPlugin")
		_, statErr := os.Stat(filepath.Join(pluginPath, "pom.xml"))
		Expect(statErr).ToNot(HaveOccurred())
	})

	It("retains a finished session in ListSessions and rejects a cancel on it", func() {
		o := newTestOrchestrator(projectRoot, cleanGenerationResponse, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		result, err := o.CreatePlugin(ctx, "a plugin", "SlowPlugin", "user-4")
		Expect(err).ToNot(HaveOccurred())

		found := false
		for _, s := range o.ListSessions() {
			if s.ID == result.SessionID {
				found = true
				Expect(s.PluginName).To(Equal("SlowPlugin"))
			}
		}
		Expect(found).To(BeTrue())

		// The session's cancel handle is released once CreatePlugin returns,
		// so cancelling it afterwards reports no live session found.
		Expect(o.CancelSession(result.SessionID)).To(BeFalse())
	})

	It("reports false for CancelSession on an unknown session id", func() {
		o := newTestOrchestrator(projectRoot, cleanGenerationResponse, nil)
		Expect(o.CancelSession("does-not-exist")).To(BeFalse())
	})
})
