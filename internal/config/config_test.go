package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "forge-config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when the config file is complete", func() {
			BeforeEach(func() {
				full := `
llm:
  provider: "anthropic"
  endpoint: "https://api.anthropic.com"
  model: "claude-3-haiku"
  timeout: "45s"
  temperature: 0.2
  max_tokens: 4096

circuit_breaker:
  failure_threshold: 5
  open_timeout: "30s"

scheduler:
  max_retries: 3

incremental:
  enabled: true
  target_accuracy: 98
  min_passing_score: 95
  max_iterations_per_file: 5
  max_context_bytes: 102400

compiler:
  max_attempts: 5
  build_cmd: "mvn"
  timeout: "10m"
  auto_fix: true
  ai_fix: true

orchestrator:
  max_generation_attempts: 3
  project_root: "/tmp/forge-generated"

session:
  ttl: "24h"

logging:
  level: "info"
  format: "json"
`
				Expect(os.WriteFile(configFile, []byte(full), 0644)).To(Succeed())
			})

			It("loads every section", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())

				Expect(cfg.LLM.Provider).To(Equal("anthropic"))
				Expect(cfg.LLM.Model).To(Equal("claude-3-haiku"))
				Expect(cfg.LLM.Timeout.AsDuration()).To(Equal(45 * time.Second))
				Expect(cfg.LLM.Temperature).To(Equal(float32(0.2)))

				Expect(cfg.CircuitBreaker.FailureThreshold).To(Equal(5))
				Expect(cfg.CircuitBreaker.OpenTimeout.AsDuration()).To(Equal(30 * time.Second))

				Expect(cfg.Incremental.Enabled).To(BeTrue())
				Expect(cfg.Incremental.TargetAccuracy).To(Equal(98))
				Expect(cfg.Incremental.MinPassingScore).To(Equal(95))

				Expect(cfg.Compiler.Timeout.AsDuration()).To(Equal(10 * time.Minute))
				Expect(cfg.Orchestrator.ProjectRoot).To(Equal("/tmp/forge-generated"))
				Expect(cfg.Session.TTL.AsDuration()).To(Equal(24 * time.Hour))
				Expect(cfg.Logging.Format).To(Equal("json"))
			})
		})

		Context("when the config file has minimal content", func() {
			BeforeEach(func() {
				minimal := `
llm:
  provider: "local"
  model: "test-model"

orchestrator:
  project_root: "/tmp/forge-generated"
`
				Expect(os.WriteFile(configFile, []byte(minimal), 0644)).To(Succeed())
			})

			It("fills in documented defaults", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.CircuitBreaker.FailureThreshold).To(Equal(5))
				Expect(cfg.CircuitBreaker.OpenTimeout.AsDuration()).To(Equal(30 * time.Second))
				Expect(cfg.Scheduler.MaxRetries).To(Equal(3))
				Expect(cfg.Incremental.TargetAccuracy).To(Equal(98))
				Expect(cfg.Incremental.MinPassingScore).To(Equal(95))
				Expect(cfg.Incremental.MaxIterationsPerFile).To(Equal(5))
				Expect(cfg.Compiler.MaxAttempts).To(Equal(5))
				Expect(cfg.Compiler.Timeout.AsDuration()).To(Equal(10 * time.Minute))
				Expect(cfg.Orchestrator.MaxGenerationAttempts).To(Equal(3))
				Expect(cfg.Session.TTL.AsDuration()).To(Equal(24 * time.Hour))
				Expect(cfg.Logging.Level).To(Equal("info"))
			})
		})

		Context("when the file does not exist", func() {
			It("returns an error", func() {
				_, err := Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).To(HaveOccurred())
			})
		})

		Context("when a required field is missing", func() {
			BeforeEach(func() {
				invalid := `
llm:
  provider: "local"
`
				Expect(os.WriteFile(configFile, []byte(invalid), 0644)).To(Succeed())
			})

			It("fails validation because llm.model is required", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("invalid config"))
			})
		})
	})
})
