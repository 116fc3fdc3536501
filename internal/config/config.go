// Package config loads forge's YAML configuration file into the nested
// Config struct, applying defaults and validator/v10 struct tags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration unmarshals YAML duration strings ("30s", "5m") into time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// LLMConfig configures the C1 gateway's default provider.
type LLMConfig struct {
	Provider        string   `yaml:"provider" validate:"required,oneof=anthropic bedrock local"`
	Endpoint        string   `yaml:"endpoint"`
	Model           string   `yaml:"model" validate:"required"`
	Timeout         Duration `yaml:"timeout"`
	Temperature     float32  `yaml:"temperature"`
	MaxTokens       int      `yaml:"max_tokens"`
	BackoffCapMs    int      `yaml:"backoff_cap_ms" validate:"min=1"`
	AWSRegion       string   `yaml:"aws_region"`
	AnthropicAPIKey string   `yaml:"anthropic_api_key"`
}

// CircuitBreakerConfig configures C9's per-operation entries.
type CircuitBreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold" validate:"min=1"`
	OpenTimeout      Duration `yaml:"open_timeout"`
}

// SchedulerConfig configures C6.
type SchedulerConfig struct {
	MaxRetries int `yaml:"max_retries" validate:"min=0"`
}

// IncrementalConfig configures C5.
type IncrementalConfig struct {
	Enabled             bool `yaml:"enabled"`
	TargetAccuracy      int  `yaml:"target_accuracy" validate:"min=0,max=100"`
	MinPassingScore     int  `yaml:"min_passing_score" validate:"min=0,max=100"`
	MaxIterationsPerFile int `yaml:"max_iterations_per_file" validate:"min=1"`
	MaxContextBytes     int  `yaml:"max_context_bytes" validate:"min=1"`
}

// CompilerConfig configures C3.
type CompilerConfig struct {
	MaxAttempts int      `yaml:"max_attempts" validate:"min=1"`
	BuildCmd    string   `yaml:"build_cmd"`
	Timeout     Duration `yaml:"timeout"`
	AutoFix     bool     `yaml:"auto_fix"`
	AIFix       bool     `yaml:"ai_fix"`
}

// OrchestratorConfig configures C7.
type OrchestratorConfig struct {
	MaxGenerationAttempts int    `yaml:"max_generation_attempts" validate:"min=1"`
	ProjectRoot           string `yaml:"project_root" validate:"required"`
}

// SessionConfig configures session TTL/storage.
type SessionConfig struct {
	TTL         Duration `yaml:"ttl"`
	RedisAddr   string   `yaml:"redis_addr"`
}

// AuditConfig configures the outcome audit repository.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// LoggingConfig configures log level/format.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error fatal"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// Config is the root configuration document (§6 "Configuration (enumerated)").
type Config struct {
	LLM            LLMConfig            `yaml:"llm"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Scheduler      SchedulerConfig      `yaml:"scheduler"`
	Incremental    IncrementalConfig    `yaml:"incremental"`
	Compiler       CompilerConfig       `yaml:"compiler"`
	Orchestrator   OrchestratorConfig   `yaml:"orchestrator"`
	Session        SessionConfig        `yaml:"session"`
	Audit          AuditConfig          `yaml:"audit"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// Load reads and validates the YAML config file at path, applying defaults
// for any field the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns a Config populated with every documented default from
// spec.md §6.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:     "local",
			Timeout:      Duration(60 * time.Second),
			BackoffCapMs: 30000,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      Duration(30 * time.Second),
		},
		Scheduler: SchedulerConfig{MaxRetries: 3},
		Incremental: IncrementalConfig{
			TargetAccuracy:       98,
			MinPassingScore:      95,
			MaxIterationsPerFile: 5,
			MaxContextBytes:      100 * 1024,
		},
		Compiler: CompilerConfig{
			MaxAttempts: 5,
			BuildCmd:    "mvn",
			Timeout:     Duration(10 * time.Minute),
			AutoFix:     true,
			AIFix:       true,
		},
		Orchestrator: OrchestratorConfig{
			MaxGenerationAttempts: 3,
			ProjectRoot:           "generated",
		},
		Session: SessionConfig{TTL: Duration(24 * time.Hour)},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// applyDefaults fills in zero-valued fields post-unmarshal, mirroring the
// teacher's "defaults applied where needed" Load behavior.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = def.LLM.Timeout
	}
	if cfg.LLM.BackoffCapMs == 0 {
		cfg.LLM.BackoffCapMs = def.LLM.BackoffCapMs
	}
	if cfg.CircuitBreaker.FailureThreshold == 0 {
		cfg.CircuitBreaker.FailureThreshold = def.CircuitBreaker.FailureThreshold
	}
	if cfg.CircuitBreaker.OpenTimeout == 0 {
		cfg.CircuitBreaker.OpenTimeout = def.CircuitBreaker.OpenTimeout
	}
	if cfg.Scheduler.MaxRetries == 0 {
		cfg.Scheduler.MaxRetries = def.Scheduler.MaxRetries
	}
	if cfg.Incremental.TargetAccuracy == 0 {
		cfg.Incremental.TargetAccuracy = def.Incremental.TargetAccuracy
	}
	if cfg.Incremental.MinPassingScore == 0 {
		cfg.Incremental.MinPassingScore = def.Incremental.MinPassingScore
	}
	if cfg.Incremental.MaxIterationsPerFile == 0 {
		cfg.Incremental.MaxIterationsPerFile = def.Incremental.MaxIterationsPerFile
	}
	if cfg.Incremental.MaxContextBytes == 0 {
		cfg.Incremental.MaxContextBytes = def.Incremental.MaxContextBytes
	}
	if cfg.Compiler.MaxAttempts == 0 {
		cfg.Compiler.MaxAttempts = def.Compiler.MaxAttempts
	}
	if cfg.Compiler.BuildCmd == "" {
		cfg.Compiler.BuildCmd = def.Compiler.BuildCmd
	}
	if cfg.Compiler.Timeout == 0 {
		cfg.Compiler.Timeout = def.Compiler.Timeout
	}
	if cfg.Orchestrator.MaxGenerationAttempts == 0 {
		cfg.Orchestrator.MaxGenerationAttempts = def.Orchestrator.MaxGenerationAttempts
	}
	if cfg.Orchestrator.ProjectRoot == "" {
		cfg.Orchestrator.ProjectRoot = def.Orchestrator.ProjectRoot
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = def.Session.TTL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}
