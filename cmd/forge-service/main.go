// Command forge-service wires every component together and runs one
// plugin creation per invocation: load config, build the C1-C9 stack,
// call Orchestrator.CreatePlugin, print the CreationResult as JSON.
//
// This is not a server: spec.md's Non-goal on HTTP/WebSocket transport
// means forge-service has no listener of its own. A host process wanting
// a long-running service wraps this same wiring behind its own
// transport; this binary is the reference wiring and a usable CLI.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/plugincraft/forge/internal/config"
	"github.com/plugincraft/forge/pkg/audit"
	"github.com/plugincraft/forge/pkg/breaker"
	"github.com/plugincraft/forge/pkg/compiler"
	"github.com/plugincraft/forge/pkg/events"
	"github.com/plugincraft/forge/pkg/llm"
	"github.com/plugincraft/forge/pkg/orchestrator"
	"github.com/plugincraft/forge/pkg/scheduler"
	"github.com/plugincraft/forge/pkg/sessionstore"
	"github.com/plugincraft/forge/pkg/shared/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the forge YAML configuration file")
	prompt := flag.String("prompt", "", "natural-language description of the plugin to generate")
	pluginName := flag.String("plugin-name", "", "name of the plugin to generate")
	userID := flag.String("user-id", "cli-user", "opaque user id the generated project is stored under")
	flag.Parse()

	if *prompt == "" || *pluginName == "" {
		fmt.Fprintln(os.Stderr, "usage: forge-service -config config.yaml -plugin-name CoolPlugin -prompt \"...\"")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forge-service: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	orch, cleanup, err := wire(cfg, logger)
	if err != nil {
		logger.Fatalf("forge-service: wiring failed: %v", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	result, err := orch.CreatePlugin(ctx, *prompt, *pluginName, *userID)
	if err != nil {
		logger.Fatalf("forge-service: %v", err)
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatalf("forge-service: encode result: %v", err)
	}
	fmt.Println(string(encoded))

	if !result.Success {
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// wire builds the full C1-C9 stack plus session/audit persistence around
// the already-loaded config, returning the assembled Orchestrator and a
// cleanup func that closes whatever external connections were opened.
func wire(cfg *config.Config, logger *logrus.Logger) (*orchestrator.Orchestrator, func(), error) {
	registry := breaker.NewRegistry(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.OpenTimeout.AsDuration(), logger)

	llmClient, err := llm.NewClient(cfg.LLM, registry, logger)
	if err != nil {
		return nil, func() {}, err
	}

	bus := events.NewBus()
	sched := scheduler.NewScheduler(logger, bus)
	seedAgents(sched)

	compilerEngine := compiler.NewEngine(cfg.Compiler, llmClient, logger)

	store, closeRedis := buildSessionStore(cfg, logger)

	auditRepo, closeAudit, err := buildAuditRepository(cfg, logger)
	if err != nil {
		closeRedis()
		return nil, func() {}, err
	}

	cleanup := func() {
		closeAudit()
		closeRedis()
	}

	orch := orchestrator.NewOrchestrator(
		cfg.Orchestrator,
		cfg.Incremental,
		cfg.Compiler.MaxAttempts,
		llmClient,
		sched,
		bus,
		compilerEngine,
		store,
		auditRepo,
		logger,
	)
	return orch, cleanup, nil
}

// seedAgents registers the default fleet: one generalist able to serve
// every task type as a fallback, plus one specialist per task-type's
// capability set so a realistic deployment sees capability-based
// dispatch exercise more than a single agent (spec.md §4.2).
func seedAgents(sched *scheduler.Scheduler) {
	sched.RegisterAgent(scheduler.NewAgent("generalist", types.RoleGeneralist,
		"prompt_refinement", "code_generation", "template_application",
		"code_validation", "syntax_checking", "best_practice_analysis",
		"compilation", "error_resolution", "dependency_management",
		"quality_improvement", "performance_optimization",
	))
	sched.RegisterAgent(scheduler.NewAgent("creator", types.RoleSpecialist,
		"prompt_refinement", "code_generation", "template_application"))
	sched.RegisterAgent(scheduler.NewAgent("validator", types.RoleValidator,
		"code_validation", "syntax_checking", "best_practice_analysis"))
	sched.RegisterAgent(scheduler.NewAgent("repairer", types.RoleSpecialist,
		"compilation", "error_resolution", "dependency_management",
		"error_diagnosis", "automated_fixing", "code_repair"))
	sched.RegisterAgent(scheduler.NewAgent("optimizer", types.RoleOptimizer,
		"quality_improvement", "performance_optimization"))
}

// buildSessionStore opens a Redis client when cfg.Session.RedisAddr is
// set; sessionstore.Store itself falls back to an in-memory map whenever
// a Redis call fails, so a nil client here (no address configured) is
// already a valid, fully in-memory configuration.
func buildSessionStore(cfg *config.Config, logger *logrus.Logger) (*sessionstore.Store, func()) {
	var client *redis.Client
	if cfg.Session.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
	}
	store := sessionstore.NewStore(client, cfg.Session.TTL.AsDuration(), logger)
	return store, func() {
		if client != nil {
			_ = client.Close()
		}
	}
}

// buildAuditRepository opens a Postgres connection through the pgx
// stdlib driver when auditing is enabled, otherwise returns a true nil
// orchestrator.AuditRecorder so CreatePlugin simply skips the audit
// write. The return type must be the interface, not *audit.Repository —
// a nil *audit.Repository boxed into an interface value is non-nil
// under "!= nil", which would make the orchestrator call Record on a
// nil receiver.
func buildAuditRepository(cfg *config.Config, logger *logrus.Logger) (orchestrator.AuditRecorder, func(), error) {
	if !cfg.Audit.Enabled {
		return nil, func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.Audit.DSN)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open audit database: %w", err)
	}

	repo := audit.NewRepository(db, logger)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, func() {}, err
	}

	return repo, func() { _ = db.Close() }, nil
}
