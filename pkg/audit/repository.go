// Package audit is an append-only record of every session's terminal
// outcome, for operators trying to answer "how well is generation doing
// this week" without re-deriving it from logs. It persists only
// CreationResult — never a prompt or any other user-identifying record
// (spec.md's Non-goal on storing user data) — satisfying
// pkg/orchestrator.AuditRecorder.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sirupsen/logrus"

	forgeerrors "github.com/plugincraft/forge/pkg/shared/errors"
	"github.com/plugincraft/forge/pkg/shared/logging"
	"github.com/plugincraft/forge/pkg/shared/types"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS session_outcomes (
	session_id     TEXT PRIMARY KEY,
	success        BOOLEAN NOT NULL,
	quality_score  INTEGER NOT NULL,
	plugin_path    TEXT NOT NULL DEFAULT '',
	jar_path       TEXT NOT NULL DEFAULT '',
	time_taken_ms  BIGINT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	agents_used    JSONB NOT NULL DEFAULT '[]',
	issues         JSONB NOT NULL DEFAULT '[]',
	suggestions    JSONB NOT NULL DEFAULT '[]',
	recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Repository is the Postgres-backed AuditRecorder. It holds a
// database/sql handle opened against the pgx stdlib driver (import
// github.com/jackc/pgx/v5/stdlib for side effects and sql.Open("pgx",
// dsn)) rather than pgx's native pool interface, so it can be exercised
// in tests with github.com/DATA-DOG/go-sqlmock without a real server.
type Repository struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewRepository wraps an already-opened *sql.DB. Call EnsureSchema once
// at startup before the first Record.
func NewRepository(db *sql.DB, logger *logrus.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// EnsureSchema creates the outcomes table if it doesn't already exist.
// There's exactly one table here, so a migration tool would be
// overhead; a single idempotent DDL statement run at startup is enough.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return forgeerrors.FailedToWithDetails("ensure schema", "audit", "session_outcomes", err)
	}
	return nil
}

// Record inserts result as a new row, or replaces the prior row for the
// same SessionID if Record is somehow called twice (it shouldn't be,
// but upserting is cheaper than guarding against it everywhere).
func (r *Repository) Record(ctx context.Context, result types.CreationResult) error {
	agentsUsed, err := marshalOrEmpty(result.AgentsUsed)
	if err != nil {
		return forgeerrors.New(forgeerrors.KindInternal, "audit.record", err)
	}
	issues, err := marshalOrEmpty(result.Issues)
	if err != nil {
		return forgeerrors.New(forgeerrors.KindInternal, "audit.record", err)
	}
	suggestions, err := marshalOrEmpty(result.Suggestions)
	if err != nil {
		return forgeerrors.New(forgeerrors.KindInternal, "audit.record", err)
	}

	const stmt = `
INSERT INTO session_outcomes
	(session_id, success, quality_score, plugin_path, jar_path, time_taken_ms, retry_count, agents_used, issues, suggestions)
VALUES
	($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (session_id) DO UPDATE SET
	success = EXCLUDED.success,
	quality_score = EXCLUDED.quality_score,
	plugin_path = EXCLUDED.plugin_path,
	jar_path = EXCLUDED.jar_path,
	time_taken_ms = EXCLUDED.time_taken_ms,
	retry_count = EXCLUDED.retry_count,
	agents_used = EXCLUDED.agents_used,
	issues = EXCLUDED.issues,
	suggestions = EXCLUDED.suggestions`

	_, err = r.db.ExecContext(ctx, stmt,
		result.SessionID, result.Success, result.QualityScore, result.PluginPath, result.JarPath,
		result.TimeTakenMs, result.RetryCount, agentsUsed, issues, suggestions,
	)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logging.NewFields().
				Component("audit").
				Operation("record").
				SessionID(result.SessionID).
				Error(err).ToLogrus()).Error("failed to record session outcome")
		}
		return forgeerrors.FailedToWithDetails("record outcome", "audit", result.SessionID, err)
	}
	return nil
}

// Summary aggregates the recorded outcomes for a quick health check —
// how many sessions ran, how many succeeded, and the mean quality score
// across all of them.
type Summary struct {
	TotalSessions int
	Successes     int
	MeanQuality   float64
}

// Summarize computes Summary over every row currently in the table. It's
// meant for an operator dashboard or a periodic log line, not a hot path.
func (r *Repository) Summarize(ctx context.Context) (Summary, error) {
	const stmt = `
SELECT count(*), coalesce(sum(CASE WHEN success THEN 1 ELSE 0 END), 0), coalesce(avg(quality_score), 0)
FROM session_outcomes`

	var summary Summary
	row := r.db.QueryRowContext(ctx, stmt)
	if err := row.Scan(&summary.TotalSessions, &summary.Successes, &summary.MeanQuality); err != nil {
		return Summary{}, forgeerrors.FailedToWithDetails("summarize", "audit", "session_outcomes", err)
	}
	return summary, nil
}

func marshalOrEmpty(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}
