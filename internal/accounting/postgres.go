package accounting

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger is a Ledger backed by a PostgreSQL table, for durable usage
// accounting across restarts. All operations are safe for concurrent use.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ Ledger = (*PostgresLedger)(nil)

// schema creates the usage table on first connect. Idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS turn_usage (
	id                BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	client_id         TEXT        NOT NULL,
	model             TEXT        NOT NULL,
	prompt_tokens     INTEGER     NOT NULL,
	completion_tokens INTEGER     NOT NULL,
	iterations        INTEGER     NOT NULL,
	tool_calls        INTEGER     NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	duration_ms       BIGINT      NOT NULL
);
CREATE INDEX IF NOT EXISTS turn_usage_client_idx ON turn_usage (client_id);
`

// NewPostgresLedger connects to the database at dsn, ensures the usage table
// exists, and returns a ready ledger.
func NewPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("accounting: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("accounting: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("accounting: migrate: %w", err)
	}
	return &PostgresLedger{pool: pool}, nil
}

// RecordTurn implements Ledger.
func (l *PostgresLedger) RecordTurn(ctx context.Context, rec TurnRecord) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO turn_usage
			(client_id, model, prompt_tokens, completion_tokens, iterations, tool_calls, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ClientID, rec.Model, rec.PromptTokens, rec.CompletionTokens,
		rec.Iterations, rec.ToolCalls, rec.StartedAt, rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("accounting: insert turn: %w", err)
	}
	return nil
}

// TotalsFor implements Ledger.
func (l *PostgresLedger) TotalsFor(ctx context.Context, clientID string) (Totals, error) {
	var t Totals
	err := l.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(tool_calls), 0)
		FROM turn_usage
		WHERE client_id = $1`,
		clientID,
	).Scan(&t.Turns, &t.PromptTokens, &t.CompletionTokens, &t.ToolCalls)
	if err != nil {
		return Totals{}, fmt.Errorf("accounting: totals for %q: %w", clientID, err)
	}
	return t, nil
}

// Ping verifies database connectivity. Used by health checks.
func (l *PostgresLedger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

// Close releases all connections held by the pool.
func (l *PostgresLedger) Close() {
	l.pool.Close()
}
