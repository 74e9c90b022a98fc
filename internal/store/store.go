// Package store persists finished run results to Postgres. It implements the
// result-consumer side of the engine's contract; the engine itself never
// touches it.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/quantfold/ruleback/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
    run_id       TEXT PRIMARY KEY,
    strategy     TEXT NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ NOT NULL,
    metrics      JSONB NOT NULL,
    sell_reasons JSONB NOT NULL,
    curve        JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_trades (
    id          BIGSERIAL PRIMARY KEY,
    run_id      TEXT NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
    symbol      TEXT NOT NULL,
    entry_date  TIMESTAMPTZ NOT NULL,
    entry_price DOUBLE PRECISION NOT NULL,
    exit_date   TIMESTAMPTZ NOT NULL,
    exit_price  DOUBLE PRECISION NOT NULL,
    shares      DOUBLE PRECISION NOT NULL,
    pnl_pct     DOUBLE PRECISION NOT NULL,
    days_held   INTEGER NOT NULL,
    reason      TEXT NOT NULL,
    regime      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_backtest_trades_run ON backtest_trades(run_id);
`

// Store persists run results.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect result store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure result schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// SaveResult writes one finished run and its trades in a transaction.
func (s *Store) SaveResult(ctx context.Context, runID string, started, finished time.Time, result *engine.Result) error {
	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	reasons, err := json.Marshal(result.SellReasons)
	if err != nil {
		return fmt.Errorf("encode sell reasons: %w", err)
	}
	curve, err := json.Marshal(result.Curve)
	if err != nil {
		return fmt.Errorf("encode curve: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (run_id, strategy, started_at, finished_at, metrics, sell_reasons, curve)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		runID, result.Strategy, started, finished, metrics, reasons, curve)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}

	for _, t := range result.Trades {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO backtest_trades (run_id, symbol, entry_date, entry_price, exit_date, exit_price, shares, pnl_pct, days_held, reason, regime)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			runID, t.Symbol, t.EntryDate, t.EntryPrice, t.ExitDate, t.ExitPrice,
			t.Shares, t.PnLPct, t.DaysHeld, string(t.Reason), t.Regime)
		if err != nil {
			return fmt.Errorf("insert trade %s/%s: %w", runID, t.Symbol, err)
		}
	}

	return tx.Commit()
}

// RunRow is one persisted run summary.
type RunRow struct {
	RunID      string    `db:"run_id" json:"run_id"`
	Strategy   string    `db:"strategy" json:"strategy"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
	Metrics    []byte    `db:"metrics" json:"metrics"`
}

// ListRuns returns persisted runs, most recent first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []RunRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT run_id, strategy, started_at, finished_at, metrics
		FROM backtest_runs ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return rows, nil
}
