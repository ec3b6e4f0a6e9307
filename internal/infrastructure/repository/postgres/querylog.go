// Package postgres persists the query audit log. The log is an
// operational record of served searches, not part of the retrieval
// path; writes are best-effort from the caller's point of view.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/karenmasterson/dns-gpt-backend/internal/core/domain"
)

type QueryLogRepository struct {
	db *sql.DB
}

func NewQueryLogRepository(db *sql.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *QueryLogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent api startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026032801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS query_log (
	id BIGSERIAL PRIMARY KEY,
	query TEXT NOT NULL,
	top_k INT NOT NULL,
	return_k INT NOT NULL,
	hit_count INT NOT NULL,
	rerank_mode TEXT NOT NULL,
	duration_ms DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_log_created_at ON query_log(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *QueryLogRepository) Insert(ctx context.Context, entry domain.QueryLogEntry) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO query_log (query, top_k, return_k, hit_count, rerank_mode, duration_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		entry.Query, entry.TopK, entry.ReturnK, entry.HitCount, entry.RerankMode,
		float64(entry.Duration)/float64(time.Millisecond), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}
