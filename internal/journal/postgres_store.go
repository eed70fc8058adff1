package journal

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists run records in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS mint_runs (
    run_id TEXT PRIMARY KEY,
    network TEXT NOT NULL,
    contract TEXT NOT NULL,
    state TEXT NOT NULL,
    dry_run BOOLEAN NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    summary JSONB NOT NULL
);
`

// NewPostgresStore connects to Postgres using the DSN and ensures the table
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Save(ctx context.Context, rec Record) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO mint_runs (run_id, network, contract, state, dry_run, created_at, summary)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (run_id) DO UPDATE
SET state = EXCLUDED.state,
    created_at = EXCLUDED.created_at,
    summary = EXCLUDED.summary
`, rec.RunID, rec.Network, rec.Contract, rec.State, rec.DryRun, rec.CreatedAt, rec.Summary)
	return err
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
SELECT run_id, network, contract, state, dry_run, created_at, summary
FROM mint_runs
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.RunID, &rec.Network, &rec.Contract, &rec.State, &rec.DryRun, &rec.CreatedAt, &rec.Summary); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
