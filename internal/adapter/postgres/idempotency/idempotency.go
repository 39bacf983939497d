package idempotency

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyang/job-dispatch/internal/adapter/postgres"
	portidem "github.com/alanyang/job-dispatch/internal/port/idempotency"
)

var _ portidem.Store = (*Repository)(nil)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Check looks up an existing idempotency key. Returns the stored result JSON,
// whether the key exists, and any error.
func (r *Repository) Check(ctx context.Context, key string) ([]byte, bool, error) {
	var result []byte
	err := r.pool.QueryRow(ctx,
		`SELECT result_jsonb FROM processed_operations WHERE idempotency_key = $1`, key).Scan(&result)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, postgres.Classify("checking idempotency key", err)
	}
	return result, true, nil
}

// Save records a processed operation keyed by the idempotency key. The first result wins.
func (r *Repository) Save(ctx context.Context, key, operation string, result []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO processed_operations (idempotency_key, operation_type, result_jsonb, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (idempotency_key) DO NOTHING`, key, operation, result)
	if err != nil {
		return postgres.Classify("storing idempotency key", err)
	}
	return nil
}
