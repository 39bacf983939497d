package locker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	portlocker "github.com/alanyang/job-dispatch/internal/port/locker"
)

var _ portlocker.AdvisoryLocker = (*Locker)(nil)

// slowLock is how long a lock wait may take before it is logged.
const slowLock = 2 * time.Second

// Locker implements port/locker.AdvisoryLocker with transaction-scoped Postgres advisory locks.
// The lock lives in a dedicated transaction that stays open while fn runs and is released by
// the commit, so a crashed process or a cancelled ctx never leaves a key held.
// fn does not run inside that transaction; it uses its own repositories.
type Locker struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool}
}

func (l *Locker) WithLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin advisory lock transaction: %w", err)
	}
	// context.Background() ensures the lock is released even if ctx was cancelled mid-fn.
	defer tx.Rollback(context.Background()) //nolint:errcheck

	start := time.Now()
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
		return fmt.Errorf("acquire advisory lock %d: %w", key, err)
	}
	if waited := time.Since(start); waited > slowLock {
		slog.WarnContext(ctx, "slow advisory lock", "key", key, "waited", waited)
	}

	if err := fn(ctx); err != nil {
		return err
	}
	if err := tx.Commit(context.Background()); err != nil {
		return fmt.Errorf("release advisory lock %d: %w", key, err)
	}
	return nil
}
