package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aosc-dev/buildit/pkg/db"
)

// ErrStale is returned by CompleteJob when the job is no longer assigned to
// the reporting worker: it has since been reclaimed and is being redone
// elsewhere. Callers must discard the worker's result.
var ErrStale = errors.New("store: job is no longer assigned to this worker")

// ErrNotFound is returned by single-row lookups with no matching row.
var ErrNotFound = errors.New("store: not found")

// Store is typed access to the coordinator's relational schema, plus the
// atomic operations the scheduler relies on for correctness under
// concurrency (claim, complete, reclaim).
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-open connection pool. Use pkg/db.Open to obtain one,
// with WithMigrations pointed at internal/platform/migrations.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for callers (e.g. River, goose) that need
// it directly.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// withTx runs fn inside a transaction via db.WithTx.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.WithTx(ctx, s.pool, fn)
}
