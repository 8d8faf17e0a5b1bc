// Package postgres implements the Task Repository (spec.md §4.5) and the
// persistence half of the Tag Subsystem (spec.md §4.6) against PostgreSQL,
// grounded in the goqu+pgx repository style used elsewhere in this stack.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/tasks"
)

const (
	tableTask    = "task"
	tableTag     = "tag"
	tableTaskTag = "task_tag"

	maxRetries = 2

	// serializationFailure and deadlockDetected are the Postgres error codes
	// the repository treats as retryable (spec.md §4.5).
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

var dialect = goqu.Dialect("postgres")

// Store is the Postgres-backed tasks.Repository.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Connect opens a pgxpool against dsn, bounded by maxConns/minConns.
func Connect(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// withRetry runs fn inside a transaction, retrying at most twice when the
// database reports a serialization-class failure (spec.md §4.5, §9).
func (s *Store) withRetry(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff(attempt))
		}

		err := s.runInTx(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		s.logger.Warn("retrying transaction after serialization failure", "attempt", attempt+1, "error", err)
	}
	return lastErr
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * 25 * time.Millisecond
}

func (s *Store) runInTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
	}
	return false
}

// newTaskID mints a new ULID primary key, lexicographically sortable by
// creation time.
func newTaskID() string {
	return ulid.Make().String()
}

func generateTagID() string {
	return ulid.Make().String()
}

// mapError translates an unexpected repository failure into the closed
// taxonomy without leaking driver detail to the caller (spec.md §7, §4.8).
// tasks.ErrNotFound and errors already classified as *apperr.Error (such as
// a tag rejected by normalizeNames) pass through unchanged.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tasks.ErrNotFound) {
		return err
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Internalf("repository operation %q failed", op)
}

