package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/SmallJobs/internal/repository"
	"github.com/utafrali/SmallJobs/pkg/database"
	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
)

// Store implements repository.Store on a pgx pool. Every call goes through
// the guard, which bounds it with the store timeout and trips the circuit
// breaker on repeated transient failures.
type Store struct {
	pool  database.TxBeginner
	db    database.DBTX
	guard *database.Guard
}

// NewStore creates a Store. A nil guard runs calls unbounded.
func NewStore(pool database.TxBeginner, guard *database.Guard) *Store {
	return &Store{pool: pool, db: pool, guard: guard}
}

// Jobs returns a job repository bound to the store's connection.
func (s *Store) Jobs() repository.JobRepository {
	return NewJobRepository(s.db)
}

// Users returns a user repository bound to the store's connection.
func (s *Store) Users() repository.UserRepository {
	return NewUserRepository(s.db)
}

// Read runs fn against the pool with a single retry on transient failure.
func (s *Store) Read(ctx context.Context, fn func(ctx context.Context, s repository.Store) error) error {
	if s.inTx() {
		return fn(ctx, s)
	}
	return s.guard.Do(ctx, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

// WithTx runs fn in a READ COMMITTED transaction. A transient failure before
// commit rolls back and the whole transaction is retried once. A failed
// commit is not retried since it may already have been applied; it is
// reported as ServiceUnavailable for the caller to decide.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, s repository.Store) error) error {
	if s.inTx() {
		return fn(ctx, s)
	}

	return s.guard.Do(ctx, func(ctx context.Context) error {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(ctx, &Store{db: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return database.NoRetry(apperrors.ServiceUnavailable(fmt.Errorf("commit transaction: %w", err)))
		}
		return nil
	})
}

func (s *Store) inTx() bool {
	return s.pool == nil
}

// isUniqueViolation checks for SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}

// escapeLike escapes the LIKE metacharacters in s.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
