package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist for the caller.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEntry is returned when a ledger reference was already recorded for the user.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")
	// ErrInsufficientBalance is returned by a commit whose re-checked balance cannot cover the cost.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicateIdempotencyKey is returned alongside the already stored image.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// lockUser serializes ledger-affecting transactions of one user until the transaction ends.
func lockUser(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
		return fmt.Errorf("lock ledger for user %s: %w", userID, err)
	}
	return nil
}

func balanceOf(ctx context.Context, q querier, userID string) (int, error) {
	var balance int
	const sumQ = `SELECT COALESCE(SUM(delta), 0)::int FROM credit_logs WHERE user_id = $1`
	if err := q.QueryRow(ctx, sumQ, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("sum ledger for user %s: %w", userID, err)
	}
	return balance, nil
}
