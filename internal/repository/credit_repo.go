package repository

import (
	"context"
	"fmt"

	"skechum/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CreditRepository is the append-only credit ledger. Balances are always derived from it.
type CreditRepository interface {
	GetBalance(ctx context.Context, userID string) (int, error)
	// AppendEntry records a signed delta. A non-nil reference already used by the user yields ErrDuplicateEntry.
	AppendEntry(ctx context.Context, userID string, delta int, reason string, reference *string) (*model.CreditLogEntry, error)
	// ListEntries returns entries newest-first.
	ListEntries(ctx context.Context, userID string, limit, offset int) ([]model.CreditLogEntry, error)
}

type creditRepo struct {
	pool *pgxpool.Pool
}

// NewCreditRepo creates a new CreditRepository.
func NewCreditRepo(pool *pgxpool.Pool) CreditRepository {
	return &creditRepo{pool: pool}
}

func (r *creditRepo) GetBalance(ctx context.Context, userID string) (int, error) {
	return balanceOf(ctx, r.pool, userID)
}

func (r *creditRepo) AppendEntry(ctx context.Context, userID string, delta int, reason string, reference *string) (*model.CreditLogEntry, error) {
	entry, err := insertEntry(ctx, r.pool, userID, delta, reason, reference)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEntry
		}
		return nil, err
	}
	return entry, nil
}

func (r *creditRepo) ListEntries(ctx context.Context, userID string, limit, offset int) ([]model.CreditLogEntry, error) {
	const q = `
        SELECT id, user_id, delta, reason, reference, created_at
        FROM credit_logs
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3
    `
	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries for user %s: %w", userID, err)
	}
	defer rows.Close()

	entries := []model.CreditLogEntry{}
	for rows.Next() {
		var e model.CreditLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Reason, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

func insertEntry(ctx context.Context, q querier, userID string, delta int, reason string, reference *string) (*model.CreditLogEntry, error) {
	const insertQ = `
        INSERT INTO credit_logs (user_id, delta, reason, reference)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `
	e := model.CreditLogEntry{UserID: userID, Delta: delta, Reason: reason, Reference: reference}
	if err := q.QueryRow(ctx, insertQ, userID, delta, reason, reference).Scan(&e.ID, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("append ledger entry for user %s: %w", userID, err)
	}
	return &e, nil
}

// insertEntryOnce appends the entry unless its reference already exists. It reports whether a row was written
// and never aborts the surrounding transaction on a duplicate.
func insertEntryOnce(ctx context.Context, q querier, userID string, delta int, reason, reference string) (bool, error) {
	const insertQ = `
        INSERT INTO credit_logs (user_id, delta, reason, reference)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, reference) DO NOTHING
    `
	tag, err := q.Exec(ctx, insertQ, userID, delta, reason, reference)
	if err != nil {
		return false, fmt.Errorf("append ledger entry %s for user %s: %w", reference, userID, err)
	}
	return tag.RowsAffected() == 1, nil
}
