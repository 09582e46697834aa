package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skechum/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentRepository stores credit purchases and grants their credits exactly once.
type PaymentRepository interface {
	// Record inserts a pending payment unless one with the same provider id exists.
	Record(ctx context.Context, p *model.Payment) error
	// ApplyStatus upserts p by provider id and moves it to p.Status. The first transition to succeeded
	// appends the purchase credits in the same transaction. It returns the stored payment and whether
	// credits were granted by this call.
	ApplyStatus(ctx context.Context, p *model.Payment) (*model.Payment, bool, error)
	GetByID(ctx context.Context, userID, id string) (*model.Payment, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Payment, error)
	// ListPending returns pending payments last touched before olderThan, oldest first.
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]model.Payment, error)
}

type paymentRepo struct {
	pool *pgxpool.Pool
}

// NewPaymentRepo creates a new PaymentRepository.
func NewPaymentRepo(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, provider_payment_id, amount_cents, currency, credits, status, created_at, updated_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.ProviderPaymentID,
		&p.AmountCents,
		&p.Currency,
		&p.Credits,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PaymentReference is the ledger reference of the credits granted for a provider payment.
func PaymentReference(providerPaymentID string) string {
	return "payment:" + providerPaymentID
}

const insertPaymentQ = `
    INSERT INTO payments (user_id, provider_payment_id, amount_cents, currency, credits, status)
    VALUES ($1, $2, $3, $4, $5, 'pending')
    ON CONFLICT (provider_payment_id) DO NOTHING
`

func (r *paymentRepo) Record(ctx context.Context, p *model.Payment) error {
	if _, err := r.pool.Exec(ctx, insertPaymentQ, p.UserID, p.ProviderPaymentID, p.AmountCents, p.Currency, p.Credits); err != nil {
		return fmt.Errorf("record payment %s: %w", p.ProviderPaymentID, err)
	}
	return nil
}

func (r *paymentRepo) ApplyStatus(ctx context.Context, p *model.Payment) (*model.Payment, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, false, fmt.Errorf("starting payment transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, insertPaymentQ, p.UserID, p.ProviderPaymentID, p.AmountCents, p.Currency, p.Credits); err != nil {
		return nil, false, fmt.Errorf("upsert payment %s: %w", p.ProviderPaymentID, err)
	}

	stored, err := scanPayment(tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider_payment_id = $1 FOR UPDATE`, p.ProviderPaymentID))
	if err != nil {
		return nil, false, fmt.Errorf("lock payment %s: %w", p.ProviderPaymentID, err)
	}

	// Succeeded is final. Failed may still be overturned by a late async success.
	if stored.Status == model.PaymentSucceeded || p.Status == stored.Status || p.Status == model.PaymentPending {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("committing payment %s: %w", p.ProviderPaymentID, err)
		}
		return stored, false, nil
	}

	const updateQ = `UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`
	if err := tx.QueryRow(ctx, updateQ, stored.ID, p.Status).Scan(&stored.UpdatedAt); err != nil {
		return nil, false, fmt.Errorf("update payment %s: %w", p.ProviderPaymentID, err)
	}
	stored.Status = p.Status

	credited := false
	if p.Status == model.PaymentSucceeded && stored.Credits > 0 {
		credited, err = insertEntryOnce(ctx, tx, stored.UserID, stored.Credits, model.CreditReasonPurchase, PaymentReference(stored.ProviderPaymentID))
		if err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing payment %s: %w", p.ProviderPaymentID, err)
	}
	return stored, credited, nil
}

func (r *paymentRepo) GetByID(ctx context.Context, userID, id string) (*model.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch payment %s: %w", id, err)
	}
	return p, nil
}

func (r *paymentRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.Payment, error) {
	q := `SELECT ` + paymentColumns + `
        FROM payments
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`
	return r.list(ctx, q, userID, limit, offset)
}

func (r *paymentRepo) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]model.Payment, error) {
	q := `SELECT ` + paymentColumns + `
        FROM payments
        WHERE status = 'pending' AND updated_at < $1
        ORDER BY updated_at ASC
        LIMIT $2`
	return r.list(ctx, q, olderThan, limit)
}

func (r *paymentRepo) list(ctx context.Context, q string, args ...any) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}
