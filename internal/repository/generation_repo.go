package repository

import (
	"context"
	"errors"
	"fmt"

	"skechum/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GenerationRepository persists the outcome of a successful generation.
type GenerationRepository interface {
	// Commit atomically re-checks the balance, debits cost and stores img. On ErrDuplicateIdempotencyKey the
	// returned image is the one stored earlier under the same key; nothing new is written.
	Commit(ctx context.Context, img *model.GeneratedImage, cost int) (*model.GeneratedImage, error)
}

type generationRepo struct {
	pool *pgxpool.Pool
}

// NewGenerationRepo creates a new GenerationRepository.
func NewGenerationRepo(pool *pgxpool.Pool) GenerationRepository {
	return &generationRepo{pool: pool}
}

func (r *generationRepo) Commit(ctx context.Context, img *model.GeneratedImage, cost int) (*model.GeneratedImage, error) {
	// Read committed is enough: the advisory lock orders all ledger writers of the user and every
	// statement after it sees the rows they committed.
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("starting generation transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := lockUser(ctx, tx, img.UserID); err != nil {
		return nil, err
	}

	if img.IdempotencyKey != nil {
		existing, err := imageByKey(ctx, tx, img.UserID, *img.IdempotencyKey)
		if err == nil {
			return existing, ErrDuplicateIdempotencyKey
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	balance, err := balanceOf(ctx, tx, img.UserID)
	if err != nil {
		return nil, err
	}
	if balance < cost {
		return nil, ErrInsufficientBalance
	}

	const insertImageQ = `
        INSERT INTO generated_images (id, user_id, url, storage_path, prompt, style, size, format, generation_time_ms, idempotency_key)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING created_at
    `
	stored := *img
	err = tx.QueryRow(ctx, insertImageQ,
		img.ID, img.UserID, img.URL, img.StoragePath, img.Prompt,
		img.Style, img.Size, img.Format, img.GenerationTimeMs, img.IdempotencyKey,
	).Scan(&stored.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateIdempotencyKey
		}
		return nil, fmt.Errorf("insert image %s: %w", img.ID, err)
	}

	if cost > 0 {
		reference := "image:" + img.ID
		if _, err := insertEntry(ctx, tx, img.UserID, -cost, model.CreditReasonGeneration, &reference); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing generation for user %s: %w", img.UserID, err)
	}
	return &stored, nil
}
