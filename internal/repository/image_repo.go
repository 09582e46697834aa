package repository

import (
	"context"
	"errors"
	"fmt"

	"skechum/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ImageRepository reads and removes generated images. Images are created only through GenerationRepository.Commit.
type ImageRepository interface {
	GetByID(ctx context.Context, userID, id string) (*model.GeneratedImage, error)
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*model.GeneratedImage, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.GeneratedImage, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, id string) error
}

type imageRepo struct {
	pool *pgxpool.Pool
}

// NewImageRepo creates a new ImageRepository.
func NewImageRepo(pool *pgxpool.Pool) ImageRepository {
	return &imageRepo{pool: pool}
}

const imageColumns = `id, user_id, url, storage_path, prompt, style, size, format, generation_time_ms, idempotency_key, created_at`

func scanImage(row pgx.Row) (*model.GeneratedImage, error) {
	var img model.GeneratedImage
	err := row.Scan(
		&img.ID,
		&img.UserID,
		&img.URL,
		&img.StoragePath,
		&img.Prompt,
		&img.Style,
		&img.Size,
		&img.Format,
		&img.GenerationTimeMs,
		&img.IdempotencyKey,
		&img.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *imageRepo) GetByID(ctx context.Context, userID, id string) (*model.GeneratedImage, error) {
	q := `SELECT ` + imageColumns + ` FROM generated_images WHERE id = $1 AND user_id = $2`
	img, err := scanImage(r.pool.QueryRow(ctx, q, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch image %s: %w", id, err)
	}
	return img, nil
}

func (r *imageRepo) GetByIdempotencyKey(ctx context.Context, userID, key string) (*model.GeneratedImage, error) {
	return imageByKey(ctx, r.pool, userID, key)
}

func imageByKey(ctx context.Context, q querier, userID, key string) (*model.GeneratedImage, error) {
	query := `SELECT ` + imageColumns + ` FROM generated_images WHERE user_id = $1 AND idempotency_key = $2`
	img, err := scanImage(q.QueryRow(ctx, query, userID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch image by idempotency key for user %s: %w", userID, err)
	}
	return img, nil
}

func (r *imageRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.GeneratedImage, error) {
	q := `SELECT ` + imageColumns + `
        FROM generated_images
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list images for user %s: %w", userID, err)
	}
	defer rows.Close()

	images := []model.GeneratedImage{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}

func (r *imageRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM generated_images WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count images for user %s: %w", userID, err)
	}
	return n, nil
}

func (r *imageRepo) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM generated_images WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete image %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
