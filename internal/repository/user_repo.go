package repository

import (
	"context"
	"errors"
	"fmt"

	"skechum/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SignupReference marks the one-time signup grant in the ledger.
const SignupReference = "signup"

type UserRepository interface {
	// CreateUser inserts the profile if missing and grants signupCredits once. It reports whether the
	// profile was newly created.
	CreateUser(ctx context.Context, u *model.User, signupCredits int) (bool, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error
}

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

const userColumns = `user_id, name, email, avatar_url, stripe_customer_id, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.UserID, &u.Name, &u.Email, &u.AvatarURL, &u.StripeCustomerID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) CreateUser(ctx context.Context, u *model.User, signupCredits int) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, fmt.Errorf("starting user creation transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	created := true
	insertQ := `INSERT INTO user_profiles (user_id, name, email, avatar_url)
              VALUES ($1, $2, $3, $4)
              ON CONFLICT (user_id) DO NOTHING
              RETURNING ` + userColumns
	stored, err := scanUser(tx.QueryRow(ctx, insertQ, u.UserID, u.Name, u.Email, u.AvatarURL))
	if errors.Is(err, pgx.ErrNoRows) {
		created = false
		stored, err = scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM user_profiles WHERE user_id = $1`, u.UserID))
	}
	if err != nil {
		return false, fmt.Errorf("create user %s: %w", u.UserID, err)
	}

	if signupCredits > 0 {
		if _, err := insertEntryOnce(ctx, tx, u.UserID, signupCredits, model.CreditReasonSignupBonus, SignupReference); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing user %s: %w", u.UserID, err)
	}
	*u = *stored
	return created, nil
}

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM user_profiles WHERE user_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch user %s: %w", id, err)
	}
	return u, nil
}

func (r *userRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	const q = `UPDATE user_profiles SET stripe_customer_id = $2, updated_at = NOW() WHERE user_id = $1`
	tag, err := r.pool.Exec(ctx, q, userID, customerID)
	if err != nil {
		return fmt.Errorf("update stripe customer for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
