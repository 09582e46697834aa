package service

import (
	"context"
	"errors"

	"skechum/internal/model"
	"skechum/internal/repository"
)

type UserService interface {
	// Create registers the profile and grants the signup credits once. Repeated calls return the
	// existing profile.
	Create(ctx context.Context, u *model.User) (*model.User, bool, error)
	Get(ctx context.Context, id string) (*model.User, error)
	// GetWithBalance returns the profile and the current ledger balance.
	GetWithBalance(ctx context.Context, id string) (*model.User, int, error)
}

type userService struct {
	userRepo      repository.UserRepository
	creditRepo    repository.CreditRepository
	signupCredits int
}

func NewUserService(userRepo repository.UserRepository, creditRepo repository.CreditRepository, signupCredits int) UserService {
	return &userService{userRepo: userRepo, creditRepo: creditRepo, signupCredits: signupCredits}
}

func (s *userService) Create(ctx context.Context, u *model.User) (*model.User, bool, error) {
	if u.UserID == "" {
		return nil, false, ErrUnauthorized
	}
	created, err := s.userRepo.CreateUser(ctx, u, s.signupCredits)
	if err != nil {
		return nil, false, err
	}
	return u, created, nil
}

func (s *userService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *userService) GetWithBalance(ctx context.Context, id string) (*model.User, int, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	balance, err := s.creditRepo.GetBalance(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return u, balance, nil
}
