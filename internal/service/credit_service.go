package service

import (
	"context"
	"errors"

	"skechum/internal/metrics"
	"skechum/internal/model"
	"skechum/internal/repository"

	"github.com/rs/zerolog"
)

// CreditService exposes the ledger. It never updates or deletes entries.
type CreditService interface {
	GetBalance(ctx context.Context, userID string) (int, error)
	ListEntries(ctx context.Context, userID string, limit, offset int) ([]model.CreditLogEntry, error)
	// AppendEntry records an adjustment. A repeated reference is a no-op that returns the
	// ErrDuplicateEntry of the repository.
	AppendEntry(ctx context.Context, userID string, delta int, reason string, reference *string) (*model.CreditLogEntry, error)
}

type creditService struct {
	repo   repository.CreditRepository
	logger zerolog.Logger
}

func NewCreditService(repo repository.CreditRepository, logger zerolog.Logger) CreditService {
	return &creditService{repo: repo, logger: logger.With().Str("service", "CreditService").Logger()}
}

func (s *creditService) GetBalance(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUnauthorized
	}
	return s.repo.GetBalance(ctx, userID)
}

func (s *creditService) ListEntries(ctx context.Context, userID string, limit, offset int) ([]model.CreditLogEntry, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	return s.repo.ListEntries(ctx, userID, limit, offset)
}

func (s *creditService) AppendEntry(ctx context.Context, userID string, delta int, reason string, reference *string) (*model.CreditLogEntry, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if delta == 0 {
		return nil, errors.New("credit delta must be non-zero")
	}
	entry, err := s.repo.AppendEntry(ctx, userID, delta, reason, reference)
	if err != nil {
		if !errors.Is(err, repository.ErrDuplicateEntry) {
			s.logger.Error().Err(err).Str("user_id", userID).Int("delta", delta).Msg("Failed to append ledger entry")
		}
		return nil, err
	}
	metrics.RecordCredits(delta)
	return entry, nil
}
