package service

import (
	"context"
	"errors"

	"skechum/internal/model"
	"skechum/internal/repository"
	"skechum/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ImageService serves the caller's gallery.
type ImageService interface {
	List(ctx context.Context, userID string, limit, offset int) ([]model.GeneratedImage, int, error)
	Get(ctx context.Context, userID, id string) (*model.GeneratedImage, error)
	// Delete removes the image and its stored object. The ledger is not touched.
	Delete(ctx context.Context, userID, id string) error
}

type imageService struct {
	repo   repository.ImageRepository
	store  storage.ImageStore
	logger zerolog.Logger
}

func NewImageService(repo repository.ImageRepository, store storage.ImageStore, logger zerolog.Logger) ImageService {
	return &imageService{repo: repo, store: store, logger: logger.With().Str("service", "ImageService").Logger()}
}

func (s *imageService) List(ctx context.Context, userID string, limit, offset int) ([]model.GeneratedImage, int, error) {
	if userID == "" {
		return nil, 0, ErrUnauthorized
	}
	images, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return images, total, nil
}

func (s *imageService) Get(ctx context.Context, userID, id string) (*model.GeneratedImage, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrImageNotFound
	}
	img, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}
	return img, nil
}

func (s *imageService) Delete(ctx context.Context, userID, id string) error {
	img, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrImageNotFound
		}
		return err
	}
	if img.StoragePath != nil && s.store != nil {
		if err := s.store.Delete(ctx, *img.StoragePath); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Str("key", *img.StoragePath).Msg("Image row deleted but object removal failed")
		}
	}
	return nil
}
