package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skechum/internal/metrics"
	"skechum/internal/model"
	"skechum/internal/presenter"
	"skechum/internal/provider"
	"skechum/internal/pubsub"
	"skechum/internal/repository"
	"skechum/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GenerationResult is the outcome of a successful Generate call.
type GenerationResult struct {
	Image *model.GeneratedImage
	// Status is the final presenter status of the request.
	Status presenter.Status
	// Replayed is set when the image was returned for a repeated idempotency key.
	Replayed bool
}

// GenerationService runs one image generation end to end: credit check, provider call,
// storage and the atomic debit.
type GenerationService struct {
	credits     repository.CreditRepository
	images      repository.ImageRepository
	generations repository.GenerationRepository
	generator   provider.Generator
	store       storage.ImageStore
	publisher   pubsub.Publisher
	topic       string
	cost        int
	logger      zerolog.Logger
	now         func() time.Time
}

// GenerationDeps groups the collaborators of GenerationService.
type GenerationDeps struct {
	Credits     repository.CreditRepository
	Images      repository.ImageRepository
	Generations repository.GenerationRepository
	Generator   provider.Generator
	Store       storage.ImageStore
	Publisher   pubsub.Publisher
	Topic       string
	Cost        int
}

func NewGenerationService(deps GenerationDeps, logger zerolog.Logger) *GenerationService {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = pubsub.NopPublisher{}
	}
	return &GenerationService{
		credits:     deps.Credits,
		images:      deps.Images,
		generations: deps.Generations,
		generator:   deps.Generator,
		store:       deps.Store,
		publisher:   publisher,
		topic:       deps.Topic,
		cost:        deps.Cost,
		logger:      logger.With().Str("service", "GenerationService").Logger(),
		now:         time.Now,
	}
}

// Generate produces an image for userID and debits the generation cost. Provider failures leave
// the ledger and the gallery untouched. A request carrying an idempotency key already used by the
// user returns the stored image without charging again.
func (s *GenerationService) Generate(ctx context.Context, userID string, req model.GenerationRequest) (*GenerationResult, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	log := s.logger.With().Str("user_id", userID).Logger()
	tracker := presenter.NewTracker(func(from, to presenter.Status) {
		log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("Generation status changed")
	})
	s.step(tracker, tracker.Submit)

	if req.IdempotencyKey != "" {
		existing, err := s.images.GetByIdempotencyKey(ctx, userID, req.IdempotencyKey)
		switch {
		case err == nil:
			metrics.RecordGeneration(metrics.OutcomeReplayed, 0)
			return s.replay(tracker, existing), nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, s.fail(tracker, metrics.OutcomeInternal, 0, fmt.Errorf("lookup idempotency key: %w", err))
		}
	}

	balance, err := s.credits.GetBalance(ctx, userID)
	if err != nil {
		return nil, s.fail(tracker, metrics.OutcomeInternal, 0, fmt.Errorf("get balance: %w", err))
	}
	if balance < s.cost {
		log.Info().Int("balance", balance).Int("cost", s.cost).Msg("Generation rejected for insufficient credits")
		return nil, s.fail(tracker, metrics.OutcomeInsufficient, 0, ErrInsufficientCredits)
	}

	s.step(tracker, tracker.Start)
	started := s.now()
	out, err := s.generator.Generate(ctx, req)
	elapsed := s.now().Sub(started)
	var format model.Format
	if err == nil {
		format, err = outputFormat(req.Format, out)
	}
	if err != nil {
		outcome, sentinel := metrics.OutcomeProviderFail, ErrProviderFailed
		if provider.IsTimeout(err) {
			outcome, sentinel = metrics.OutcomeTimeout, ErrProviderTimeout
		}
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("Image provider call failed")
		s.publish(ctx, pubsub.GenerationEvent{
			Type:   pubsub.EventGenerationFailed,
			UserID: userID,
			Style:  string(req.Style),
			Size:   string(req.Size),
			Format: string(req.Format),
			Error:  outcome,
		})
		return nil, s.fail(tracker, outcome, elapsed, fmt.Errorf("%w: %v", sentinel, err))
	}

	img := &model.GeneratedImage{
		ID:               uuid.NewString(),
		UserID:           userID,
		URL:              out.URL,
		Prompt:           req.Prompt,
		Style:            req.Style,
		Size:             req.Size,
		Format:           format,
		GenerationTimeMs: ptr(elapsed.Milliseconds()),
	}
	if req.IdempotencyKey != "" {
		img.IdempotencyKey = ptr(req.IdempotencyKey)
	}
	if format != req.Format {
		log.Warn().Str("requested", string(req.Format)).Str("returned", string(format)).Msg("Provider returned a different image format")
	}

	if len(out.Data) > 0 {
		key := fmt.Sprintf("images/%s/%s.%s", userID, img.ID, format.Extension())
		url, err := s.store.Put(ctx, key, out.Data, format.ContentType())
		if err != nil {
			return nil, s.fail(tracker, metrics.OutcomeInternal, elapsed, fmt.Errorf("store image: %w", err))
		}
		img.URL = url
		img.StoragePath = ptr(key)
	}

	stored, err := s.generations.Commit(ctx, img, s.cost)
	if err != nil {
		s.discard(ctx, img)
		switch {
		case errors.Is(err, repository.ErrDuplicateIdempotencyKey) && stored != nil:
			metrics.RecordGeneration(metrics.OutcomeReplayed, elapsed)
			return s.replay(tracker, stored), nil
		case errors.Is(err, repository.ErrInsufficientBalance):
			log.Info().Msg("Balance consumed by a concurrent generation")
			return nil, s.fail(tracker, metrics.OutcomeInsufficient, elapsed, ErrInsufficientCredits)
		}
		log.Error().Err(err).Str("image_id", img.ID).Msg("Failed to commit generation")
		return nil, s.fail(tracker, metrics.OutcomeInternal, elapsed, fmt.Errorf("commit generation: %w", err))
	}

	s.step(tracker, tracker.Complete)
	metrics.RecordGeneration(metrics.OutcomeSucceeded, elapsed)
	metrics.RecordCredits(-s.cost)
	s.publish(ctx, pubsub.GenerationEvent{
		Type:             pubsub.EventGenerationCompleted,
		UserID:           userID,
		ImageID:          stored.ID,
		Style:            string(stored.Style),
		Size:             string(stored.Size),
		Format:           string(stored.Format),
		GenerationTimeMs: elapsed.Milliseconds(),
	})
	log.Info().Str("image_id", stored.ID).Dur("elapsed", elapsed).Msg("Image generated")
	return &GenerationResult{Image: stored, Status: tracker.Status()}, nil
}

func (s *GenerationService) replay(tracker *presenter.Tracker, img *model.GeneratedImage) *GenerationResult {
	s.step(tracker, tracker.Start)
	s.step(tracker, tracker.Complete)
	return &GenerationResult{Image: img, Status: tracker.Status(), Replayed: true}
}

func (s *GenerationService) fail(tracker *presenter.Tracker, outcome string, elapsed time.Duration, err error) error {
	if tracker.Status() == presenter.StatusQueued {
		s.step(tracker, tracker.Start)
	}
	s.step(tracker, tracker.Fail)
	metrics.RecordGeneration(outcome, elapsed)
	return err
}

// step applies one tracker transition. The server drives the tracker in a fixed order, so a
// rejected transition is a bug worth seeing in the logs but never fails the request.
func (s *GenerationService) step(tracker *presenter.Tracker, transition func() error) {
	if err := transition(); err != nil {
		s.logger.Error().Err(err).Str("status", string(tracker.Status())).Msg("Generation status transition rejected")
	}
}

// outputFormat is the format of the bytes the provider returned. URL outputs and untyped data
// keep the requested format; data of a type we cannot store is an invalid response.
func outputFormat(requested model.Format, out *provider.Output) (model.Format, error) {
	if len(out.Data) == 0 || out.MimeType == "" {
		return requested, nil
	}
	format, ok := model.FormatFromContentType(out.MimeType)
	if !ok {
		return "", &provider.Error{Kind: provider.KindInvalidResponse, Err: fmt.Errorf("unsupported image type %q", out.MimeType)}
	}
	return format, nil
}

// discard removes an uploaded object whose generation was not committed.
func (s *GenerationService) discard(ctx context.Context, img *model.GeneratedImage) {
	if img.StoragePath == nil {
		return
	}
	if err := s.store.Delete(context.WithoutCancel(ctx), *img.StoragePath); err != nil {
		s.logger.Warn().Err(err).Str("key", *img.StoragePath).Msg("Failed to delete orphaned image object")
	}
}

// publish is best effort; event delivery never affects the request outcome.
func (s *GenerationService) publish(ctx context.Context, event pubsub.GenerationEvent) {
	event.OccurredAt = s.now().UTC()
	if _, err := pubsub.PublishEvent(context.WithoutCancel(ctx), s.publisher, s.topic, event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", event.Type).Msg("Failed to publish generation event")
	}
}

func ptr[T any](v T) *T {
	return &v
}
