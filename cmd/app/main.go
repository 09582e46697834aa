package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skechum/internal/api/v1/router"
	"skechum/internal/config"
	"skechum/internal/database"
	"skechum/internal/logger"
	"skechum/internal/provider"
	"skechum/internal/pubsub"
	"skechum/internal/service"
	"skechum/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	logger := logger.New()

	// 1. Load configuration
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 2. Database
	if err := database.Migrate(ctx, database.DSN(cfg)); err != nil {
		logger.Fatal().Msgf("Failed to apply migrations: %v", err)
	}
	pool, err := database.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// 3. External clients
	s3Client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		logger.Fatal().Msgf("Failed to create S3 client: %v", err)
	}
	store := storage.NewS3Store(s3Client, cfg.S3Bucket, cfg.ImagePublicBaseURL(), logger)

	generator, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to create image provider: %v", err)
	}

	var publisher pubsub.Publisher = pubsub.NopPublisher{}
	if cfg.GCPProjectID != "" {
		p, err := pubsub.NewPublisher(ctx, cfg)
		if err != nil {
			logger.Fatal().Msgf("Failed to create Pub/Sub publisher: %v", err)
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Warn().Msg("GCP_PROJECT_ID not set, generation events are not published")
	}

	// 4. Build router
	handler := router.New(ctx, cfg, router.Deps{
		Pool:      pool,
		Store:     store,
		Generator: generator,
		Publisher: publisher,
		Gateway:   service.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret),
	}, logger)

	// 5. Create HTTP server; generation requests wait on the provider
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: time.Duration(cfg.ProviderTimeoutSec)*time.Second + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Msgf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Msgf("Listen: %s", err)
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutdown signal received, exiting...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Msgf("Server forced to shutdown: %v", err)
	}
	logger.Info().Msg("Server shut down gracefully")
}

// newGenerator builds the configured image provider. When PROVIDER_API_KEY_SECRET is set the key
// is read from Secret Manager instead of the environment.
func newGenerator(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (provider.Generator, error) {
	apiKey := cfg.ProviderAPIKey
	if cfg.ProviderAPIKeySecret != "" {
		secrets, err := service.NewSecretManagerService(ctx, cfg)
		if err != nil {
			return nil, err
		}
		defer secrets.Close()
		apiKey, err = secrets.AccessSecret(ctx, cfg.ProviderAPIKeySecret)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("Provider API key loaded from Secret Manager")
	}

	timeout := time.Duration(cfg.ProviderTimeoutSec) * time.Second
	switch cfg.Provider {
	case "gemini":
		return provider.NewGeminiGenerator(ctx, apiKey, cfg.GeminiModel, timeout, logger)
	default:
		return provider.NewHTTPGenerator(cfg.ProviderBaseURL, apiKey, timeout, logger)
	}
}
