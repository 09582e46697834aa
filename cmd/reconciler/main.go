package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"skechum/internal/config"
	"skechum/internal/database"
	"skechum/internal/logger"
	"skechum/internal/repository"
	"skechum/internal/service"

	"github.com/joho/godotenv"
)

func main() {
	once := flag.Bool("once", false, "Run a single reconciliation pass and exit")
	minAge := flag.Duration("min-age", 2*time.Minute, "Only refresh pending payments older than this")
	flag.Parse()

	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	payments := service.NewPaymentService(
		service.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret),
		repository.NewPaymentRepo(pool),
		repository.NewUserRepo(pool),
		service.BuildCreditPacks(cfg.StripeCreditPacks, cfg.CreditPackAmounts),
		cfg.StripeReturnURL,
		logger,
	)

	run := func() {
		if _, err := payments.Reconcile(ctx, *minAge, cfg.ReconcileBatchSize); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("Payment reconciliation failed")
		}
	}

	run()
	if *once {
		return
	}

	interval := time.Duration(cfg.ReconcileIntervalSec) * time.Second
	logger.Info().Dur("interval", interval).Msg("Payment reconciler started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Payment reconciler stopped gracefully")
			return
		case <-ticker.C:
			run()
		}
	}
}
