package router

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"skechum/internal/api/v1/handler"
	"skechum/internal/config"
	"skechum/internal/metrics"
	"skechum/internal/middleware"
	"skechum/internal/provider"
	"skechum/internal/pubsub"
	"skechum/internal/repository"
	"skechum/internal/service"
	"skechum/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Deps are the external clients the API is built on.
type Deps struct {
	Pool      *pgxpool.Pool
	Store     storage.ImageStore
	Generator provider.Generator
	Publisher pubsub.Publisher
	Gateway   service.PaymentGateway
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New wires repositories, services and handlers and returns the root handler. The rate limiter
// cleanup loop stops when ctx is done.
func New(ctx context.Context, cfg *config.Config, deps Deps, logger zerolog.Logger) http.Handler {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initialized")

	// 1. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 2. Initialize repositories & services & handlers
	userRepo := repository.NewUserRepo(deps.Pool)
	creditRepo := repository.NewCreditRepo(deps.Pool)
	imageRepo := repository.NewImageRepo(deps.Pool)
	generationRepo := repository.NewGenerationRepo(deps.Pool)
	paymentRepo := repository.NewPaymentRepo(deps.Pool)

	composer := service.NewComposer(cfg.MaxPromptLength)
	generationSvc := service.NewGenerationService(service.GenerationDeps{
		Credits:     creditRepo,
		Images:      imageRepo,
		Generations: generationRepo,
		Generator:   deps.Generator,
		Store:       deps.Store,
		Publisher:   deps.Publisher,
		Topic:       cfg.PubSubGenerationTopic,
		Cost:        cfg.GenerationCost,
	}, logger)
	creditSvc := service.NewCreditService(creditRepo, logger)
	imageSvc := service.NewImageService(imageRepo, deps.Store, logger)
	userSvc := service.NewUserService(userRepo, creditRepo, cfg.SignupCredits)
	paymentSvc := service.NewPaymentService(
		deps.Gateway,
		paymentRepo,
		userRepo,
		service.BuildCreditPacks(cfg.StripeCreditPacks, cfg.CreditPackAmounts),
		cfg.StripeReturnURL,
		logger,
	)

	handlers := Handlers{
		Generation: handler.NewGenerationHandler(composer, generationSvc, logger),
		Credit:     handler.NewCreditHandler(creditSvc, logger),
		Image:      handler.NewImageHandler(imageSvc, logger),
		Payment:    handler.NewPaymentHandler(paymentSvc, validate, logger),
		User:       handler.NewUserHandler(userSvc, validate, logger),
	}

	// 3. Initialize middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst, logger)
	go cleanupLoop(ctx, limiter, time.Minute)

	var pinger Pinger
	if deps.Pool != nil {
		pinger = deps.Pool
	}
	return Routes(handlers, authMiddleware, limiter.Handler, pinger, logger)
}

// Handlers groups the v1 route handlers.
type Handlers struct {
	Generation *handler.GenerationHandler
	Credit     *handler.CreditHandler
	Image      *handler.ImageHandler
	Payment    *handler.PaymentHandler
	User       *handler.UserHandler
}

// Routes mounts the handlers under /v1 and wraps the mux with CORS, metrics and request logging.
func Routes(h Handlers, authMw, rateMw func(http.Handler) http.Handler, db Pinger, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Create a subrouter for API v1 with the /v1 prefix
	apiV1Mux := http.NewServeMux()
	h.Generation.RegisterRoutes(apiV1Mux, authMw, rateMw)
	h.Credit.RegisterRoutes(apiV1Mux, authMw)
	h.Image.RegisterRoutes(apiV1Mux, authMw)
	h.Payment.RegisterRoutes(apiV1Mux, authMw)
	h.User.RegisterRoutes(apiV1Mux, authMw)

	// Mount the API v1 routes under /v1
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", healthz(db))

	// Redirect /api/* to /v1/* for backward compatibility
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/")
		http.Redirect(w, r, "/v1/"+rest, http.StatusMovedPermanently)
	})

	// Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger)(metrics.InstrumentHandler(c.Handler(mux)))
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "database": err.Error()})
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func cleanupLoop(ctx context.Context, limiter *middleware.RateLimiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Cleanup()
		}
	}
}
