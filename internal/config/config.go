package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port               string `envconfig:"PORT" default:"8080"`
	Environment        string `envconfig:"ENV" default:"production"`
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`
	JWTSecret          string `envconfig:"SUPABASE_JWT_SECRET" required:"true"`

	S3URL           string `envconfig:"S3_URL" required:"true"`
	S3Bucket        string `envconfig:"S3_BUCKET" default:"generated-images"`
	S3Region        string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey     string `envconfig:"S3_ACCESS_KEY" required:"true"`
	S3SecretKey     string `envconfig:"S3_SECRET_KEY" required:"true"`
	S3PublicBaseURL string `envconfig:"S3_PUBLIC_BASE_URL"`

	// Stripe settings
	StripeSecretKey     string            `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret string            `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	StripeReturnURL     string            `envconfig:"STRIPE_RETURN_URL" default:"http://localhost:3000/profile"`
	StripeCreditPacks   map[string]string `envconfig:"STRIPE_CREDIT_PACKS"`
	CreditPackAmounts   map[string]int    `envconfig:"CREDIT_PACK_AMOUNTS" default:"starter:20,creator:60,studio:150"`

	// Credit accounting
	GenerationCost  int `envconfig:"GENERATION_COST" default:"1"`
	SignupCredits   int `envconfig:"SIGNUP_CREDITS" default:"5"`
	MaxPromptLength int `envconfig:"MAX_PROMPT_LENGTH" default:"1000"`

	// Image generation provider settings
	Provider             string `envconfig:"PROVIDER" default:"http"`
	ProviderBaseURL      string `envconfig:"PROVIDER_BASE_URL"`
	ProviderAPIKey       string `envconfig:"PROVIDER_API_KEY"`
	ProviderAPIKeySecret string `envconfig:"PROVIDER_API_KEY_SECRET"`
	ProviderTimeoutSec   int    `envconfig:"PROVIDER_TIMEOUT_SEC" default:"90"`
	GeminiModel          string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash-image"`

	// GCP settings
	GCPProjectID          string `envconfig:"GCP_PROJECT_ID"`
	PubSubGenerationTopic string `envconfig:"PUBSUB_GENERATION_TOPIC" default:"generation-events"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"10"`
	RateLimitBurst     int `envconfig:"RATE_LIMIT_BURST" default:"3"`

	// Payment reconciler settings
	ReconcileIntervalSec int `envconfig:"RECONCILE_INTERVAL_SEC" default:"300"`
	ReconcileBatchSize   int `envconfig:"RECONCILE_BATCH_SIZE" default:"50"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ReconcileIntervalSec <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL_SEC must be positive, got %d", c.ReconcileIntervalSec)
	}
	if c.ReconcileBatchSize <= 0 {
		return fmt.Errorf("RECONCILE_BATCH_SIZE must be positive, got %d", c.ReconcileBatchSize)
	}
	if c.ProviderTimeoutSec <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT_SEC must be positive, got %d", c.ProviderTimeoutSec)
	}
	if c.GenerationCost < 0 {
		return fmt.Errorf("GENERATION_COST must not be negative, got %d", c.GenerationCost)
	}
	return nil
}

// IsDevelopment reports whether the app runs against local services.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// ImagePublicBaseURL returns the URL prefix under which stored images are served.
// Supabase exposes public buckets at <project>/storage/v1/object/public/<bucket>.
func (c *Config) ImagePublicBaseURL() string {
	if c.S3PublicBaseURL != "" {
		return strings.TrimRight(c.S3PublicBaseURL, "/")
	}
	base := strings.TrimSuffix(strings.TrimRight(c.S3URL, "/"), "/s3")
	return base + "/object/public/" + c.S3Bucket
}
