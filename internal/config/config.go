// Package config loads process settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every process-level setting of the council server.
type Config struct {
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	GoogleAPIKey    string `envconfig:"GOOGLE_API_KEY"`

	OpenAIBaseURL    string `envconfig:"OPENAI_BASE_URL" validate:"omitempty,url"`
	AnthropicBaseURL string `envconfig:"ANTHROPIC_BASE_URL" validate:"omitempty,url"`
	GoogleBaseURL    string `envconfig:"GOOGLE_BASE_URL" validate:"omitempty,url"`

	UseVertexAI bool   `envconfig:"USE_VERTEX_AI"`
	GCPProject  string `envconfig:"GCP_PROJECT" validate:"required_if=UseVertexAI true"`
	GCPLocation string `envconfig:"GCP_LOCATION" default:"us-central1"`

	SearchAPIKey string `envconfig:"SEARCH_API_KEY"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`

	DataDir  string `envconfig:"DATA_DIR" default:"data/conversations" validate:"required"`
	FilesDir string `envconfig:"FILES_DIR" default:"data/files" validate:"required"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
	Port        int      `envconfig:"PORT" default:"8001" validate:"min=1,max=65535"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	LogPretty bool   `envconfig:"LOG_PRETTY"`

	// CouncilConfig is an optional YAML file of council tuning.
	CouncilConfig string `envconfig:"COUNCIL_CONFIG"`

	// MaxUploadBytes caps the size of one multipart upload request.
	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"52428800" validate:"min=1"`

	// ProviderRateLimit is requests per second per provider family; zero
	// disables limiting.
	ProviderRateLimit float64 `envconfig:"PROVIDER_RATE_LIMIT" validate:"min=0"`
	ProviderRateBurst int     `envconfig:"PROVIDER_RATE_BURST" default:"5" validate:"min=1"`

	// CircuitBreakerFailures is the consecutive transient failures that
	// open a provider's breaker; zero disables it.
	CircuitBreakerFailures int           `envconfig:"CIRCUIT_BREAKER_FAILURES" validate:"min=0"`
	CircuitBreakerCooldown time.Duration `envconfig:"CIRCUIT_BREAKER_COOLDOWN" default:"30s" validate:"min=0"`
}

// Load reads the given .env files, or ".env" when none are named, then the
// environment. Missing files are ignored and variables already set in the
// environment win.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
