package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Digest struct {
	Port     string `env:"PORT"      envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppURL   string `env:"APP_URL,required,notEmpty"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"db.sqlite"`

	SupabaseURL       string `env:"SUPABASE_URL"`
	SupabaseAnonKey   string `env:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string `env:"SUPABASE_JWT_SECRET"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	StripePriceMonthly  string `env:"STRIPE_PRICE_MONTHLY"`
	StripePriceYearly   string `env:"STRIPE_PRICE_YEARLY"`

	LLMProvider     string `env:"LLM_PROVIDER"      envDefault:"anthropic"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	EmailFrom    string `env:"EMAIL_FROM"     envDefault:"Daily Digest <digest@yourdomain.com>"`

	CronSecret       string        `env:"CRON_SECRET"`
	DigestLookback   time.Duration `env:"DIGEST_LOOKBACK"   envDefault:"24h"`
	SchedulerEnabled bool          `env:"SCHEDULER_ENABLED" envDefault:"false"`
}

// StripePrices maps checkout plan names to Stripe price IDs. Plans without a
// configured price are left out.
func (c Digest) StripePrices() map[string]string {
	prices := make(map[string]string, 2)

	if p := strings.TrimSpace(c.StripePriceMonthly); p != "" {
		prices["monthly"] = p
	}
	if p := strings.TrimSpace(c.StripePriceYearly); p != "" {
		prices["yearly"] = p
	}

	return prices
}

type Agent struct {
	Port      string `env:"PORT"       envDefault:"3000"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	GitHubOrg string `env:"GITHUB_ORG" envDefault:"brandnewbox"`

	SearchCacheTTL  time.Duration `env:"SEARCH_CACHE_TTL"  envDefault:"5m"`
	SearchCacheSize int           `env:"SEARCH_CACHE_SIZE" envDefault:"256"`
}

func LoadDigest() (Digest, error) {
	if err := loadDotEnv(); err != nil {
		return Digest{}, err
	}

	var cfg Digest
	if err := env.Parse(&cfg); err != nil {
		return Digest{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.AppURL = strings.TrimRight(strings.TrimSpace(cfg.AppURL), "/")

	return cfg, nil
}

func LoadAgent() (Agent, error) {
	if err := loadDotEnv(); err != nil {
		return Agent{}, err
	}

	var cfg Agent
	if err := env.Parse(&cfg); err != nil {
		return Agent{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// LogLevel converts a LOG_LEVEL value into a slog level, falling back to info.
func LogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadDotEnv reads .env when present. A missing file is not an error.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}
