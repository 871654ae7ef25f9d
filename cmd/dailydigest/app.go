package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dailydigest/internal/auth"
	"dailydigest/internal/billing"
	"dailydigest/internal/config"
	"dailydigest/internal/database"
	"dailydigest/internal/digest"
	"dailydigest/internal/digestapi"
	"dailydigest/internal/feed"
	"dailydigest/internal/ghclient"
	"dailydigest/internal/llm"
	"dailydigest/internal/mailer"
	"dailydigest/internal/metrics"
	"dailydigest/internal/ratelimiter"
)

const (
	githubRequestEvery = 2 * time.Second
	githubRequestBurst = 5
)

type app struct {
	cfg      config.Digest
	db       *database.Database
	metrics  *metrics.Metrics
	pipeline *digest.Pipeline
	runner   *digest.Runner
	deps     digestapi.Deps
	log      *slog.Logger
}

func newLogger(level string) *slog.Logger {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.LogLevel(level)}))
	slog.SetDefault(log)

	return log
}

// loadConfig reads the environment and installs the JSON logger.
func loadConfig() (config.Digest, *slog.Logger, error) {
	cfg, err := config.LoadDigest()
	if err != nil {
		return config.Digest{}, nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, newLogger(cfg.LogLevel), nil
}

func openDatabase(ctx context.Context, cfg config.Digest, log *slog.Logger) (*database.Database, error) {
	db, err := database.New(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	log.InfoContext(ctx, "DB is initialized",
		"driver", db.Driver())

	return db, nil
}

// newApp wires every collaborator. Optional vendors that are not configured
// are left out and logged; handlers that need them answer with an error.
func newApp(ctx context.Context, cfg config.Digest, log *slog.Logger) (*app, error) {
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	githubLimiter := ratelimiter.New("github", githubRequestEvery, githubRequestBurst, log)

	newGitHub := func(token string) *ghclient.Client {
		return ghclient.New(token, log, ghclient.WithLimiter(githubLimiter), ghclient.WithMetrics(m))
	}

	pcfg := digest.PipelineConfig{
		Activity: func(token string) digest.ActivitySource { return newGitHub(token) },
		Feeds:    feed.NewFetcher(db, m, cfg.DigestLookback, log),
		History:  db,
		Metrics:  m,
		AppURL:   cfg.AppURL,
		Lookback: cfg.DigestLookback,
	}

	if completer := newCompleter(ctx, cfg, log); completer != nil {
		pcfg.Completer = completer
	}

	if sender, sendErr := mailer.NewResend(cfg.ResendAPIKey, cfg.EmailFrom, log); sendErr == nil {
		pcfg.Sender = sender
	} else {
		log.WarnContext(ctx, "Email sender is not configured so digests will fail",
			"error", sendErr,
			"envVar", "RESEND_API_KEY")
	}

	pipeline := digest.NewPipeline(pcfg, log)
	runner := digest.NewRunner(db, pipeline, log)

	authClient := auth.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, log)
	if !authClient.Configured() {
		log.WarnContext(ctx, "Supabase is not configured so sign in will fail",
			"envVars", []string{"SUPABASE_URL", "SUPABASE_ANON_KEY"})
	}

	deps := digestapi.Deps{
		Store:    db,
		Auth:     authClient,
		Sessions: auth.NewSessions(authClient, cfg.SupabaseJWTSecret, log),
		GitHub:   ghclient.NewOAuth(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.AppURL+"/api/auth/github/callback"),
		GitHubUser: func(token string) digestapi.GitHubAccount {
			return newGitHub(token)
		},
		Feeds:      feed.NewResolver(log),
		Digests:    pipeline,
		Runner:     runner,
		Metrics:    m,
		AppURL:     cfg.AppURL,
		CronSecret: cfg.CronSecret,
	}

	if gateway, stripeErr := billing.NewStripe(cfg.StripeSecretKey, cfg.StripePrices(), cfg.AppURL, log); stripeErr == nil {
		deps.Billing = gateway
	} else {
		log.WarnContext(ctx, "Stripe is not configured so checkout is disabled",
			"error", stripeErr,
			"envVar", "STRIPE_SECRET_KEY")
	}

	if cfg.StripeWebhookSecret != "" {
		deps.Webhooks = billing.NewWebhooks(db, cfg.StripeWebhookSecret, log)
	}

	return &app{
		cfg:      cfg,
		db:       db,
		metrics:  m,
		pipeline: pipeline,
		runner:   runner,
		deps:     deps,
		log:      log,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.db.Close(); err != nil {
		a.log.ErrorContext(ctx, "Failed to close db", "error", err)
	}
}

// newCompleter returns the server-side model used for digests, or nil.
func newCompleter(ctx context.Context, cfg config.Digest, log *slog.Logger) llm.Completer {
	factory, err := llm.NewFactory(cfg.LLMProvider)
	if err != nil {
		log.ErrorContext(ctx, "Unknown LLM provider so digests will fail",
			"error", err,
			"provider", cfg.LLMProvider)
		return nil
	}

	apiKey := cfg.AnthropicAPIKey
	if cfg.LLMProvider == llm.ProviderOpenAI {
		apiKey = cfg.OpenAIAPIKey
	}

	completer, err := factory(apiKey)
	if err != nil {
		log.WarnContext(ctx, "LLM is not configured so digests will fail",
			"error", err,
			"provider", cfg.LLMProvider)
		return nil
	}

	log.InfoContext(ctx, "LLM is initialized",
		"provider", cfg.LLMProvider)

	return completer
}
