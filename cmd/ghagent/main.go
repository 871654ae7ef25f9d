package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"dailydigest/internal/agent"
	"dailydigest/internal/agentapi"
	"dailydigest/internal/config"
	"dailydigest/internal/ghclient"
	"dailydigest/internal/llm"
	"dailydigest/internal/metrics"
	"dailydigest/internal/ratelimiter"
)

const (
	githubRequestEvery = 2 * time.Second
	githubRequestBurst = 5
	readHeaderTimeout  = 10 * time.Second
	shutdownTimeout    = 15 * time.Second
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	start := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAgent()
	if err != nil {
		log.ErrorContext(ctx, "Failed to load config",
			"error", err)

		return
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.LogLevel(cfg.LogLevel)}))
	slog.SetDefault(log)

	m := metrics.New()
	limiter := ratelimiter.New("github", githubRequestEvery, githubRequestBurst, log)

	// Callers bring their own model and GitHub credentials on every request.
	completers, err := llm.NewFactory(llm.ProviderAnthropic)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize LLM factory",
			"error", err)

		return
	}

	svc := agent.New(
		completers,
		func(token string) agent.Searcher {
			return ghclient.New(token, log, ghclient.WithLimiter(limiter), ghclient.WithMetrics(m))
		},
		agent.Options{
			DefaultOrg:      cfg.GitHubOrg,
			CacheTTL:        cfg.SearchCacheTTL,
			CacheMaxEntries: cfg.SearchCacheSize,
		},
		log,
	)
	log.InfoContext(ctx, "Agent is initialized",
		"defaultOrg", cfg.GitHubOrg,
		"searchCacheTTL", cfg.SearchCacheTTL.String(),
		"searchCacheSize", cfg.SearchCacheSize)

	gin.SetMode(gin.ReleaseMode)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           agentapi.New(svc, m, log).Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.InfoContext(ctx, "HTTP server is listening",
			"addr", srv.Addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "HTTP server failed",
				"error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.InfoContext(ctx, "Shutdown signal is received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "Failed to shut down HTTP server",
			"error", err)
	}

	log.InfoContext(shutdownCtx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())
}
