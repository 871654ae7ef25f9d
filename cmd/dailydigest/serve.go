package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"dailydigest/internal/digestapi"
	"dailydigest/internal/scheduler"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func serveCmd() *cobra.Command {
	var withScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), withScheduler, cmd.Flags().Changed("scheduler"))
		},
	}

	cmd.Flags().BoolVar(&withScheduler, "scheduler", false, "send digests hourly from this process (overrides SCHEDULER_ENABLED)")

	return cmd
}

func runServe(parent context.Context, withScheduler, schedulerFlagSet bool) error {
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if !schedulerFlagSet {
		withScheduler = cfg.SchedulerEnabled
	}

	gin.SetMode(gin.ReleaseMode)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if withScheduler {
		sched := scheduler.New(ctx, a.runner, log)
		if err = sched.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()

		log.InfoContext(ctx, "Scheduler is started",
			"spec", scheduler.HourlyDigestSpec,
			"timezone", time.FixedZone(scheduler.Timezone, scheduler.TimezoneOffsetSeconds).String())
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           digestapi.New(a.deps, log).Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "HTTP server is listening",
			"addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.InfoContext(ctx, "Shutdown signal is received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(shutdownCtx, "Failed to shut down HTTP server", "error", err)
	}

	log.InfoContext(shutdownCtx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())

	return nil
}
