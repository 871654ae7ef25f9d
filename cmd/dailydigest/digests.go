package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const sendDigestsTimeout = 50 * time.Minute

func sendDigestsCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "send-digests",
		Short: "Send digests to recipients whose delivery hour is now",
		Long: `Run one digest batch and exit, for use from an external cron.

Recipients are due when the current hour in their timezone equals their
delivery hour. --force sends to every active or trialing recipient.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSendDigests(cmd.Context(), force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "send to every recipient regardless of delivery hour")

	return cmd
}

func runSendDigests(parent context.Context, force bool) error {
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, sendDigestsTimeout)
	defer cancel()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	sum, err := a.runner.Run(ctx, time.Now().UTC(), force)
	if err != nil {
		return fmt.Errorf("send digests: %w", err)
	}

	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"ok":      true,
		"sent":    sum.Sent,
		"failed":  sum.Failed,
		"skipped": sum.Skipped,
	})
}
