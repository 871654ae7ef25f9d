package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dailydigest/internal/domain"
)

type Recipients interface {
	ListDigestRecipients(ctx context.Context) ([]domain.Recipient, error)
}

type Sender interface {
	Send(ctx context.Context, r domain.Recipient, now time.Time) (Result, error)
}

type Summary struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type Runner struct {
	recipients Recipients
	sender     Sender
	log        *slog.Logger
}

func NewRunner(recipients Recipients, sender Sender, log *slog.Logger) *Runner {
	return &Runner{
		recipients: recipients,
		sender:     sender,
		log:        log,
	}
}

// Run sends digests to every recipient whose delivery hour matches the
// current hour in their timezone, or to all of them when force is set.
func (r *Runner) Run(ctx context.Context, now time.Time, force bool) (Summary, error) {
	var sum Summary

	recipients, err := r.recipients.ListDigestRecipients(ctx)
	if err != nil {
		return sum, fmt.Errorf("list digest recipients: %w", err)
	}

	for _, rcpt := range recipients {
		if ctx.Err() != nil {
			r.log.InfoContext(ctx, "Digest run context is done",
				"error", ctx.Err(),
				"sent", sum.Sent,
				"failed", sum.Failed,
				"skipped", sum.Skipped)
			return sum, ctx.Err()
		}

		if !force && !IsDue(rcpt.Settings, now) {
			continue
		}

		res, sendErr := r.sender.Send(ctx, rcpt, now)
		if sendErr != nil {
			sum.Failed++
			r.log.ErrorContext(ctx, "Failed to send digest",
				"error", sendErr,
				"userID", rcpt.User.ID)
			continue
		}

		switch res.Status {
		case domain.DigestStatusSent:
			sum.Sent++
		case domain.DigestStatusSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
	}

	r.log.InfoContext(ctx, "Digest run finished",
		"recipients", len(recipients),
		"sent", sum.Sent,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"force", force)

	return sum, nil
}

// IsDue reports whether now falls in the recipient's local delivery hour.
func IsDue(s domain.Settings, now time.Time) bool {
	return LocalTime(now, s.Timezone).Hour() == s.DeliveryHour
}
