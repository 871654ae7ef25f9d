package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"dailydigest/internal/digest"
)

const (
	HourlyDigestSpec      = "0 * * * *"
	Timezone              = "UTC"
	TimezoneOffsetSeconds = 0
	sendDigestsTimeout    = 50 * time.Minute
)

type Runner interface {
	Run(ctx context.Context, now time.Time, force bool) (digest.Summary, error)
}

type Scheduler struct {
	ctx    context.Context
	cron   *cron.Cron
	runner Runner
	now    func() time.Time
	log    *slog.Logger
}

func New(ctx context.Context, runner Runner, log *slog.Logger) *Scheduler {
	c := cron.New(
		cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		ctx:    ctx,
		cron:   c,
		runner: runner,
		now:    time.Now,
		log:    log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(HourlyDigestSpec, s.sendDigests); err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

// Stop halts the cron and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sendDigests() {
	ctx, cancel := context.WithTimeout(s.ctx, sendDigestsTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	now := s.now().UTC()

	sum, err := s.runner.Run(ctx, now, false)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to send digests",
			"error", err,
			"hourUTC", now.Hour(),
			"sent", sum.Sent,
			"failed", sum.Failed,
			"skipped", sum.Skipped)
		return
	}

	s.log.InfoContext(ctx, "Scheduled digests sent",
		"hourUTC", now.Hour(),
		"sent", sum.Sent,
		"failed", sum.Failed,
		"skipped", sum.Skipped)
}
