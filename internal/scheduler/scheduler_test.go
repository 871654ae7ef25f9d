package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"dailydigest/internal/digest"
)

type stubRunner struct {
	calls []time.Time
	force []bool
	err   error
}

func (s *stubRunner) Run(_ context.Context, now time.Time, force bool) (digest.Summary, error) {
	s.calls = append(s.calls, now)
	s.force = append(s.force, force)
	return digest.Summary{Sent: 1}, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendDigestsRunsUnforced(t *testing.T) {
	runner := &stubRunner{}
	s := New(context.Background(), runner, testLogger())

	fixed := time.Date(2025, 3, 4, 7, 0, 0, 0, time.FixedZone("X", 3600))
	s.now = func() time.Time { return fixed }

	s.sendDigests()

	if len(runner.calls) != 1 {
		t.Fatalf("expected one run, got %d", len(runner.calls))
	}
	if !runner.calls[0].Equal(fixed) || runner.calls[0].Location() != time.UTC {
		t.Fatalf("expected UTC now, got %v", runner.calls[0])
	}
	if runner.force[0] {
		t.Fatalf("scheduled run must not force delivery")
	}
}

func TestSendDigestsSkipsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &stubRunner{}
	New(ctx, runner, testLogger()).sendDigests()

	if len(runner.calls) != 0 {
		t.Fatalf("expected no run after cancellation")
	}
}

func TestSendDigestsRunnerError(t *testing.T) {
	runner := &stubRunner{err: errors.New("db down")}
	New(context.Background(), runner, testLogger()).sendDigests()

	if len(runner.calls) != 1 {
		t.Fatalf("expected one run, got %d", len(runner.calls))
	}
}

func TestStartStop(t *testing.T) {
	s := New(context.Background(), &stubRunner{}, testLogger())

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	entries := s.cron.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one cron entry, got %d", len(entries))
	}
	if next := entries[0].Next; next.Minute() != 0 || next.Second() != 0 {
		t.Fatalf("expected top-of-hour schedule, got %v", next)
	}

	s.Stop()
}
