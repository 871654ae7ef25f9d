package ratelimiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitAllowsBurst(t *testing.T) {
	k := New("test", time.Hour, 2, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	for i := range 2 {
		if err := k.Wait(ctx, "a"); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
}

func TestWaitBlocksPastBurst(t *testing.T) {
	k := New("test", time.Hour, 1, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := k.Wait(ctx, "a"); err != nil {
		t.Fatalf("first call: unexpected error: %v", err)
	}

	if err := k.Wait(ctx, "a"); err == nil {
		t.Fatalf("expected second call to fail within deadline")
	}

	if err := k.Wait(context.Background(), "b"); err != nil {
		t.Fatalf("expected independent key to pass, got %v", err)
	}
}

func TestWaitCanceledContext(t *testing.T) {
	k := New("test", time.Hour, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := k.Wait(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIdleKeysArePruned(t *testing.T) {
	k := New("test", time.Millisecond, 1, nil)

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	k.now = func() time.Time { return now }

	_ = k.limiter("a")
	_ = k.limiter("b")

	if got := k.size(); got != 2 {
		t.Fatalf("expected 2 limiters, got %d", got)
	}

	now = now.Add(defaultIdleTTL + time.Minute)
	_ = k.limiter("c")

	if got := k.size(); got != 1 {
		t.Fatalf("expected idle limiters to be pruned, got %d", got)
	}
}

func TestNilKeyedIsNoop(t *testing.T) {
	var k *Keyed
	if err := k.Wait(context.Background(), "a"); err != nil {
		t.Fatalf("expected nil limiter to allow calls, got %v", err)
	}
}

func TestTokenKey(t *testing.T) {
	a := TokenKey("secret")
	if a == "" || a == "secret" {
		t.Fatalf("unexpected token key: %q", a)
	}
	if a != TokenKey("secret") {
		t.Fatalf("expected stable token key")
	}
	if a == TokenKey("other") {
		t.Fatalf("expected different keys for different tokens")
	}
}
