package ratelimiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL = 30 * time.Minute
	slowWaitLogAt  = time.Second
)

type entry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Keyed paces calls per key, e.g. per API token. Limiters for keys that have
// not been used for idleTTL are dropped on the next Wait.
type Keyed struct {
	mu       sync.Mutex
	limiters map[string]*entry
	every    time.Duration
	burst    int
	idleTTL  time.Duration
	name     string
	log      *slog.Logger
	now      func() time.Time
}

func New(name string, every time.Duration, burst int, log *slog.Logger) *Keyed {
	if burst <= 0 {
		burst = 1
	}

	return &Keyed{
		limiters: make(map[string]*entry),
		every:    every,
		burst:    burst,
		idleTTL:  defaultIdleTTL,
		name:     name,
		log:      log,
		now:      time.Now,
	}
}

// Wait blocks until a call for key is allowed or ctx is done.
func (k *Keyed) Wait(ctx context.Context, key string) error {
	if k == nil {
		return nil
	}

	limiter := k.limiter(key)

	start := k.now()
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	if waited := k.now().Sub(start); waited >= slowWaitLogAt && k.log != nil {
		k.log.DebugContext(ctx, "Rate limited call",
			"limiter", k.name,
			"waited", waited)
	}

	return nil
}

func (k *Keyed) limiter(key string) *rate.Limiter {
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	k.pruneLocked(now)

	e, ok := k.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(k.every), k.burst)}
		k.limiters[key] = e
	}
	e.lastUsed = now

	return e.limiter
}

func (k *Keyed) pruneLocked(now time.Time) {
	for key, e := range k.limiters {
		if now.Sub(e.lastUsed) > k.idleTTL {
			delete(k.limiters, key)
		}
	}
}

func (k *Keyed) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.limiters)
}

// TokenKey hashes a secret so it can be used as a limiter key without keeping
// the raw value around.
func TokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))

	return hex.EncodeToString(sum[:8])
}
