package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"dailydigest/internal/domain"
)

const (
	defaultSearchCacheMaxEntries = 256
	defaultSearchCacheTTL        = 5 * time.Minute
)

// searchCache holds search results for a fixed TTL. Every entry lives for the
// same duration, so insertion order is expiry order: the queue head is always
// the next entry to expire and the one dropped when the cache is full. Reads
// never extend an entry's life.
type searchCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	limit   int
	results map[string]cachedSearch
	queue   []queuedKey
	writes  uint64
}

type cachedSearch struct {
	results domain.SearchResults
	write   uint64
}

// queuedKey pairs a key with the write that queued it. A rewrite queues the
// key again; the stale slot is skipped when it reaches the head.
type queuedKey struct {
	key      string
	write    uint64
	storedAt time.Time
}

func newSearchCache(limit int, ttl time.Duration) *searchCache {
	if limit <= 0 || ttl <= 0 {
		return nil
	}

	return &searchCache{
		ttl:     ttl,
		limit:   limit,
		results: make(map[string]cachedSearch, limit),
	}
}

// searchCacheKey never contains the raw token.
func searchCacheKey(token, org, query string) string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(token + "\x00" + strings.ToLower(org) + "\x00" + query))

	return hex.EncodeToString(sum[:])
}

func (c *searchCache) get(key string, now time.Time) (domain.SearchResults, bool) {
	if c == nil || key == "" {
		return domain.SearchResults{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.expire(now)

	e, ok := c.results[key]

	return e.results, ok
}

func (c *searchCache) set(key string, results domain.SearchResults, now time.Time) {
	if c == nil || key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.expire(now)

	c.writes++
	c.results[key] = cachedSearch{results: results, write: c.writes}
	c.queue = append(c.queue, queuedKey{key: key, write: c.writes, storedAt: now})

	for len(c.results) > c.limit {
		c.popHead()
	}
}

// expire drops entries from the head while they are past the TTL.
func (c *searchCache) expire(now time.Time) {
	for len(c.queue) > 0 && now.Sub(c.queue[0].storedAt) > c.ttl {
		c.popHead()
	}
}

func (c *searchCache) popHead() {
	head := c.queue[0]
	c.queue = c.queue[1:]

	if e, ok := c.results[head.key]; ok && e.write == head.write {
		delete(c.results, head.key)
	}
}
