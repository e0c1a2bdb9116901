package embedding

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finhive/docrank/internal/metrics"
)

// Cache defaults. Queries repeat within a conversation, so even a short
// TTL removes most duplicate provider calls.
const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 1000

	cacheKeyPrefix = "qemb:"
)

// vectorSource computes a query embedding on a cache miss.
type vectorSource interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

type cacheEntry struct {
	vector   []float32
	storedAt time.Time
}

// Cache is an in-process TTL cache for query embeddings. Expired entries
// are swept lazily when the entry count crosses maxEntries, so a quiet
// cache costs nothing.
type Cache struct {
	source     vectorSource
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	logger     *zap.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates a query embedding cache in front of the given source.
func NewCache(source vectorSource, ttl time.Duration, maxEntries int, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &Cache{
		source:     source,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		logger:     logger,
		entries:    make(map[string]cacheEntry),
	}
}

// WithClock overrides the time source, for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// GetOrCompute returns the cached embedding for a query, computing and
// caching it on a miss. Errors from the source are never cached.
func (c *Cache) GetOrCompute(ctx context.Context, query string) ([]float32, error) {
	key := cacheKeyPrefix + query

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().Sub(entry.storedAt) < c.ttl {
		c.mu.Unlock()
		metrics.QueryEmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return entry.vector, nil
	}
	c.mu.Unlock()

	metrics.QueryEmbeddingCacheTotal.WithLabelValues("miss").Inc()

	vec, err := c.source.Generate(ctx, query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{vector: vec, storedAt: c.now()}
	if len(c.entries) > c.maxEntries {
		c.sweepLocked()
	}
	c.mu.Unlock()

	return vec, nil
}

// Len returns the current entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweepLocked drops expired entries. Callers hold c.mu.
func (c *Cache) sweepLocked() {
	cutoff := c.now().Add(-c.ttl)
	swept := 0
	for key, entry := range c.entries {
		if entry.storedAt.Before(cutoff) {
			delete(c.entries, key)
			swept++
		}
	}
	if swept > 0 {
		c.logger.Debug("Swept expired query embeddings",
			zap.Int("swept", swept),
			zap.Int("remaining", len(c.entries)),
		)
	}
}
