// Package cache provides the process-local TTL caches used for aggregated
// results, suggestions and image lookups.
package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"metasearch/searchservice/internal/domain"
	"metasearch/searchservice/internal/metrics"
)

const (
	defaultCapacity      = 1000
	defaultTTL           = 30 * time.Minute
	defaultSweepInterval = 2 * time.Minute
)

type Options struct {
	Name          string
	Capacity      int
	TTL           time.Duration
	SweepInterval time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

type entry[V any] struct {
	value     V
	storedAt  time.Time
	expiresAt time.Time
}

// TTL is a capacity-bounded cache whose entries expire after a per-entry TTL.
// Reads never refresh recency: when full, the entry written least recently
// is evicted.
type TTL[V any] struct {
	name          string
	capacity      int
	ttl           time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time

	mu    sync.Mutex
	store *simplelru.LRU[string, entry[V]]

	hits    atomic.Uint64
	misses  atomic.Uint64
	evicted atomic.Uint64

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func New[V any](opts Options) *TTL[V] {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	// NewLRU only fails for a non-positive size.
	store, _ := simplelru.NewLRU[string, entry[V]](opts.Capacity, nil)

	return &TTL[V]{
		name:          opts.Name,
		capacity:      opts.Capacity,
		ttl:           opts.TTL,
		sweepInterval: opts.SweepInterval,
		logger:        opts.Logger,
		now:           opts.Now,
		store:         store,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (c *TTL[V]) Name() string { return c.name }

func (c *TTL[V]) DefaultTTL() time.Duration { return c.ttl }

func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	now := c.now()

	c.mu.Lock()
	item, ok := c.store.Peek(key)
	if ok && !now.Before(item.expiresAt) {
		c.store.Remove(key)
		c.evicted.Add(1)
		metrics.CacheEvictionsTotal.WithLabelValues(c.name, "expired").Inc()
		c.updateSizeLocked()
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		return zero, false
	}
	c.hits.Add(1)
	metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
	return item.value, true
}

// Put stores value under key. A non-positive ttl uses the cache default.
// Concurrent writers of the same key settle on the last write.
func (c *TTL[V]) Put(key string, value V, ttl time.Duration) {
	if c == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store.Peek(key); exists {
		// Re-adding moves the key to the newest write position.
		c.store.Remove(key)
	}
	if c.store.Add(key, entry[V]{value: value, storedAt: now, expiresAt: now.Add(ttl)}) {
		c.evicted.Add(1)
		metrics.CacheEvictionsTotal.WithLabelValues(c.name, "capacity").Inc()
	}
	c.updateSizeLocked()
}

func (c *TTL[V]) Delete(key string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.store.Remove(key)
	c.updateSizeLocked()
	return removed
}

// InvalidateAll drops every entry and returns how many were removed.
// Hit and miss counters are kept.
func (c *TTL[V]) InvalidateAll() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.store.Len()
	c.store.Purge()
	c.updateSizeLocked()
	return removed
}

func (c *TTL[V]) InvalidateByPrefix(prefix string) int {
	return c.InvalidateFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

func (c *TTL[V]) InvalidateFunc(match func(key string) bool) int {
	if c == nil || match == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.store.Keys() {
		if match(key) && c.store.Remove(key) {
			removed++
		}
	}
	c.updateSizeLocked()
	return removed
}

// Keys returns the live keys, oldest write first.
func (c *TTL[V]) Keys() []string {
	if c == nil {
		return nil
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(now)

	return c.store.Keys()
}

func (c *TTL[V]) Len() int {
	if c == nil {
		return 0
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(now)
	return c.store.Len()
}

func (c *TTL[V]) Stats() domain.CacheSummary {
	if c == nil {
		return domain.CacheSummary{}
	}
	hits := c.hits.Load()
	misses := c.misses.Load()
	summary := domain.CacheSummary{
		Size:     c.Len(),
		Capacity: c.capacity,
		Hits:     hits,
		Misses:   misses,
		Evicted:  c.evicted.Load(),
	}
	if total := hits + misses; total > 0 {
		summary.HitRatio = float64(hits) / float64(total)
	}
	return summary
}

// Sweep removes expired entries and returns how many were dropped.
func (c *TTL[V]) Sweep() int {
	if c == nil {
		return 0
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

func (c *TTL[V]) sweepLocked(now time.Time) int {
	removed := 0
	for _, key := range c.store.Keys() {
		item, ok := c.store.Peek(key)
		if ok && !now.Before(item.expiresAt) {
			c.store.Remove(key)
			removed++
		}
	}
	if removed > 0 {
		c.evicted.Add(uint64(removed))
		metrics.CacheEvictionsTotal.WithLabelValues(c.name, "expired").Add(float64(removed))
		c.updateSizeLocked()
	}
	return removed
}

func (c *TTL[V]) updateSizeLocked() {
	metrics.CacheEntries.WithLabelValues(c.name).Set(float64(c.store.Len()))
}

// Start runs the periodic expiry sweep until ctx is done or Close is called.
func (c *TTL[V]) Start(ctx context.Context) {
	if c == nil {
		return
	}
	c.startOnce.Do(func() {
		go c.sweepLoop(ctx)
	})
}

func (c *TTL[V]) sweepLoop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				c.logger.Debug("cache sweep",
					slog.String("cache", c.name),
					slog.Int("expired", removed),
				)
			}
		}
	}
}

// Close stops the sweep goroutine and waits for it to exit.
func (c *TTL[V]) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	started := true
	c.startOnce.Do(func() {
		started = false
	})
	if started {
		<-c.done
	}
}
