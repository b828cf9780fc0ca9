package vote

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cydriclopez/badmeter.com/internal/domain"
	"github.com/cydriclopez/badmeter.com/internal/metrics"
)

// StatsCache provides in-memory caching of topic stats with TTL-based
// expiration. The stats endpoint is read-heavy while counters change only on
// accepted votes, so a short TTL removes most ledger reads.
type StatsCache struct {
	mu      sync.RWMutex
	entries map[string]*statsEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

type statsEntry struct {
	stats     domain.TopicStats
	expiresAt time.Time
}

// NewStatsCache creates a stats cache with the specified TTL.
func NewStatsCache(ttl time.Duration, clock clockwork.Clock) *StatsCache {
	return &StatsCache{
		entries: make(map[string]*statsEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get retrieves cached stats if present and not expired.
func (c *StatsCache) Get(slug string) (*domain.TopicStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[slug]
	if !ok {
		return nil, false
	}

	// Expired entries count as misses; eviction happens periodically since
	// we only hold the read lock here.
	if c.clock.Now().After(entry.expiresAt) {
		return nil, false
	}

	stats := entry.stats
	return &stats, true
}

// Set stores stats with current timestamp + TTL.
func (c *StatsCache) Set(slug string, stats domain.TopicStats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[slug] = &statsEntry{
		stats:     stats,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

// Invalidate removes a topic's stats. Called after every accepted vote and
// after a purge so readers never see a stale status or score past the TTL.
func (c *StatsCache) Invalidate(slug string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, slug)
}

// Size returns the current number of entries (including expired).
func (c *StatsCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// EvictExpired removes all expired entries and returns the count evicted.
func (c *StatsCache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0

	for slug, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, slug)
			evicted++
		}
	}

	return evicted
}

// StartEvictionTimer starts a background goroutine that periodically evicts
// expired entries. Returns a stop function.
func (c *StatsCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				evicted := c.EvictExpired()
				if evicted > 0 {
					slog.Debug("Evicted expired topic stats cache entries",
						"count", evicted,
						"remaining", c.Size(),
					)
					metrics.StatsCacheEvictions.Add(float64(evicted))
				}
				metrics.StatsCacheSize.Set(float64(c.Size()))

			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
