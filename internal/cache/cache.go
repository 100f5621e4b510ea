// Package cache is the in-memory statistics cache. It fronts the
// aggregation engine with a TTL- and size-bounded memoization layer keyed
// by (user, date range). Entries live from Set until TTL expiry or an
// explicit per-user invalidation triggered by a ledger mutation.
package cache

import (
	"sync"
	"time"

	"finbot/internal/stats"
)

const (
	// DefaultTTL bounds staleness even without explicit invalidation.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxEntries bounds memory per region.
	DefaultMaxEntries = 1000
)

// StatsCache holds one region per cached aggregate shape: full statistics
// snapshots and category totals. Both regions share TTL and capacity and
// are invalidated together per user.
type StatsCache struct {
	statistics *Store[stats.Statistics]
	categories *Store[[]stats.CategoryStatistics]

	mu   sync.Mutex
	gens map[int64]uint64
}

// New creates a statistics cache. Non-positive arguments fall back to the
// defaults.
func New(maxEntries int, ttl time.Duration) *StatsCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StatsCache{
		statistics: NewStore[stats.Statistics](maxEntries, ttl),
		categories: NewStore[[]stats.CategoryStatistics](maxEntries, ttl),
		gens:       make(map[int64]uint64),
	}
}

// GetStatistics probes the statistics region.
func (c *StatsCache) GetStatistics(userID int64, start, end *time.Time) (stats.Statistics, bool) {
	return c.statistics.Get(NewKey(userID, start, end))
}

// SetStatistics stores a fully computed snapshot.
func (c *StatsCache) SetStatistics(userID int64, start, end *time.Time, s stats.Statistics) {
	c.statistics.Set(NewKey(userID, start, end), s)
}

// GetCategoryStatistics probes the category totals region.
func (c *StatsCache) GetCategoryStatistics(userID int64, start, end *time.Time) ([]stats.CategoryStatistics, bool) {
	return c.categories.Get(NewKey(userID, start, end))
}

// SetCategoryStatistics stores computed category totals.
func (c *StatsCache) SetCategoryStatistics(userID int64, start, end *time.Time, cs []stats.CategoryStatistics) {
	c.categories.Set(NewKey(userID, start, end), cs)
}

// Generation returns the user's invalidation generation. Every
// InvalidateUser call changes it; readers snapshot it before a ledger
// read and only publish results computed under the current generation,
// so an aggregation racing a mutation cannot re-commit a pre-mutation
// snapshot after the invalidation ran.
func (c *StatsCache) Generation(userID int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID]
}

// InvalidateUser drops every cached entry for the user from both regions
// and advances the user's generation. Must complete before the mutating
// ledger call returns so a subsequent read in the same causal chain
// cannot see pre-mutation data.
func (c *StatsCache) InvalidateUser(userID int64) int {
	// Bump before dropping entries: an in-flight reader that snapshotted
	// the old generation must already see the new one when it decides
	// whether to publish.
	c.mu.Lock()
	c.gens[userID]++
	c.mu.Unlock()
	return c.statistics.InvalidateUser(userID) + c.categories.InvalidateUser(userID)
}

// CleanExpired actively sweeps expired entries from both regions.
func (c *StatsCache) CleanExpired() int {
	return c.statistics.CleanExpired() + c.categories.CleanExpired()
}

// Size returns the total entry count across regions.
func (c *StatsCache) Size() int {
	return c.statistics.Size() + c.categories.Size()
}

// Cleaner is implemented by caches that support active expiry sweeps.
type Cleaner interface {
	CleanExpired() int
}

// Manager runs a periodic cleanup over registered caches. TTL already
// makes expired entries invisible; the sweep just reclaims their memory.
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewManager creates a new cache manager.
func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup.
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches.
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, cache := range m.caches {
				cache.CleanExpired()
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine.
func (m *Manager) Stop() {
	close(m.stopCleanup)
	<-m.cleanupDone
}
