// Package cache memoizes sampled orbit paths.
//
// Paths depend only on an object's derived parameters, so an entry stays valid
// until its group's dataset changes. Entries carry the dataset version they
// were built from; a cutover purges the stale versions while reads against
// the current version continue.
package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/star/orbitview/internal/metrics"
	"github.com/star/orbitview/internal/orbit"
)

// Config holds path cache configuration.
type Config struct {
	MaxEntries    int           // Evict least recently used beyond this (default: 4096)
	IdleTTL       time.Duration // Drop entries unused for this long (default: 30m)
	SweepInterval time.Duration // How often the idle sweep runs (default: 1m)
}

// Key identifies one sampled path. Build it with VersionOf so equal
// instants always map to the same entry.
type Key struct {
	Group         string
	CatalogID     int
	Version       int64 // dataset FetchedAt, unix nanoseconds
	Segments      int
	DisplayRadius float64
}

// VersionOf returns the Key version for a dataset fetched at t.
func VersionOf(t time.Time) int64 { return t.UnixNano() }

// entry wraps a path with bookkeeping.
type entry struct {
	path        orbit.Path
	generatedAt time.Time
	lastUsed    atomic.Int64 // unix nanoseconds
}

// PathCache is an in-memory cache of orbit paths.
// Safe for concurrent use by multiple goroutines.
type PathCache struct {
	mu      sync.RWMutex
	entries map[Key]*entry

	config Config
	logger *slog.Logger
	now    func() time.Time

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	purged    atomic.Int64
}

// NewPathCache creates a path cache. Zero values in config select defaults.
func NewPathCache(config Config, logger *slog.Logger) *PathCache {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 4096
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 30 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}

	logger.Info("path cache initialized",
		"max_entries", config.MaxEntries,
		"idle_ttl_seconds", config.IdleTTL.Seconds(),
	)

	return &PathCache{
		entries: make(map[Key]*entry),
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the cached path for key.
func (c *PathCache) Get(key Key) (orbit.Path, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		e.lastUsed.Store(c.now().UnixNano())
		c.hits.Add(1)
		metrics.RecordPathCacheHit()
		return e.path, true
	}

	c.misses.Add(1)
	metrics.RecordPathCacheMiss()
	return nil, false
}

// GetOrCompute returns the cached path for key, computing and storing it on a
// miss. Errors from compute are returned and nothing is stored.
func (c *PathCache) GetOrCompute(key Key, compute func() (orbit.Path, error)) (orbit.Path, error) {
	if p, ok := c.Get(key); ok {
		return p, nil
	}
	p, err := compute()
	if err != nil {
		return nil, err
	}
	c.put(key, p)
	return p, nil
}

// put stores a path. Caller must not hold mu.
func (c *PathCache) put(key Key, p orbit.Path) {
	now := c.now()
	e := &entry{path: p, generatedAt: now}
	e.lastUsed.Store(now.UnixNano())

	c.mu.Lock()
	c.entries[key] = e
	var evicted int
	for len(c.entries) > c.config.MaxEntries {
		c.evictOldestLocked()
		evicted++
	}
	c.mu.Unlock()

	if evicted > 0 {
		c.evictions.Add(int64(evicted))
	}
	c.updateMetrics()
}

// evictOldestLocked removes the least recently used entry. Caller holds mu.
func (c *PathCache) evictOldestLocked() {
	var (
		oldestKey Key
		oldest    int64
		found     bool
	)
	for k, e := range c.entries {
		if used := e.lastUsed.Load(); !found || used < oldest {
			oldestKey, oldest, found = k, used, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

// evictIdle removes entries not used within IdleTTL.
func (c *PathCache) evictIdle() int {
	cutoff := c.now().Add(-c.config.IdleTTL).UnixNano()
	var removed int

	c.mu.Lock()
	for k, e := range c.entries {
		if e.lastUsed.Load() < cutoff {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		c.updateMetrics()
		c.logger.Debug("path cache eviction", "entries_removed", removed)
	}

	return removed
}

// Len returns the number of cached paths.
func (c *PathCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns current cache statistics.
func (c *PathCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)
	var oldest, newest time.Time
	for _, e := range c.entries {
		if oldest.IsZero() || e.generatedAt.Before(oldest) {
			oldest = e.generatedAt
		}
		if newest.IsZero() || e.generatedAt.After(newest) {
			newest = e.generatedAt
		}
	}
	c.mu.RUnlock()

	return Stats{
		Entries:     count,
		SizeBytes:   c.estimateSizeBytes(),
		OldestEntry: oldest,
		NewestEntry: newest,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Purged:      c.purged.Load(),
	}
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Entries     int
	SizeBytes   int64
	OldestEntry time.Time
	NewestEntry time.Time
	Hits        int64
	Misses      int64
	Evictions   int64
	Purged      int64
}

// estimateSizeBytes returns a rough estimate of the cache memory footprint.
func (c *PathCache) estimateSizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pointSize := int64(unsafe.Sizeof(orbit.Position3D{}))
	keySize := int64(unsafe.Sizeof(Key{}))

	var total int64
	for k, e := range c.entries {
		// Points, slice header (24), entry overhead (48), key and group name.
		total += int64(len(e.path))*pointSize + 24 + 48 + keySize + int64(len(k.Group))
	}
	return total
}

// updateMetrics publishes current cache size to Prometheus.
func (c *PathCache) updateMetrics() {
	metrics.SetPathCacheEntries(c.Len())
}
