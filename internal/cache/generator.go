package cache

import (
	"context"
	"time"

	"github.com/star/orbitview/internal/orbit"
)

// Start runs the idle sweep until ctx is cancelled.
func (c *PathCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("path cache sweeper stopped")
			return
		case <-ticker.C:
			c.evictIdle()
		}
	}
}

// Warm precomputes paths for keys that are not cached yet. It stops early
// when ctx is cancelled and returns the number of paths generated.
func (c *PathCache) Warm(ctx context.Context, keys []Key, compute func(Key) (orbit.Path, error)) int {
	start := time.Now()
	generated := 0

	for _, k := range keys {
		select {
		case <-ctx.Done():
			return generated
		default:
		}

		c.mu.RLock()
		_, ok := c.entries[k]
		c.mu.RUnlock()
		if ok {
			continue
		}

		p, err := compute(k)
		if err != nil {
			c.logger.Warn("path warmup failed", "group", k.Group, "catalog_id", k.CatalogID, "error", err)
			continue
		}
		c.put(k, p)
		generated++
	}

	if generated > 0 {
		c.logger.Info("path cache warmup complete",
			"generated", generated,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return generated
}
