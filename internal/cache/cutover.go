package cache

import "time"

// Cutover drops every entry of group built from a dataset other than
// current. Readers keep hitting current-version entries throughout.
func (c *PathCache) Cutover(group string, current time.Time) int {
	version := VersionOf(current)
	var removed int

	c.mu.Lock()
	for k := range c.entries {
		if k.Group == group && k.Version != version {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.purged.Add(int64(removed))
		c.updateMetrics()
		c.logger.Info("path cache cutover",
			"group", group,
			"dataset_fetched_at", current.UTC().Format(time.RFC3339),
			"entries_purged", removed,
		)
	}
	return removed
}
