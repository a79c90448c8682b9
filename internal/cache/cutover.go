package cache

import (
	"context"
	"time"
)

// Start runs the maintenance loop until ctx is cancelled: every Interval it
// drops all entries if the wind dataset changed, otherwise evicts expired
// entries.
func (c *ResultCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("prediction cache maintenance stopped")
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *ResultCache) tick() {
	if c.datasetChanged() {
		c.performCutover()
		return
	}
	c.evictExpired()
}

// datasetChanged reports whether the store holds a different dataset than
// the one the cached entries were computed against.
func (c *ResultCache) datasetChanged() bool {
	ds := c.store.Get()
	if ds == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !ds.FetchedAt.Equal(c.currentFetchedAt)
}

// performCutover discards every entry computed against the previous
// dataset. Keys include the dataset time, so stale entries are unreachable.
func (c *ResultCache) performCutover() {
	ds := c.store.Get()
	if ds == nil {
		return
	}

	c.mu.Lock()
	old := c.currentFetchedAt
	c.currentFetchedAt = ds.FetchedAt
	c.mu.Unlock()

	removed := c.Purge()
	c.logger.Info("wind dataset cutover",
		"old_dataset_fetched_at", old.UTC().Format(time.RFC3339),
		"new_dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
		"entries_dropped", removed,
	)
}
