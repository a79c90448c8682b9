package wind

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zfurman56/hab-predictor/internal/metrics"
)

// Refresh downloads a new dataset, validates it by parsing, writes it to the
// disk cache (when cache is non-nil) and installs it in store. Concurrent
// refreshes are serialized on the store's fetch lock.
func Refresh(ctx context.Context, fetcher *Fetcher, cache *Cache, store *Store, logger *slog.Logger) (*Dataset, error) {
	store.Lock()
	defer store.Unlock()

	data, err := fetcher.Fetch(ctx)
	if err != nil {
		if errors.Is(err, ErrFetchDisabled) {
			metrics.IncWindFetches("disabled")
		} else {
			metrics.IncWindFetches("fetch_error")
		}
		return nil, err
	}

	field, err := LoadArchive(bytes.NewReader(data))
	if err != nil {
		metrics.IncWindFetches("parse_error")
		return nil, fmt.Errorf("parsing downloaded dataset: %w", err)
	}

	// Whole seconds so a dataset reloaded from the cache compares equal.
	now := time.Now().UTC().Truncate(time.Second)
	if cache != nil {
		if path, err := cache.Write(data, now); err != nil {
			logger.Warn("failed to cache wind dataset", "error", err)
		} else {
			logger.Debug("wind dataset cached", "path", path)
		}
	}

	ds := &Dataset{Source: fetcher.SourceURL(), FetchedAt: now, Field: field}
	store.Set(ds)
	metrics.IncWindFetches("ok")
	metrics.SetWindDataset(len(field.Levels()), field.Snapshots())

	from, until := field.TimeRange()
	logger.Info("wind dataset loaded",
		"source", ds.Source,
		"snapshots", field.Snapshots(),
		"levels", len(field.Levels()),
		"valid_from", from.Format(time.RFC3339),
		"valid_until", until.Format(time.RFC3339),
	)
	return ds, nil
}
