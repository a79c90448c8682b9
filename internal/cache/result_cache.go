// Package cache provides an in-memory cache of prediction results.
//
// Entries are keyed by a digest of the profile-relevant parameters, the
// integration step and the wind dataset they were computed against. A
// background loop evicts expired entries and drops everything when the
// wind dataset changes.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zfurman56/hab-predictor/internal/metrics"
	"github.com/zfurman56/hab-predictor/internal/predictor"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

// Config holds cache configuration loaded from environment variables.
type Config struct {
	TTL        time.Duration // entry lifetime (default: 600s)
	MaxEntries int           // capacity; oldest entries are evicted first (default: 256)
	Interval   time.Duration // maintenance tick (default: 10s)
}

// Entry is a cached prediction.
type Entry struct {
	Envelope *predictor.Envelope
	StoredAt time.Time
	key      string
}

// ResultCache caches prediction envelopes. Safe for concurrent use.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry // by parameter key
	byID    map[string]string // envelope ID -> parameter key

	config Config
	store  *wind.Store
	logger *slog.Logger
	now    func() time.Time

	// Dataset the current entries were computed against.
	currentFetchedAt time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a result cache that tracks dataset changes in store.
func New(config Config, store *wind.Store, logger *slog.Logger) *ResultCache {
	if config.TTL <= 0 {
		config.TTL = 600 * time.Second
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 256
	}
	if config.Interval <= 0 {
		config.Interval = 10 * time.Second
	}

	logger.Info("prediction cache initialized",
		"ttl_seconds", config.TTL.Seconds(),
		"max_entries", config.MaxEntries,
	)

	c := &ResultCache{
		entries: make(map[string]*Entry),
		byID:    make(map[string]string),
		config:  config,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
	if ds := store.Get(); ds != nil {
		c.currentFetchedAt = ds.FetchedAt
	}
	return c
}

// Key derives the cache key for params integrated with step against the
// dataset fetched at datasetFetchedAt. Fields irrelevant to the profile do
// not affect the key.
func Key(params predictor.Params, step time.Duration, datasetFetchedAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(params.Profile))

	var buf [8]byte
	putFloat := func(f float64) {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	putInt := func(n int64) {
		binary.BigEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}
	// UnixNano overflows outside 1678-2262.
	putTime := func(t time.Time) {
		putInt(t.Unix())
		putInt(int64(t.Nanosecond()))
	}

	l := params.Launch
	putFloat(l.Latitude)
	putFloat(l.Longitude)
	putFloat(l.Altitude)
	putTime(l.Time)

	switch params.Profile {
	case predictor.ProfileStandard:
		sp := params.Standard()
		putFloat(sp.BurstAltitude)
		putFloat(sp.AscentRate)
		putFloat(sp.DescentRate)
	case predictor.ProfileValBal:
		putFloat(params.ValBal().Duration)
	}

	putInt(int64(step))
	putTime(datasetFetchedAt)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached envelope for key, or nil on a miss.
func (c *ResultCache) Get(key string) *predictor.Envelope {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.StoredAt) < c.config.TTL {
		c.hits.Add(1)
		metrics.IncCacheHits()
		return entry.Envelope
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

// GetByID returns a cached envelope by its ID, or nil.
func (c *ResultCache) GetByID(id string) *predictor.Envelope {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key, ok := c.byID[id]
	if !ok {
		return nil
	}
	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.StoredAt) >= c.config.TTL {
		return nil
	}
	return entry.Envelope
}

// Put stores env under key, evicting the oldest entry when full.
func (c *ResultCache) Put(key string, env *predictor.Envelope) {
	entry := &Entry{Envelope: env, StoredAt: c.now(), key: key}
	evicted := 0

	c.mu.Lock()
	if old, ok := c.entries[key]; ok {
		delete(c.byID, old.Envelope.ID)
	} else if len(c.entries) >= c.config.MaxEntries {
		c.removeOldestLocked()
		evicted = 1
	}
	c.entries[key] = entry
	c.byID[env.ID] = key
	c.mu.Unlock()

	if evicted > 0 {
		c.evictions.Add(int64(evicted))
		metrics.AddCacheEvictions(evicted)
	}
	c.updateMetrics()
}

func (c *ResultCache) removeOldestLocked() {
	var oldest *Entry
	for _, e := range c.entries {
		if oldest == nil || e.StoredAt.Before(oldest.StoredAt) {
			oldest = e
		}
	}
	if oldest != nil {
		delete(c.entries, oldest.key)
		delete(c.byID, oldest.Envelope.ID)
	}
}

// evictExpired removes entries older than the TTL.
func (c *ResultCache) evictExpired() int {
	cutoff := c.now().Add(-c.config.TTL)
	var removed int

	c.mu.Lock()
	for key, e := range c.entries {
		if !e.StoredAt.After(cutoff) {
			delete(c.entries, key)
			delete(c.byID, e.Envelope.ID)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
		c.updateMetrics()
		c.logger.Debug("cache eviction", "entries_removed", removed)
	}
	return removed
}

// Purge drops every entry and returns how many were removed.
func (c *ResultCache) Purge() int {
	c.mu.Lock()
	removed := len(c.entries)
	c.entries = make(map[string]*Entry)
	c.byID = make(map[string]string)
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
	}
	c.updateMetrics()
	return removed
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Entries    int       `json:"entries"`
	MaxEntries int       `json:"max_entries"`
	TTLSeconds float64   `json:"ttl_seconds"`
	Oldest     time.Time `json:"oldest,omitzero"`
	Newest     time.Time `json:"newest,omitzero"`
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Evictions  int64     `json:"evictions"`
}

// Stats returns current cache statistics.
func (c *ResultCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)
	var oldest, newest time.Time
	for _, e := range c.entries {
		if oldest.IsZero() || e.StoredAt.Before(oldest) {
			oldest = e.StoredAt
		}
		if newest.IsZero() || e.StoredAt.After(newest) {
			newest = e.StoredAt
		}
	}
	c.mu.RUnlock()

	return Stats{
		Entries:    count,
		MaxEntries: c.config.MaxEntries,
		TTLSeconds: c.config.TTL.Seconds(),
		Oldest:     oldest,
		Newest:     newest,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
	}
}

func (c *ResultCache) updateMetrics() {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()
	metrics.SetCacheEntries(count)
}
