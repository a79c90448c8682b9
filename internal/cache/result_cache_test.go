package cache

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/zfurman56/hab-predictor/internal/geo"
	"github.com/zfurman56/hab-predictor/internal/predictor"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

var launchTime = time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(fetchedAt time.Time) *wind.Store {
	store := wind.NewStore()
	store.Set(&wind.Dataset{Source: "test", FetchedAt: fetchedAt})
	return store
}

func testConfig() Config {
	return Config{TTL: time.Minute, MaxEntries: 3, Interval: 10 * time.Millisecond}
}

// fakeClock lets tests move time forward.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func testCache(t *testing.T, store *wind.Store) (*ResultCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	c := New(testConfig(), store, testLogger())
	c.now = clock.Now
	return c, clock
}

func envelope(id string) *predictor.Envelope {
	return &predictor.Envelope{
		ID:         id,
		Profile:    predictor.ProfileValBal,
		Prediction: &predictor.ValBalPrediction{},
	}
}

func standardParams() predictor.Params {
	return predictor.Params{
		Profile:       predictor.ProfileStandard,
		Launch:        geo.Point{Latitude: 37.4, Longitude: -122.2, Altitude: 30, Time: launchTime},
		BurstAltitude: 30000,
		AscentRate:    5,
		DescentRate:   6,
	}
}

func TestKeyIgnoresIrrelevantFields(t *testing.T) {
	fetched := time.Unix(1_790_000_000, 0)
	p := standardParams()
	base := Key(p, time.Second, fetched)

	p.Duration = 42
	if Key(p, time.Second, fetched) != base {
		t.Error("duration changed the key of a standard prediction")
	}

	v := predictor.Params{Profile: predictor.ProfileValBal, Launch: p.Launch, Duration: 60}
	vKey := Key(v, time.Second, fetched)
	v.AscentRate = 9
	if Key(v, time.Second, fetched) != vKey {
		t.Error("ascent rate changed the key of a valbal prediction")
	}
}

func TestKeyDistinguishesInputs(t *testing.T) {
	fetched := time.Unix(1_790_000_000, 0)
	base := Key(standardParams(), time.Second, fetched)

	tests := []struct {
		name string
		key  string
	}{
		{"burst altitude", func() string { p := standardParams(); p.BurstAltitude++; return Key(p, time.Second, fetched) }()},
		{"launch time", func() string { p := standardParams(); p.Launch.Time = p.Launch.Time.Add(time.Nanosecond); return Key(p, time.Second, fetched) }()},
		{"profile", func() string { p := standardParams(); p.Profile = predictor.ProfileValBal; return Key(p, time.Second, fetched) }()},
		{"step", Key(standardParams(), 2*time.Second, fetched)},
		{"dataset", Key(standardParams(), time.Second, fetched.Add(time.Second))},
	}
	for _, tt := range tests {
		if tt.key == base {
			t.Errorf("changing %s did not change the key", tt.name)
		}
	}
}

func TestKeyFarLaunchTimes(t *testing.T) {
	fetched := time.Unix(1_790_000_000, 0)
	p := standardParams()
	p.Launch.Time = time.Date(3000, time.January, 1, 0, 0, 0, 0, time.UTC)
	a := Key(p, time.Second, fetched)

	// 2^64 ns later; identical UnixNano after wrap-around.
	for range 4 {
		p.Launch.Time = p.Launch.Time.Add(1 << 62)
	}
	if Key(p, time.Second, fetched) == a {
		t.Error("launch times 2^64ns apart share a key")
	}
}

func TestGetPut(t *testing.T) {
	c, _ := testCache(t, testStore(time.Now()))

	if c.Get("k1") != nil {
		t.Fatal("expected miss on empty cache")
	}
	env := envelope("id-1")
	c.Put("k1", env)

	if got := c.Get("k1"); got != env {
		t.Fatalf("Get = %v, want stored envelope", got)
	}
	if got := c.GetByID("id-1"); got != env {
		t.Fatalf("GetByID = %v, want stored envelope", got)
	}

	stats := c.Stats()
	if stats.Entries != 1 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 entry, 1 hit, 1 miss", stats)
	}
}

func TestReplaceDropsOldID(t *testing.T) {
	c, _ := testCache(t, testStore(time.Now()))
	c.Put("k", envelope("old"))
	c.Put("k", envelope("new"))

	if c.GetByID("old") != nil {
		t.Error("replaced envelope still reachable by ID")
	}
	if c.GetByID("new") == nil {
		t.Error("new envelope not reachable by ID")
	}
	if c.Stats().Entries != 1 {
		t.Errorf("entries = %d, want 1", c.Stats().Entries)
	}
}

func TestExpiry(t *testing.T) {
	c, clock := testCache(t, testStore(time.Now()))
	c.Put("old", envelope("a"))
	clock.Advance(45 * time.Second)
	c.Put("fresh", envelope("b"))
	clock.Advance(30 * time.Second)

	// "old" is 75s old with a 60s TTL.
	if c.Get("old") != nil {
		t.Error("expired entry returned by Get")
	}
	if c.GetByID("a") != nil {
		t.Error("expired entry returned by GetByID")
	}

	if removed := c.evictExpired(); removed != 1 {
		t.Errorf("evictExpired removed %d, want 1", removed)
	}
	if c.Get("fresh") == nil {
		t.Error("fresh entry was evicted")
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	c, clock := testCache(t, testStore(time.Now()))
	for _, k := range []string{"a", "b", "c", "d"} {
		c.Put(k, envelope("id-"+k))
		clock.Advance(time.Second)
	}

	stats := c.Stats()
	if stats.Entries != 3 {
		t.Fatalf("entries = %d, want 3", stats.Entries)
	}
	if stats.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", stats.Evictions)
	}
	if c.Get("a") != nil || c.GetByID("id-a") != nil {
		t.Error("oldest entry survived a capacity eviction")
	}
	if c.Get("d") == nil {
		t.Error("newest entry missing")
	}
}

func TestDatasetCutover(t *testing.T) {
	first := time.Unix(1_790_000_000, 0)
	store := testStore(first)
	c, _ := testCache(t, store)
	c.Put("k1", envelope("a"))
	c.Put("k2", envelope("b"))

	if c.datasetChanged() {
		t.Fatal("datasetChanged true before any update")
	}

	store.Set(&wind.Dataset{Source: "updated", FetchedAt: first.Add(6 * time.Hour)})
	if !c.datasetChanged() {
		t.Fatal("expected datasetChanged after dataset update")
	}

	c.tick()

	if c.Stats().Entries != 0 {
		t.Errorf("entries after cutover = %d, want 0", c.Stats().Entries)
	}
	if c.datasetChanged() {
		t.Error("datasetChanged still true after cutover")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	c, _ := testCache(t, testStore(time.Now()))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

// TestConcurrentAccess verifies the cache is safe for concurrent use.
func TestConcurrentAccess(t *testing.T) {
	c, _ := testCache(t, testStore(time.Now()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := string(rune('a' + (i+j)%5))
				c.Put(key, envelope(key+"-id"))
				c.Get(key)
				c.GetByID(key + "-id")
				c.Stats()
			}
		}(i)
	}
	wg.Wait()

	if n := c.Stats().Entries; n > 3 {
		t.Errorf("entries = %d, exceeds capacity 3", n)
	}
}
