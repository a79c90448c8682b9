package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zfurman56/hab-predictor/internal/ensemble"
	"github.com/zfurman56/hab-predictor/internal/geo"
	"github.com/zfurman56/hab-predictor/internal/predictor"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

const standardQuery = "?profile=standard&lat=37.4&lon=-122.2&alt=0&time=2026-10-19T15:00:00Z&burst_altitude=1000&ascent_rate=5&descent_rate=5"

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func testStore() *wind.Store {
	store := wind.NewStore()
	store.Set(&wind.Dataset{
		Source:    "test",
		FetchedAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	})
	return store
}

func testPredict() ensemble.PredictFunc {
	pr := predictor.New(wind.Constant{Velocity: geo.Velocity{East: 4}}, predictor.DefaultConfig(), testLogger())
	return func(ctx context.Context, p predictor.Params) (*predictor.Envelope, error) {
		pred, err := pr.Predict(ctx, p)
		if err != nil {
			return nil, err
		}
		return predictor.NewEnvelope(pred, p.Launch, "test"), nil
	}
}

// readEvents parses the "data:" payloads of an SSE body in order.
func readEvents(t *testing.T, body string) []map[string]json.RawMessage {
	t.Helper()
	var events []map[string]json.RawMessage
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg map[string]json.RawMessage
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
			t.Fatalf("invalid JSON in SSE data line: %v", err)
		}
		events = append(events, msg)
	}
	return events
}

func eventType(msg map[string]json.RawMessage) string {
	var s string
	json.Unmarshal(msg["type"], &s)
	return s
}

func TestBatches(t *testing.T) {
	pts := make([]geo.Point, 250)
	got := batches(pts, 100)
	if len(got) != 3 || len(got[0]) != 100 || len(got[2]) != 50 {
		t.Errorf("batch sizes = %d chunks", len(got))
	}
	if batches(nil, 100) != nil {
		t.Error("empty input should produce no batches")
	}
}

// TestStreamStandard verifies the event order and that every point of the
// track is delivered exactly once.
func TestStreamStandard(t *testing.T) {
	handler := NewHandler(testPredict(), testStore(), Config{BatchSize: 64}, testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/predict"+standardQuery, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	handler.HandlePredict(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, w.Body.String())
	}
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	events := readEvents(t, w.Body.String())
	if len(events) < 4 {
		t.Fatalf("got %d events", len(events))
	}
	if eventType(events[0]) != "metadata" {
		t.Errorf("first event = %q, want metadata", eventType(events[0]))
	}
	if eventType(events[len(events)-1]) != "summary" {
		t.Errorf("last event = %q, want summary", eventType(events[len(events)-1]))
	}

	var meta metadataMessage
	raw, _ := json.Marshal(events[0])
	json.Unmarshal(raw, &meta)
	if meta.Profile != predictor.ProfileStandard || meta.Steps != 400 || meta.ID == "" {
		t.Errorf("metadata = %+v", meta)
	}

	counts := map[predictor.Phase]int{}
	var order []string
	for _, ev := range events[1 : len(events)-1] {
		switch eventType(ev) {
		case "points":
			var pm pointsMessage
			raw, _ := json.Marshal(ev)
			if err := json.Unmarshal(raw, &pm); err != nil {
				t.Fatal(err)
			}
			if len(pm.Points) > 64 {
				t.Errorf("batch of %d points exceeds size 64", len(pm.Points))
			}
			if counts[pm.Phase] == 0 {
				order = append(order, string(pm.Phase))
			}
			counts[pm.Phase] += len(pm.Points)
		case "burst":
			order = append(order, "burst")
		default:
			t.Errorf("unexpected event %q", eventType(ev))
		}
	}
	if counts[predictor.PhaseAscending] != 200 || counts[predictor.PhaseDescending] != 200 {
		t.Errorf("points per phase = %v, want 200/200", counts)
	}
	if got := strings.Join(order, ","); got != "ascending,burst,descending" {
		t.Errorf("phase order = %s", got)
	}

	// Lines are "id: N", "data: ...", "retry: ..." or blank, with ids
	// counting up from zero.
	nextID := 0
	for _, line := range strings.Split(w.Body.String(), "\n") {
		switch {
		case line == "", strings.HasPrefix(line, "data: "), strings.HasPrefix(line, "retry: "):
		case strings.HasPrefix(line, "id: "):
			if want := fmt.Sprintf("id: %d", nextID); line != want {
				t.Errorf("got %q, want %q", line, want)
			}
			nextID++
		default:
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
	if nextID != len(events) {
		t.Errorf("%d ids for %d messages", nextID, len(events))
	}
}

func TestStreamValBal(t *testing.T) {
	handler := NewHandler(testPredict(), testStore(), Config{}, testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/predict?profile=valbal&lat=1&lon=2&alt=12000&time=2026-10-19T15:00:00Z&duration=5", nil)
	w := httptest.NewRecorder()
	handler.HandlePredict(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var total int
	for _, ev := range readEvents(t, w.Body.String()) {
		if eventType(ev) != "points" {
			continue
		}
		var pm pointsMessage
		raw, _ := json.Marshal(ev)
		json.Unmarshal(raw, &pm)
		if pm.Phase != predictor.PhaseFloating {
			t.Errorf("phase = %q, want floating", pm.Phase)
		}
		total += len(pm.Points)
	}
	if total != 300 {
		t.Errorf("streamed %d points, want 300", total)
	}
}

func TestStreamErrors(t *testing.T) {
	failing := func(ctx context.Context, p predictor.Params) (*predictor.Envelope, error) {
		return nil, &predictor.LookupError{Phase: predictor.PhaseAscending, Err: wind.ErrOutOfCoverage}
	}

	tests := []struct {
		name    string
		predict ensemble.PredictFunc
		store   *wind.Store
		query   string
		want    int
	}{
		{"bad profile", testPredict(), testStore(), "?profile=blimp", http.StatusBadRequest},
		{"bad number", testPredict(), testStore(), "?profile=standard&lat=x", http.StatusBadRequest},
		{"invalid rates", testPredict(), testStore(), "?profile=standard&lat=1&lon=1&time=2026-10-19T15:00:00Z&burst_altitude=1000", http.StatusBadRequest},
		{"no dataset", testPredict(), wind.NewStore(), standardQuery, http.StatusServiceUnavailable},
		{"lookup failure", failing, testStore(), standardQuery, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(tt.predict, tt.store, Config{}, testLogger())
			req := httptest.NewRequest("GET", "/api/v1/stream/predict"+tt.query, nil)
			w := httptest.NewRecorder()
			handler.HandlePredict(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
		})
	}
}

func TestAdmissionPerClient(t *testing.T) {
	a := newAdmission(3, 1000)

	var releases []func()
	for i := 0; i < 3; i++ {
		release, reason := a.admit("10.0.0.1")
		if release == nil {
			t.Fatalf("admit %d refused (%s)", i+1, reason)
		}
		releases = append(releases, release)
	}
	if release, reason := a.admit("10.0.0.1"); release != nil || reason != refusedPerClient {
		t.Errorf("fourth admit: release=%v reason=%q, want refusal %q", release != nil, reason, refusedPerClient)
	}
	if release, _ := a.admit("10.0.0.2"); release == nil {
		t.Error("another client was refused")
	}

	releases[0]()
	releases[0]() // second call must not free another slot
	if forClient, total := a.streams("10.0.0.1"); forClient != 2 || total != 3 {
		t.Errorf("after release: client=%d total=%d, want 2/3", forClient, total)
	}
	if release, _ := a.admit("10.0.0.1"); release == nil {
		t.Error("admit after release refused")
	}
}

func TestAdmissionCapacity(t *testing.T) {
	a := newAdmission(10, 2)
	ra, _ := a.admit("a")
	rb, _ := a.admit("b")
	if ra == nil || rb == nil {
		t.Fatal("admit under capacity refused")
	}
	if release, reason := a.admit("c"); release != nil || reason != refusedTotal {
		t.Errorf("reason = %q, want %q", reason, refusedTotal)
	}
	rb()
	if release, _ := a.admit("c"); release == nil {
		t.Error("admit after a slot freed was refused")
	}
}

func TestAdmissionConcurrent(t *testing.T) {
	a := newAdmission(100, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, _ := a.admit("10.0.0.1"); release != nil {
				defer release()
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if forClient, total := a.streams("10.0.0.1"); forClient != 0 || total != 0 {
		t.Errorf("after all released: client=%d total=%d, want 0/0", forClient, total)
	}
}

// A second stream from the same client gets a 429 while the first is
// still computing.
func TestStreamRefusedWhileBusy(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	blocking := func(ctx context.Context, p predictor.Params) (*predictor.Envelope, error) {
		close(started)
		<-unblock
		return nil, context.Canceled
	}
	handler := NewHandler(blocking, testStore(), Config{MaxConcurrentPerIP: 1}, testLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/predict"+standardQuery, nil)
		req.RemoteAddr = "10.0.0.1:12345"
		handler.HandlePredict(httptest.NewRecorder(), req)
	}()
	<-started

	req := httptest.NewRequest("GET", "/api/v1/stream/predict"+standardQuery, nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandlePredict(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	close(unblock)
	<-done
	if forClient, _ := handler.slots.streams("10.0.0.1"); forClient != 0 {
		t.Errorf("slots held after streams ended = %d, want 0", forClient)
	}
}
