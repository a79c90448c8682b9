package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hab_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hab_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hab_predictions_total",
			Help: "Predictions run, by profile and outcome.",
		},
		[]string{"profile", "outcome"},
	)

	predictionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hab_prediction_duration_seconds",
			Help:    "Wall-clock time spent integrating one prediction.",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"profile"},
	)

	predictionSteps = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hab_prediction_steps",
			Help:    "Integration steps taken by successful predictions.",
			Buckets: prometheus.ExponentialBuckets(100, 4, 8),
		},
		[]string{"profile"},
	)

	windDatasetAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hab_wind_dataset_age_seconds",
		Help: "Seconds since the loaded wind dataset was fetched; -1 when none is loaded.",
	})

	windDatasetLevels = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hab_wind_dataset_levels",
		Help: "Pressure levels in the loaded wind dataset.",
	})

	windDatasetSnapshots = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hab_wind_dataset_snapshots",
		Help: "Forecast times in the loaded wind dataset.",
	})

	windFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hab_wind_fetches_total",
			Help: "Wind dataset downloads, by outcome.",
		},
		[]string{"outcome"},
	)

	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hab_cache_hits_total",
		Help: "Prediction cache hits.",
	})

	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hab_cache_misses_total",
		Help: "Prediction cache misses.",
	})

	cacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hab_cache_evictions_total",
		Help: "Prediction cache entries removed by expiry, capacity or dataset change.",
	})

	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hab_cache_entries",
		Help: "Predictions currently cached.",
	})

	streamConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hab_stream_connections",
		Help: "Open SSE prediction streams.",
	})

	streamPointsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hab_stream_points_total",
		Help: "Track points sent over SSE.",
	})

	streamRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hab_stream_rejected_total",
		Help: "SSE connections refused by a concurrency limit.",
	}, []string{"reason"})

	batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hab_batch_size",
		Help:    "Predictions per batch request.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		predictionsTotal,
		predictionDurationSeconds,
		predictionSteps,
		windDatasetAgeSeconds,
		windDatasetLevels,
		windDatasetSnapshots,
		windFetchesTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheEntries,
		streamConnections,
		streamPointsTotal,
		streamRejectedTotal,
		batchSize,
	)
	windDatasetAgeSeconds.Set(-1)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// knownRoutes are the exact paths served by the API.
var knownRoutes = map[string]bool{
	"/":                      true,
	"/healthz":               true,
	"/readyz":                true,
	"/metrics":               true,
	"/api/v1/predict":        true,
	"/api/v1/predict/batch":  true,
	"/api/v1/wind/metadata":  true,
	"/api/v1/wind/velocity":  true,
	"/api/v1/wind/fetch":     true,
	"/api/v1/cache":          true,
	"/api/v1/cache/stats":    true,
	"/api/v1/stream/predict": true,
}

const predictionsPrefix = "/api/v1/predictions/"

// normalizeRoute maps a request path to a bounded set of metric labels.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, predictionsPrefix); ok && id != "" && !strings.Contains(id, "/") {
		return predictionsPrefix + "{id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers flush through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// profileLabel keeps caller-supplied profile names out of label values.
func profileLabel(profile string) string {
	switch profile {
	case "standard", "valbal":
		return profile
	}
	return "unknown"
}

// RecordPrediction records one prediction attempt.
func RecordPrediction(profile, outcome string, d time.Duration, steps int) {
	profile = profileLabel(profile)
	predictionsTotal.WithLabelValues(profile, outcome).Inc()
	predictionDurationSeconds.WithLabelValues(profile).Observe(d.Seconds())
	if outcome == "ok" {
		predictionSteps.WithLabelValues(profile).Observe(float64(steps))
	}
}

// SetWindDataset publishes the shape of the loaded wind dataset.
func SetWindDataset(levels, snapshots int) {
	windDatasetLevels.Set(float64(levels))
	windDatasetSnapshots.Set(float64(snapshots))
}

// SetWindDatasetAge publishes the dataset age; -1 means none loaded.
func SetWindDatasetAge(seconds float64) {
	windDatasetAgeSeconds.Set(seconds)
}

// IncWindFetches counts a dataset download attempt.
func IncWindFetches(outcome string) {
	windFetchesTotal.WithLabelValues(outcome).Inc()
}

// IncCacheHits increments the cache hit counter.
func IncCacheHits() {
	cacheHitsTotal.Inc()
}

// IncCacheMisses increments the cache miss counter.
func IncCacheMisses() {
	cacheMissesTotal.Inc()
}

// AddCacheEvictions adds n to the eviction counter.
func AddCacheEvictions(n int) {
	cacheEvictionsTotal.Add(float64(n))
}

// SetCacheEntries sets the cached entry gauge.
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

// StreamOpened and StreamClosed track open SSE streams.
func StreamOpened() { streamConnections.Inc() }
func StreamClosed() { streamConnections.Dec() }

// AddStreamPoints counts track points written to SSE clients.
func AddStreamPoints(n int) {
	streamPointsTotal.Add(float64(n))
}

// IncStreamRejected counts a refused SSE connection.
func IncStreamRejected(reason string) {
	streamRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveBatchSize records the number of predictions in a batch request.
func ObserveBatchSize(n int) {
	batchSize.Observe(float64(n))
}
