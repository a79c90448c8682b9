// Package api wires the HTTP routes of the prediction service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zfurman56/hab-predictor/internal/auth"
	"github.com/zfurman56/hab-predictor/internal/cache"
	"github.com/zfurman56/hab-predictor/internal/ensemble"
	"github.com/zfurman56/hab-predictor/internal/health"
	"github.com/zfurman56/hab-predictor/internal/metrics"
	"github.com/zfurman56/hab-predictor/internal/stream"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

// Deps are the components the routes are served from.
type Deps struct {
	Store     *wind.Store
	Service   *PredictionService
	Results   *cache.ResultCache // optional
	Pool      *ensemble.WorkerPool
	Stream    *stream.Handler
	Fetcher   *wind.Fetcher // optional; nil disables POST /api/v1/wind/fetch
	WindCache *wind.Cache   // optional
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(logger, authCfg, deps),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			// Long predictions and batches; streams clear their own deadline.
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed handler with the full middleware chain:
// otelhttp -> metrics -> logging -> auth -> mux.
func NewHandler(logger *slog.Logger, authCfg auth.Config, deps Deps) http.Handler {
	h := &handlers{deps: deps, logger: logger}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Store))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/predict", h.predict)
	mux.HandleFunc("POST /api/v1/predict/batch", h.predictBatch)
	mux.HandleFunc("GET /api/v1/predictions/{id}", h.getPrediction)
	mux.HandleFunc("GET /api/v1/wind/metadata", h.windMetadata)
	mux.HandleFunc("GET /api/v1/wind/velocity", h.windVelocity)
	mux.HandleFunc("POST /api/v1/wind/fetch", h.windFetch)
	mux.HandleFunc("GET /api/v1/cache/stats", h.cacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", h.cachePurge)
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/predict", deps.Stream.HandlePredict)
	}

	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = accessLog(logger)(handler)
	handler = metrics.Middleware(handler)
	return otelhttp.NewHandler(handler, "hab-predictor",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
