// Package stream serves a prediction as Server-Sent Events. Clients connect
// via GET /api/v1/stream/predict with the launch parameters in the query
// string and receive the track in batches as it is written out.
//
// SSE message format:
//
//	retry: 4200\n\n
//	id: 0\ndata: {"type":"metadata","id":"...","profile":"standard","dataset":"...","steps":5400}\n\n
//	id: 1\ndata: {"type":"points","phase":"ascending","seq":0,"points":[...]}\n\n
//	id: 9\ndata: {"type":"burst","point":{...}}\n\n
//	id: 19\ndata: {"type":"summary","summary":{...}}\n\n
//
// The stream ends after the summary message. Reconnecting clients receive
// the whole prediction again.
package stream

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/zfurman56/hab-predictor/internal/ensemble"
	"github.com/zfurman56/hab-predictor/internal/geo"
	"github.com/zfurman56/hab-predictor/internal/httputil"
	"github.com/zfurman56/hab-predictor/internal/metrics"
	"github.com/zfurman56/hab-predictor/internal/predictor"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int  // Max concurrent streams per IP (default: 10).
	MaxTotal           int  // Max concurrent streams overall (default: 1000).
	BatchSize          int  // Points per message (default: 100).
	TrustProxy         bool // Use X-Forwarded-For for the per-IP limit.
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentPerIP <= 0 {
		c.MaxConcurrentPerIP = 10
	}
	if c.MaxTotal <= 0 {
		c.MaxTotal = 1000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

// Handler manages SSE streaming connections.
type Handler struct {
	predict ensemble.PredictFunc
	store   *wind.Store
	config  Config
	slots   *admission
	logger  *slog.Logger
}

// NewHandler creates a streaming handler that computes predictions with
// predict. store is consulted only to refuse streams before a dataset is
// loaded.
func NewHandler(predict ensemble.PredictFunc, store *wind.Store, config Config, logger *slog.Logger) *Handler {
	config = config.withDefaults()
	return &Handler{
		predict: predict,
		store:   store,
		config:  config,
		slots:   newAdmission(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:  logger,
	}
}

// HandlePredict serves the SSE prediction stream.
// GET /api/v1/stream/predict?profile=standard&lat=..&lon=..&time=..
func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	params, err := predictor.ParamsFromQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, refused := h.slots.admit(ip)
	if release == nil {
		metrics.IncStreamRejected(refused)
		forClient, total := h.slots.streams(ip)
		h.logger.Warn("stream refused",
			"remote_ip", ip,
			"reason", refused,
			"client_streams", forClient,
			"total_streams", total,
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}
	defer release()

	if h.store != nil && h.store.Get() == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no wind dataset loaded")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The prediction runs before any SSE bytes go out so failures still map
	// to a status code.
	env, err := h.predict(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, httputil.StatusFor(err), err.Error())
		return
	}

	metrics.StreamOpened()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"prediction_id", env.ID,
		"steps", env.Prediction.Steps(),
	)
	defer func() {
		metrics.StreamClosed()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"prediction_id", env.ID,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)

	sw := newSSEWriter(w, flusher, h.logger)
	// Jittered 3-7s so clients do not reconnect in lockstep after a restart.
	retry := 3*time.Second + time.Duration(rand.Int63n(int64(4*time.Second)))
	err = sw.open(retry)
	if err == nil {
		err = h.send(r.Context(), sw, env)
	}
	if err != nil {
		h.logger.Warn("stream send error", "remote_ip", ip, "prediction_id", env.ID, "error", err)
		return
	}
	h.logger.Debug("stream complete",
		"remote_ip", ip,
		"messages_sent", sw.sent,
		"bytes_sent", sw.bytes,
	)
}

// send writes the metadata, track batches and summary of env to sw.
func (h *Handler) send(ctx context.Context, sw *sseWriter, env *predictor.Envelope) error {
	meta := metadataMessage{
		Type:    "metadata",
		ID:      env.ID,
		Profile: env.Profile,
		Dataset: env.Dataset,
		Steps:   env.Prediction.Steps(),
	}
	if err := sw.send(meta); err != nil {
		return err
	}

	switch p := env.Prediction.(type) {
	case *predictor.StandardPrediction:
		if err := h.sendPhase(ctx, sw, predictor.PhaseAscending, p.Ascent); err != nil {
			return err
		}
		if err := sw.send(burstMessage{Type: "burst", Point: p.Burst}); err != nil {
			return err
		}
		if err := h.sendPhase(ctx, sw, predictor.PhaseDescending, p.Descent); err != nil {
			return err
		}
	case *predictor.ValBalPrediction:
		if err := h.sendPhase(ctx, sw, predictor.PhaseFloating, p.Positions); err != nil {
			return err
		}
	}

	return sw.send(summaryMessage{Type: "summary", Summary: env.Summary})
}

func (h *Handler) sendPhase(ctx context.Context, sw *sseWriter, phase predictor.Phase, points []geo.Point) error {
	for seq, batch := range batches(points, h.config.BatchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := pointsMessage{Type: "points", Phase: phase, Seq: seq, Points: batch}
		if err := sw.send(msg); err != nil {
			return err
		}
		metrics.AddStreamPoints(len(batch))
	}
	return nil
}

// batches splits points into consecutive chunks of at most size points.
func batches(points []geo.Point, size int) [][]geo.Point {
	var out [][]geo.Point
	for start := 0; start < len(points); start += size {
		out = append(out, points[start:min(start+size, len(points))])
	}
	return out
}

// SSE message payload types.

type metadataMessage struct {
	Type    string            `json:"type"`
	ID      string            `json:"id"`
	Profile predictor.Profile `json:"profile"`
	Dataset string            `json:"dataset,omitempty"`
	Steps   int               `json:"steps"`
}

type pointsMessage struct {
	Type   string          `json:"type"`
	Phase  predictor.Phase `json:"phase"`
	Seq    int             `json:"seq"`
	Points []geo.Point     `json:"points"`
}

type burstMessage struct {
	Type  string    `json:"type"`
	Point geo.Point `json:"point"`
}

type summaryMessage struct {
	Type    string             `json:"type"`
	Summary *predictor.Summary `json:"summary"`
}
