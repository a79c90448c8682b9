package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zfurman56/hab-predictor/internal/ensemble"
	"github.com/zfurman56/hab-predictor/internal/geo"
	"github.com/zfurman56/hab-predictor/internal/httputil"
	"github.com/zfurman56/hab-predictor/internal/predictor"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

// decodeJSON reads a single JSON value from the request body into v,
// rejecting unknown fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid request body: trailing data after JSON value")
	}
	return nil
}

// POST /api/v1/predict
func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	var params predictor.Params
	if err := decodeJSON(w, r, &params); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	env, hit, err := h.deps.Service.predict(r.Context(), params)
	if err != nil {
		status := httputil.StatusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("prediction failed",
				"request_id", RequestID(r.Context()),
				"profile", params.Profile,
				"error", err,
			)
		}
		httputil.WriteError(w, status, err.Error())
		return
	}

	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	httputil.WriteJSON(w, http.StatusOK, env)
}

type batchRequest struct {
	Predictions []predictor.Params `json:"predictions,omitempty"`
	Base        *predictor.Params  `json:"base,omitempty"`
	Window      *ensemble.Window   `json:"window,omitempty"`
}

// members expands the request into the list of predictions to run.
func (b batchRequest) members() ([]predictor.Params, error) {
	switch {
	case len(b.Predictions) > 0 && (b.Base != nil || b.Window != nil):
		return nil, errors.New(`give either "predictions" or "base" with "window", not both`)
	case len(b.Predictions) > 0:
		if len(b.Predictions) > ensemble.MaxWindowSize {
			return nil, fmt.Errorf("batch of %d exceeds the limit of %d", len(b.Predictions), ensemble.MaxWindowSize)
		}
		return b.Predictions, nil
	case b.Base != nil && b.Window != nil:
		return b.Window.Expand(*b.Base)
	default:
		return nil, errors.New(`request needs "predictions" or "base" with "window"`)
	}
}

type batchResponse struct {
	Results   []ensemble.Result `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// POST /api/v1/predict/batch
func (h *handlers) predictBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	batch, err := req.members()
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.deps.Store.Get() == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, wind.ErrNoDataset.Error())
		return
	}

	results, ok, failed := h.deps.Pool.RunBatch(r.Context(), h.deps.Service.Predict, batch)
	httputil.WriteJSON(w, http.StatusOK, batchResponse{
		Results:   results,
		Succeeded: ok,
		Failed:    failed,
	})
}

// GET /api/v1/predictions/{id}
func (h *handlers) getPrediction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if h.deps.Results == nil {
		httputil.WriteError(w, http.StatusNotFound, "prediction not found")
		return
	}
	env := h.deps.Results.GetByID(id)
	if env == nil {
		httputil.WriteError(w, http.StatusNotFound, "prediction not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, env)
}

type windMetadataResponse struct {
	wind.Info
	AgeSeconds   float64 `json:"age_seconds"`
	FetchEnabled bool    `json:"fetch_enabled"`
}

// GET /api/v1/wind/metadata
func (h *handlers) windMetadata(w http.ResponseWriter, r *http.Request) {
	ds := h.deps.Store.Get()
	if ds == nil || ds.Field == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, wind.ErrNoDataset.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, windMetadataResponse{
		Info:         ds.Info(),
		AgeSeconds:   h.deps.Store.AgeSeconds(),
		FetchEnabled: h.fetchEnabled(),
	})
}

type windVelocityResponse struct {
	Point    geo.Point    `json:"point"`
	Velocity geo.Velocity `json:"velocity"`
	Speed    float64      `json:"speed"`
}

// GET /api/v1/wind/velocity?lat=..&lon=..&alt=..&time=..
func (h *handlers) windVelocity(w http.ResponseWriter, r *http.Request) {
	p, err := pointFromQuery(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	ds := h.deps.Store.Get()
	if ds == nil || ds.Field == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, wind.ErrNoDataset.Error())
		return
	}

	v, err := ds.Field.VelocityAt(p)
	if err != nil {
		httputil.WriteError(w, httputil.StatusFor(err), err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, windVelocityResponse{Point: p, Velocity: v, Speed: v.Speed()})
}

// pointFromQuery parses lat and lon (required), alt (default 0) and time
// (RFC 3339, default now).
func pointFromQuery(r *http.Request) (geo.Point, error) {
	q := r.URL.Query()
	var p geo.Point

	for _, f := range []struct {
		key      string
		dst      *float64
		required bool
	}{
		{"lat", &p.Latitude, true},
		{"lon", &p.Longitude, true},
		{"alt", &p.Altitude, false},
	} {
		v := q.Get(f.key)
		if v == "" {
			if f.required {
				return p, fmt.Errorf("missing %s parameter", f.key)
			}
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("invalid %s parameter %q", f.key, v)
		}
		*f.dst = n
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return p, fmt.Errorf("lat %g outside [-90, 90]", p.Latitude)
	}

	p.Time = time.Now().UTC()
	if v := q.Get("time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return p, fmt.Errorf("invalid time parameter %q, want RFC 3339", v)
		}
		p.Time = t
	}
	if !p.IsFinite() {
		return p, errors.New("coordinates must be finite")
	}
	return p, nil
}

func (h *handlers) fetchEnabled() bool {
	return h.deps.Fetcher != nil && h.deps.Fetcher.SourceURL() != ""
}

// POST /api/v1/wind/fetch
func (h *handlers) windFetch(w http.ResponseWriter, r *http.Request) {
	if !h.fetchEnabled() {
		httputil.WriteError(w, http.StatusServiceUnavailable, wind.ErrFetchDisabled.Error())
		return
	}

	ds, err := wind.Refresh(r.Context(), h.deps.Fetcher, h.deps.WindCache, h.deps.Store, h.logger)
	if err != nil {
		h.logger.Warn("wind fetch failed", "source", h.deps.Fetcher.SourceURL(), "error", err)
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ds.Info())
}

// GET /api/v1/cache/stats
func (h *handlers) cacheStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Results == nil {
		httputil.WriteError(w, http.StatusNotFound, "prediction cache disabled")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.deps.Results.Stats())
}

// DELETE /api/v1/cache
func (h *handlers) cachePurge(w http.ResponseWriter, r *http.Request) {
	if h.deps.Results == nil {
		httputil.WriteError(w, http.StatusNotFound, "prediction cache disabled")
		return
	}
	n := h.deps.Results.Purge()
	h.logger.Info("prediction cache purged", "entries_removed", n)
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"purged": n})
}
