package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zfurman56/hab-predictor/internal/predictor"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

// StatusClientClosedRequest is the nginx convention for a client that went
// away before the response was written.
const StatusClientClosedRequest = 499

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": msg} with the given status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// StatusFor maps a prediction or wind error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, predictor.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, predictor.ErrWindFieldLookup),
		errors.Is(err, predictor.ErrNonTerminatingSimulation),
		errors.Is(err, wind.ErrOutOfCoverage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wind.ErrNoDataset):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
