package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zfurman56/hab-predictor/internal/predictor"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&predictor.ParamError{Field: "x", Reason: "y"}, http.StatusBadRequest},
		{&predictor.LookupError{Err: wind.ErrOutOfCoverage}, http.StatusUnprocessableEntity},
		{&predictor.BudgetError{Phase: predictor.PhaseDescending}, http.StatusUnprocessableEntity},
		{fmt.Errorf("velocity: %w", wind.ErrOutOfCoverage), http.StatusUnprocessableEntity},
		{wind.ErrNoDataset, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{context.Canceled, StatusClientClosedRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusTeapot, "short and stout")

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body["error"] != "short and stout" {
		t.Errorf("body = %v, %v", body, err)
	}
}
