package ensemble

import (
	"fmt"
	"math"
	"time"

	"github.com/zfurman56/hab-predictor/internal/predictor"
)

const (
	// MaxWindowSize bounds the number of launches a single window may expand to.
	MaxWindowSize = 256
	// MaxWindowSpan bounds the time from the first launch of a window to its last.
	MaxWindowSpan = 366 * 24 * time.Hour
)

// Window describes a series of launches of the same flight spaced
// IntervalMinutes apart, starting at the base launch time.
type Window struct {
	IntervalMinutes float64 `json:"interval_minutes" yaml:"interval_minutes"`
	Count           int     `json:"count" yaml:"count"`
}

// Expand returns Count copies of base with launch times advanced by
// successive multiples of the interval.
func (w Window) Expand(base predictor.Params) ([]predictor.Params, error) {
	if w.Count < 1 || w.Count > MaxWindowSize {
		return nil, &predictor.ParamError{Field: "window.count", Reason: fmt.Sprintf("must be between 1 and %d", MaxWindowSize)}
	}
	var interval time.Duration
	if w.Count > 1 {
		m := w.IntervalMinutes
		if math.IsNaN(m) || math.IsInf(m, 0) || m <= 0 {
			return nil, &predictor.ParamError{Field: "window.interval_minutes", Reason: "must be positive"}
		}
		// Checked in minutes so the Duration arithmetic below cannot overflow.
		if m*float64(w.Count-1) > MaxWindowSpan.Minutes() {
			return nil, &predictor.ParamError{
				Field:  "window.interval_minutes",
				Reason: fmt.Sprintf("%d launches %g minutes apart span more than %s", w.Count, m, MaxWindowSpan),
			}
		}
		interval = time.Duration(m * float64(time.Minute))
		if interval <= 0 {
			return nil, &predictor.ParamError{Field: "window.interval_minutes", Reason: "is shorter than a nanosecond"}
		}
	}

	out := make([]predictor.Params, w.Count)
	for i := range out {
		p := base
		p.Launch.Time = base.Launch.Time.Add(time.Duration(i) * interval)
		out[i] = p
	}
	return out, nil
}
