// Package predictor integrates a balloon's position through a wind field.
//
// Predict validates a Params bundle, projects it onto the selected profile
// and runs the matching stepper. Standard and ValBal run the steppers
// directly and, like the model they implement, do not validate rates or
// durations; every phase is still bounded by Config.MaxSteps.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zfurman56/hab-predictor/internal/geo"
	"github.com/zfurman56/hab-predictor/internal/metrics"
)

const tracerName = "github.com/zfurman56/hab-predictor/internal/predictor"

// WindField resolves the ambient wind at a position and time.
type WindField interface {
	VelocityAt(p geo.Point) (geo.Velocity, error)
}

// Phase names a stage of a simulated flight.
type Phase string

const (
	PhaseAscending  Phase = "ascending"
	PhaseBursted    Phase = "bursted"
	PhaseDescending Phase = "descending"
	PhaseLanded     Phase = "landed"
	PhaseFloating   Phase = "floating"
	PhaseCompleted  Phase = "completed"
)

// Predictor runs flight predictions against one wind field. Safe for
// concurrent use; each call owns all of its state.
type Predictor struct {
	wind   WindField
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a Predictor. Non-positive Config fields take their defaults.
func New(wind WindField, cfg Config, logger *slog.Logger) *Predictor {
	return &Predictor{
		wind:   wind,
		cfg:    cfg.withDefaults(),
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Config returns the effective integration settings.
func (pr *Predictor) Config() Config {
	return pr.cfg
}

// Predict validates params and runs the stepper for params.Profile.
func (pr *Predictor) Predict(ctx context.Context, params Params) (Prediction, error) {
	ctx, span := pr.tracer.Start(ctx, "predictor.Predict", trace.WithAttributes(
		attribute.String("profile", string(params.Profile)),
		attribute.Float64("step_seconds", pr.cfg.Step.Seconds()),
	))
	defer span.End()

	start := time.Now()
	pred, err := pr.dispatch(ctx, params)
	elapsed := time.Since(start)

	steps := 0
	if pred != nil {
		steps = pred.Steps()
	}
	metrics.RecordPrediction(string(params.Profile), Outcome(err), elapsed, steps)
	span.SetAttributes(attribute.Int("steps", steps))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		pr.logger.Debug("prediction failed",
			"profile", params.Profile,
			"outcome", Outcome(err),
			"error", err,
		)
		return nil, err
	}

	pr.logger.Debug("prediction complete",
		"profile", params.Profile,
		"steps", steps,
		"duration_ms", elapsed.Milliseconds(),
	)
	return pred, nil
}

func (pr *Predictor) dispatch(ctx context.Context, params Params) (Prediction, error) {
	if err := validateLaunch(params.Launch); err != nil {
		return nil, err
	}
	if err := pr.validateLaunchTime(params.Launch.Time); err != nil {
		return nil, err
	}

	switch params.Profile {
	case ProfileStandard:
		sp := params.Standard()
		if err := pr.validateStandard(sp); err != nil {
			return nil, err
		}
		pred, err := pr.Standard(ctx, sp)
		if err != nil {
			return nil, err
		}
		return pred, nil
	case ProfileValBal:
		vp := params.ValBal()
		if err := pr.validateValBal(vp); err != nil {
			return nil, err
		}
		pred, err := pr.ValBal(ctx, vp)
		if err != nil {
			return nil, err
		}
		return pred, nil
	default:
		return nil, &ParamError{Field: "profile", Reason: fmt.Sprintf("%q is not one of standard, valbal", params.Profile)}
	}
}

func (pr *Predictor) validateStandard(p StandardParams) error {
	if err := positiveRate("ascent_rate", p.AscentRate); err != nil {
		return err
	}
	if err := positiveRate("descent_rate", p.DescentRate); err != nil {
		return err
	}
	if math.IsNaN(p.BurstAltitude) || math.IsInf(p.BurstAltitude, 0) {
		return &ParamError{Field: "burst_altitude", Reason: "must be a finite number"}
	}
	if p.BurstAltitude > pr.cfg.MaxBurstAltitude {
		return &ParamError{Field: "burst_altitude", Reason: fmt.Sprintf("%.0f m is above the %.0f m ceiling", p.BurstAltitude, pr.cfg.MaxBurstAltitude)}
	}

	// With a wind field that has no vertical component the phases take a
	// known number of steps; reject what cannot finish within the budget.
	stepSec := pr.cfg.Step.Seconds()
	top := math.Max(p.BurstAltitude, p.Launch.Altitude)
	if need := math.Ceil((p.BurstAltitude - p.Launch.Altitude) / (p.AscentRate * stepSec)); need > float64(pr.cfg.MaxSteps) {
		return &ParamError{Field: "burst_altitude", Reason: fmt.Sprintf("is not reachable within %d steps at %g m/s", pr.cfg.MaxSteps, p.AscentRate)}
	}
	if need := math.Ceil(top / (p.DescentRate * stepSec)); need > float64(pr.cfg.MaxSteps) {
		return &ParamError{Field: "descent_rate", Reason: fmt.Sprintf("%g m/s cannot land from %.0f m within %d steps", p.DescentRate, top, pr.cfg.MaxSteps)}
	}
	return nil
}

// Track timestamps are encoded as RFC 3339, which only covers years
// 0001 through 9999.
var (
	earliestTime = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	latestTime   = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
)

// validateLaunchTime rejects launches whose track could leave the
// encodable range. The longest flight is two full phases of MaxSteps.
func (pr *Predictor) validateLaunchTime(t time.Time) error {
	longest := math.Ceil(2 * float64(pr.cfg.MaxSteps) * pr.cfg.Step.Seconds())
	span := latestTime.Unix() - earliestTime.Unix()
	if t.Before(earliestTime) || longest > float64(span) || t.Unix() > latestTime.Unix()-int64(longest) {
		return &ParamError{
			Field:  "launch.time",
			Reason: fmt.Sprintf("%s is outside the supported range", t.UTC().Format(time.RFC3339)),
		}
	}
	return nil
}

func (pr *Predictor) validateValBal(p ValBalParams) error {
	if err := positiveRate("duration", p.Duration); err != nil {
		return err
	}
	if need := math.Ceil(p.Duration * 60 / pr.cfg.Step.Seconds()); need > float64(pr.cfg.MaxSteps) {
		return &ParamError{Field: "duration", Reason: fmt.Sprintf("%g minutes exceeds %d steps of %s", p.Duration, pr.cfg.MaxSteps, pr.cfg.Step)}
	}
	return nil
}

// Standard simulates ascent at AscentRate until the altitude reaches
// BurstAltitude, then descent at DescentRate until it reaches the ground.
// The burst point is the first sample at or above BurstAltitude; the last
// descent sample is the first at or below zero. Neither is interpolated.
func (pr *Predictor) Standard(ctx context.Context, p StandardParams) (*StandardPrediction, error) {
	ascent, err := pr.integrate(ctx, PhaseAscending, p.Launch,
		geo.Velocity{Vertical: p.AscentRate},
		func(cur geo.Point) bool { return cur.Altitude < p.BurstAltitude },
	)
	if err != nil {
		return nil, err
	}

	burst := p.Launch
	if len(ascent) > 0 {
		burst = ascent[len(ascent)-1]
	}

	descent, err := pr.integrate(ctx, PhaseDescending, burst,
		geo.Velocity{Vertical: -p.DescentRate},
		func(cur geo.Point) bool { return cur.Altitude > 0 },
	)
	if err != nil {
		return nil, err
	}

	return &StandardPrediction{Ascent: ascent, Burst: burst, Descent: descent}, nil
}

// ValBal simulates pure wind drift from Launch until Duration minutes have
// elapsed. Fractional minutes are honoured to the nanosecond.
func (pr *Predictor) ValBal(ctx context.Context, p ValBalParams) (*ValBalPrediction, error) {
	end := p.Launch.Time.Add(minutes(p.Duration))

	positions, err := pr.integrate(ctx, PhaseFloating, p.Launch, geo.Velocity{},
		func(cur geo.Point) bool { return cur.Time.Before(end) },
	)
	if err != nil {
		return nil, err
	}
	return &ValBalPrediction{Positions: positions}, nil
}

// integrate advances from start by wind plus forced velocity while cont
// holds, recording every new position. The returned slice is never nil.
func (pr *Predictor) integrate(ctx context.Context, phase Phase, start geo.Point, forced geo.Velocity, cont func(geo.Point) bool) ([]geo.Point, error) {
	points := make([]geo.Point, 0, 64)
	current := start

	for steps := 0; cont(current); steps++ {
		if steps >= pr.cfg.MaxSteps {
			return nil, &BudgetError{Phase: phase, Steps: steps, Last: current}
		}
		if steps%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		wind, err := pr.wind.VelocityAt(current)
		if err != nil {
			return nil, &LookupError{Phase: phase, Point: current, Err: err}
		}
		v := wind.Add(forced)
		if !v.IsFinite() {
			return nil, &LookupError{Phase: phase, Point: current, Err: errNonFiniteVelocity}
		}

		current = current.Advance(v, pr.cfg.Step)
		points = append(points, current)
	}

	return points, nil
}

// minutes converts fractional minutes to a Duration, saturating instead of
// overflowing.
func minutes(m float64) time.Duration {
	ns := m * float64(time.Minute)
	switch {
	case math.IsNaN(ns):
		return 0
	case ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	case ns <= math.MinInt64:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ns)
}

// Outcome classifies a prediction error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidParameters):
		return "invalid_parameters"
	case errors.Is(err, ErrWindFieldLookup):
		return "wind_lookup"
	case errors.Is(err, ErrNonTerminatingSimulation):
		return "non_terminating"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
