package predictor

import (
	"errors"
	"fmt"

	"github.com/zfurman56/hab-predictor/internal/geo"
)

// Error kinds. Every error returned by Predict, Standard and ValBal matches
// exactly one of these with errors.Is, except context cancellation.
var (
	ErrInvalidParameters        = errors.New("invalid parameters")
	ErrWindFieldLookup          = errors.New("wind field lookup failed")
	ErrNonTerminatingSimulation = errors.New("simulation exceeded its step budget")
)

var errNonFiniteVelocity = errors.New("wind field returned a non-finite velocity")

// ParamError describes a rejected input field.
type ParamError struct {
	Field  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameters: %s %s", e.Field, e.Reason)
}

func (e *ParamError) Unwrap() error { return ErrInvalidParameters }

// LookupError is returned when the wind field cannot resolve a velocity at
// the current position of the simulation.
type LookupError struct {
	Phase Phase
	Point geo.Point
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("wind lookup during %s at (%.5f, %.5f, %.1f m, %s): %v",
		e.Phase, e.Point.Latitude, e.Point.Longitude, e.Point.Altitude,
		e.Point.Time.UTC().Format("2006-01-02T15:04:05Z"), e.Err)
}

func (e *LookupError) Unwrap() []error { return []error{ErrWindFieldLookup, e.Err} }

// BudgetError is returned when a phase runs for more than the configured
// maximum number of steps.
type BudgetError struct {
	Phase Phase
	Steps int
	Last  geo.Point
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("%s phase did not terminate within %d steps (last altitude %.1f m)",
		e.Phase, e.Steps, e.Last.Altitude)
}

func (e *BudgetError) Unwrap() error { return ErrNonTerminatingSimulation }
