package predictor

import "time"

const (
	// DefaultStep is the simulated time covered by one Euler step.
	DefaultStep = time.Second
	// DefaultMaxSteps bounds each flight phase; about 11.5 days at DefaultStep.
	DefaultMaxSteps = 1_000_000
	// DefaultMaxBurstAltitude is the highest burst altitude accepted by Predict.
	DefaultMaxBurstAltitude = 60_000.0

	cancelCheckInterval = 1024
)

// Config holds integration settings.
type Config struct {
	Step             time.Duration // simulated time per step
	MaxSteps         int           // per-phase step budget
	MaxBurstAltitude float64       // metres
}

// DefaultConfig returns the default integration settings.
func DefaultConfig() Config {
	return Config{
		Step:             DefaultStep,
		MaxSteps:         DefaultMaxSteps,
		MaxBurstAltitude: DefaultMaxBurstAltitude,
	}
}

// withDefaults replaces non-positive settings with their defaults.
func (c Config) withDefaults() Config {
	if c.Step <= 0 {
		c.Step = DefaultStep
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.MaxBurstAltitude <= 0 {
		c.MaxBurstAltitude = DefaultMaxBurstAltitude
	}
	return c
}
