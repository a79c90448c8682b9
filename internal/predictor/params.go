package predictor

import (
	"fmt"
	"math"
	"strings"

	"github.com/zfurman56/hab-predictor/internal/geo"
)

// Profile selects the flight model.
type Profile string

const (
	// ProfileStandard is a latex balloon: ascent to burst, then descent under parachute.
	ProfileStandard Profile = "standard"
	// ProfileValBal is a constant-altitude float for a fixed duration.
	ProfileValBal Profile = "valbal"
)

// ParseProfile resolves a profile name case-insensitively.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ProfileStandard):
		return ProfileStandard, nil
	case string(ProfileValBal), "val_bal":
		return ProfileValBal, nil
	}
	return "", &ParamError{Field: "profile", Reason: fmt.Sprintf("%q is not one of standard, valbal", s)}
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON and YAML inputs.
func (p *Profile) UnmarshalText(b []byte) error {
	parsed, err := ParseProfile(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Params is the full input bundle for any profile. Only the fields of the
// selected profile are meaningful.
type Params struct {
	Profile Profile   `json:"profile" yaml:"profile"`
	Launch  geo.Point `json:"launch" yaml:"launch"`

	// Standard profile.
	BurstAltitude float64 `json:"burst_altitude,omitempty" yaml:"burst_altitude"` // m
	AscentRate    float64 `json:"ascent_rate,omitempty" yaml:"ascent_rate"`       // m/s
	DescentRate   float64 `json:"descent_rate,omitempty" yaml:"descent_rate"`     // m/s

	// ValBal profile.
	Duration float64 `json:"duration,omitempty" yaml:"duration"` // minutes
}

// StandardParams is the subset of Params the standard stepper consumes.
type StandardParams struct {
	Launch        geo.Point
	BurstAltitude float64
	AscentRate    float64
	DescentRate   float64
}

// ValBalParams is the subset of Params the ValBal stepper consumes.
type ValBalParams struct {
	Launch   geo.Point
	Duration float64 // minutes
}

// Standard projects p onto the standard profile.
func (p Params) Standard() StandardParams {
	return StandardParams{
		Launch:        p.Launch,
		BurstAltitude: p.BurstAltitude,
		AscentRate:    p.AscentRate,
		DescentRate:   p.DescentRate,
	}
}

// ValBal projects p onto the ValBal profile.
func (p Params) ValBal() ValBalParams {
	return ValBalParams{Launch: p.Launch, Duration: p.Duration}
}

func validateLaunch(l geo.Point) error {
	if !l.IsFinite() {
		return &ParamError{Field: "launch", Reason: "has a non-finite coordinate"}
	}
	if l.Latitude < -90 || l.Latitude > 90 {
		return &ParamError{Field: "launch.latitude", Reason: fmt.Sprintf("%g outside [-90, 90]", l.Latitude)}
	}
	if l.Longitude < -180 || l.Longitude >= 360 {
		return &ParamError{Field: "launch.longitude", Reason: fmt.Sprintf("%g outside [-180, 360)", l.Longitude)}
	}
	if l.Time.IsZero() {
		return &ParamError{Field: "launch.time", Reason: "is required"}
	}
	return nil
}

func positiveRate(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return &ParamError{Field: field, Reason: fmt.Sprintf("must be a positive number, got %g", v)}
	}
	return nil
}
