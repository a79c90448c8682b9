package predictor

import (
	"math"

	"github.com/zfurman56/hab-predictor/internal/geo"
)

// Summary condenses a prediction into the figures a recovery team needs.
type Summary struct {
	Landing       geo.Point  `json:"landing"`
	Burst         *geo.Point `json:"burst,omitempty"`
	MaxAltitude   float64    `json:"max_altitude"`
	FlightSeconds float64    `json:"flight_seconds"`
	Distance      float64    `json:"distance_m"`  // great circle, launch to landing
	Bearing       float64    `json:"bearing_deg"` // initial bearing, launch to landing
	Steps         int        `json:"steps"`
}

// Summarize computes the summary of p flown from launch. An empty track
// lands where it launched.
func Summarize(launch geo.Point, p Prediction) Summary {
	track := p.Track()
	s := Summary{
		Landing:     launch,
		MaxAltitude: launch.Altitude,
		Steps:       p.Steps(),
	}

	if sp, ok := p.(*StandardPrediction); ok {
		burst := sp.Burst
		s.Burst = &burst
		s.MaxAltitude = math.Max(s.MaxAltitude, burst.Altitude)
	}

	for _, pt := range track {
		s.MaxAltitude = math.Max(s.MaxAltitude, pt.Altitude)
	}
	if len(track) == 0 {
		return s
	}

	s.Landing = track[len(track)-1]
	s.FlightSeconds = s.Landing.Time.Sub(launch.Time).Seconds()
	s.Distance = geo.Distance(launch, s.Landing)
	s.Bearing = geo.Bearing(launch, s.Landing)
	return s
}
