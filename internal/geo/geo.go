// Package geo holds the position and velocity values the predictor integrates.
//
// Positions are geodetic (degrees, metres) on a spherical Earth. Velocities are
// local North-East-Up components in metres per second. Both types are plain
// values: every operation returns a new value and never mutates its receiver.
package geo

import (
	"math"
	"time"
)

// EarthRadius is the mean Earth radius in metres used to turn horizontal
// displacement into angular displacement.
const EarthRadius = 6371009.0

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi

	// minCosLatitude keeps the longitude update finite at the poles.
	minCosLatitude = 1e-9
)

// Point is a balloon position at an instant.
type Point struct {
	Latitude  float64   `json:"latitude" yaml:"latitude"`   // degrees, north positive
	Longitude float64   `json:"longitude" yaml:"longitude"` // degrees, east positive
	Altitude  float64   `json:"altitude" yaml:"altitude"`   // metres above mean sea level, may be negative
	Time      time.Time `json:"time" yaml:"time"`
}

// Velocity is a local NEU velocity in m/s.
type Velocity struct {
	North    float64 `json:"north"`
	East     float64 `json:"east"`
	Vertical float64 `json:"vertical"`
}

// Add returns the component-wise sum of v and o.
func (v Velocity) Add(o Velocity) Velocity {
	return Velocity{
		North:    v.North + o.North,
		East:     v.East + o.East,
		Vertical: v.Vertical + o.Vertical,
	}
}

// Scale returns v with every component multiplied by k.
func (v Velocity) Scale(k float64) Velocity {
	return Velocity{North: v.North * k, East: v.East * k, Vertical: v.Vertical * k}
}

// IsFinite reports whether every component is a finite number.
func (v Velocity) IsFinite() bool {
	return isFinite(v.North) && isFinite(v.East) && isFinite(v.Vertical)
}

// Speed returns the horizontal speed in m/s.
func (v Velocity) Speed() float64 {
	return math.Hypot(v.North, v.East)
}

// Advance moves p by velocity v held constant for step (one Euler step).
// Horizontal displacement is converted to degrees on a sphere of radius
// EarthRadius+altitude; time advances by exactly step.
func (p Point) Advance(v Velocity, step time.Duration) Point {
	d := v.Scale(step.Seconds()) // metres moved along each axis
	r := EarthRadius + p.Altitude

	cosLat := math.Cos(p.Latitude * deg2rad)
	if math.Abs(cosLat) < minCosLatitude {
		cosLat = math.Copysign(minCosLatitude, cosLat)
	}

	lat := p.Latitude + rad2deg*d.North/r
	lon := p.Longitude + rad2deg*d.East/(r*cosLat)

	// Crossing a pole continues down the opposite meridian.
	switch {
	case lat > 90:
		lat = 180 - lat
		lon += 180
	case lat < -90:
		lat = -180 - lat
		lon += 180
	}

	return Point{
		Latitude:  lat,
		Longitude: NormalizeLongitude(lon),
		Altitude:  p.Altitude + d.Vertical,
		Time:      p.Time.Add(step),
	}
}

// IsFinite reports whether the coordinates of p are finite numbers.
func (p Point) IsFinite() bool {
	return isFinite(p.Latitude) && isFinite(p.Longitude) && isFinite(p.Altitude)
}

// NormalizeLongitude maps lon into [-180, 180).
func NormalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// MetersPerDegreeLatitude returns the north-south length of one degree at altitude alt.
func MetersPerDegreeLatitude(alt float64) float64 {
	return (EarthRadius + alt) * deg2rad
}

// Distance returns the great-circle distance in metres between a and b at
// ground level (haversine).
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * deg2rad
	lat2 := b.Latitude * deg2rad
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * deg2rad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Bearing returns the initial great-circle bearing from a to b in degrees,
// 0 = North, measured clockwise in [0, 360).
func Bearing(a, b Point) float64 {
	lat1 := a.Latitude * deg2rad
	lat2 := b.Latitude * deg2rad
	dLon := (b.Longitude - a.Longitude) * deg2rad

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	brg := math.Atan2(y, x) * rad2deg
	if brg < 0 {
		brg += 360
	}
	return brg
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
