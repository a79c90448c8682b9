package wind

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zfurman56/hab-predictor/internal/geo"
)

// ErrOutOfCoverage is returned when a lookup falls outside the horizontal,
// temporal or sampled extent of a wind field.
var ErrOutOfCoverage = errors.New("outside wind field coverage")

// Snapshot is the set of level grids valid at one forecast time.
type Snapshot struct {
	ValidTime time.Time
	grids     []*Grid // ascending altitude
}

// NewSnapshot groups level grids valid at t. At least one grid is required.
func NewSnapshot(t time.Time, grids []*Grid) (*Snapshot, error) {
	if len(grids) == 0 {
		return nil, fmt.Errorf("snapshot %s: no levels", t.Format(time.RFC3339))
	}
	sorted := make([]*Grid, len(grids))
	copy(sorted, grids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Altitude < sorted[j].Altitude })
	return &Snapshot{ValidTime: t.UTC(), grids: sorted}, nil
}

// Pressures returns the snapshot's levels in hPa, highest pressure first.
func (s *Snapshot) Pressures() []float64 {
	out := make([]float64, len(s.grids))
	for i, g := range s.grids {
		out[i] = g.Pressure
	}
	return out
}

// lookup interpolates linearly in altitude between the bracketing levels.
// Altitudes below the lowest or above the highest level use that level.
func (s *Snapshot) lookup(lat, lon, alt float64) (u, v float64, ok bool) {
	n := len(s.grids)
	if alt <= s.grids[0].Altitude {
		return s.grids[0].Lookup(lat, lon)
	}
	if alt >= s.grids[n-1].Altitude {
		return s.grids[n-1].Lookup(lat, lon)
	}

	hi := sort.Search(n, func(i int) bool { return s.grids[i].Altitude >= alt })
	lo := hi - 1
	u0, v0, ok := s.grids[lo].Lookup(lat, lon)
	if !ok {
		return 0, 0, false
	}
	u1, v1, ok := s.grids[hi].Lookup(lat, lon)
	if !ok {
		return 0, 0, false
	}

	w := (alt - s.grids[lo].Altitude) / (s.grids[hi].Altitude - s.grids[lo].Altitude)
	return u0 + (u1-u0)*w, v0 + (v1-v0)*w, true
}

// Field is a gridded forecast wind field: a time series of snapshots.
// A Field is immutable and safe for concurrent use.
type Field struct {
	snapshots []*Snapshot // ascending ValidTime
	validity  time.Duration
}

// NewField builds a field from snapshots in any order. validity is how long
// the last snapshot stays usable past its valid time.
func NewField(validity time.Duration, snapshots ...*Snapshot) (*Field, error) {
	if len(snapshots) == 0 {
		return nil, errors.New("wind field needs at least one snapshot")
	}
	if validity <= 0 {
		return nil, fmt.Errorf("snapshot validity must be positive, got %s", validity)
	}

	sorted := make([]*Snapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ValidTime.Before(sorted[j].ValidTime) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ValidTime.Equal(sorted[i-1].ValidTime) {
			return nil, fmt.Errorf("duplicate snapshot valid time %s", sorted[i].ValidTime.Format(time.RFC3339))
		}
	}

	return &Field{snapshots: sorted, validity: validity}, nil
}

// TimeRange returns the interval [start, end) the field covers.
func (f *Field) TimeRange() (start, end time.Time) {
	return f.snapshots[0].ValidTime, f.snapshots[len(f.snapshots)-1].ValidTime.Add(f.validity)
}

// Levels returns the pressure levels (hPa) of the earliest snapshot.
func (f *Field) Levels() []float64 {
	return f.snapshots[0].Pressures()
}

// Snapshots returns the number of forecast times in the field.
func (f *Field) Snapshots() int {
	return len(f.snapshots)
}

// VelocityAt returns the horizontal wind at p. The vertical component is
// always zero; vertical motion is imposed by the flight profile.
func (f *Field) VelocityAt(p geo.Point) (geo.Velocity, error) {
	start, end := f.TimeRange()
	if p.Time.Before(start) || !p.Time.Before(end) {
		return geo.Velocity{}, f.outOfCoverage(p, "time")
	}

	last := f.snapshots[len(f.snapshots)-1]
	if !p.Time.Before(last.ValidTime) {
		u, v, ok := last.lookup(p.Latitude, p.Longitude, p.Altitude)
		if !ok {
			return geo.Velocity{}, f.outOfCoverage(p, "grid")
		}
		return geo.Velocity{North: v, East: u}, nil
	}

	// First snapshot strictly after p.Time; the one before it brackets from below.
	hi := sort.Search(len(f.snapshots), func(i int) bool { return f.snapshots[i].ValidTime.After(p.Time) })
	a, b := f.snapshots[hi-1], f.snapshots[hi]

	u0, v0, ok := a.lookup(p.Latitude, p.Longitude, p.Altitude)
	if !ok {
		return geo.Velocity{}, f.outOfCoverage(p, "grid")
	}
	u1, v1, ok := b.lookup(p.Latitude, p.Longitude, p.Altitude)
	if !ok {
		return geo.Velocity{}, f.outOfCoverage(p, "grid")
	}

	w := float64(p.Time.Sub(a.ValidTime)) / float64(b.ValidTime.Sub(a.ValidTime))
	return geo.Velocity{
		North: v0 + (v1-v0)*w,
		East:  u0 + (u1-u0)*w,
	}, nil
}

func (f *Field) outOfCoverage(p geo.Point, what string) error {
	return fmt.Errorf("%w (%s): lat=%.5f lon=%.5f alt=%.1f time=%s",
		ErrOutOfCoverage, what, p.Latitude, p.Longitude, p.Altitude, p.Time.UTC().Format(time.RFC3339))
}

// Constant is a uniform, time-invariant wind field.
type Constant struct {
	Velocity geo.Velocity
}

// VelocityAt returns the constant velocity regardless of p.
func (c Constant) VelocityAt(geo.Point) (geo.Velocity, error) {
	return c.Velocity, nil
}
