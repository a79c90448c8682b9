package wind

import (
	"fmt"
	"math"
	"sort"
)

// Grid holds the u/v wind components of one isobaric level on a regular
// latitude/longitude grid. Immutable after construction; safe for
// concurrent reads.
type Grid struct {
	Pressure float64 // hPa
	Altitude float64 // metres, standard atmosphere

	LatMin, LatStep float64
	LonMin, LonStep float64
	NLat, NLon      int

	// wrapLon is set when the longitude axis covers the full circle.
	wrapLon bool

	// Row-major by latitude; NaN marks a missing sample.
	u, v []float32
}

// NewGrid builds a grid for the given pressure level from gribp records.
// The records must lie on a regular latitude/longitude lattice; their order
// does not matter.
func NewGrid(pressure float64, records []Record) (*Grid, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("level %g hPa: no records", pressure)
	}

	lats := uniqueSorted(records, func(r Record) float64 { return float64(r.Lat) })
	lons := uniqueSorted(records, func(r Record) float64 { return float64(r.Lon) })
	if len(lats) < 2 || len(lons) < 2 {
		return nil, fmt.Errorf("level %g hPa: grid needs at least 2x2 points, got %dx%d", pressure, len(lats), len(lons))
	}

	g := &Grid{
		Pressure: pressure,
		Altitude: PressureToAltitude(pressure),
		LatMin:   lats[0],
		LatStep:  (lats[len(lats)-1] - lats[0]) / float64(len(lats)-1),
		LonMin:   lons[0],
		LonStep:  (lons[len(lons)-1] - lons[0]) / float64(len(lons)-1),
		NLat:     len(lats),
		NLon:     len(lons),
	}
	g.wrapLon = math.Abs(float64(g.NLon)*g.LonStep-360) < g.LonStep*1e-3

	g.u = make([]float32, g.NLat*g.NLon)
	g.v = make([]float32, g.NLat*g.NLon)
	nan := float32(math.NaN())
	for i := range g.u {
		g.u[i] = nan
		g.v[i] = nan
	}

	for _, r := range records {
		i, ok := latticeIndex(float64(r.Lat), g.LatMin, g.LatStep)
		if !ok {
			return nil, fmt.Errorf("level %g hPa: latitude %g is off the %g° lattice", pressure, r.Lat, g.LatStep)
		}
		j, ok := latticeIndex(float64(r.Lon), g.LonMin, g.LonStep)
		if !ok {
			return nil, fmt.Errorf("level %g hPa: longitude %g is off the %g° lattice", pressure, r.Lon, g.LonStep)
		}

		idx := i*g.NLon + j
		switch r.Component {
		case ComponentU:
			g.u[idx] = r.Value
		case ComponentV:
			g.v[idx] = r.Value
		}
	}

	return g, nil
}

// LatMax returns the northernmost latitude of the grid.
func (g *Grid) LatMax() float64 {
	return g.LatMin + float64(g.NLat-1)*g.LatStep
}

// LonMax returns the easternmost longitude sample of the grid.
func (g *Grid) LonMax() float64 {
	return g.LonMin + float64(g.NLon-1)*g.LonStep
}

// Lookup bilinearly interpolates u (east) and v (north) at lat/lon in degrees.
// ok is false outside the grid or when a surrounding sample is missing.
func (g *Grid) Lookup(lat, lon float64) (u, v float64, ok bool) {
	const eps = 1e-9

	fi := (lat - g.LatMin) / g.LatStep
	if fi < -eps || fi > float64(g.NLat-1)+eps {
		return 0, 0, false
	}

	x := math.Mod(lon-g.LonMin, 360)
	if x < 0 {
		x += 360
	}
	fj := x / g.LonStep
	if !g.wrapLon && fj > float64(g.NLon-1)+eps {
		return 0, 0, false
	}

	i0 := clampIndex(int(math.Floor(fi)), g.NLat-2)
	ti := fi - float64(i0)

	var j0, j1 int
	var tj float64
	if g.wrapLon {
		j0 = int(math.Floor(fj)) % g.NLon
		j1 = (j0 + 1) % g.NLon
		tj = fj - math.Floor(fj)
	} else {
		j0 = clampIndex(int(math.Floor(fj)), g.NLon-2)
		j1 = j0 + 1
		tj = fj - float64(j0)
	}

	u, ok = bilinear(g.u, g.NLon, i0, j0, j1, ti, tj)
	if !ok {
		return 0, 0, false
	}
	v, ok = bilinear(g.v, g.NLon, i0, j0, j1, ti, tj)
	if !ok {
		return 0, 0, false
	}
	return u, v, true
}

func bilinear(data []float32, nlon, i0, j0, j1 int, ti, tj float64) (float64, bool) {
	c00 := float64(data[i0*nlon+j0])
	c01 := float64(data[i0*nlon+j1])
	c10 := float64(data[(i0+1)*nlon+j0])
	c11 := float64(data[(i0+1)*nlon+j1])
	if math.IsNaN(c00) || math.IsNaN(c01) || math.IsNaN(c10) || math.IsNaN(c11) {
		return 0, false
	}

	bottom := c00 + (c01-c00)*tj
	top := c10 + (c11-c10)*tj
	return bottom + (top-bottom)*ti, true
}

func clampIndex(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

func latticeIndex(x, min, step float64) (int, bool) {
	f := (x - min) / step
	i := int(math.Round(f))
	return i, math.Abs(f-float64(i)) < 1e-3
}

func uniqueSorted(records []Record, key func(Record) float64) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, r := range records {
		k := key(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Float64s(out)
	return out
}
