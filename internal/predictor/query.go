package predictor

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ParamsFromQuery builds Params from URL query values:
//
//	profile, lat, lon, alt, time (RFC 3339),
//	burst_altitude, ascent_rate, descent_rate (standard),
//	duration (valbal, minutes)
//
// Missing numeric values are left zero for validation to reject.
func ParamsFromQuery(q url.Values) (Params, error) {
	var p Params

	profile, err := ParseProfile(q.Get("profile"))
	if err != nil {
		return Params{}, err
	}
	p.Profile = profile

	floats := []struct {
		key string
		dst *float64
	}{
		{"lat", &p.Launch.Latitude},
		{"lon", &p.Launch.Longitude},
		{"alt", &p.Launch.Altitude},
		{"burst_altitude", &p.BurstAltitude},
		{"ascent_rate", &p.AscentRate},
		{"descent_rate", &p.DescentRate},
		{"duration", &p.Duration},
	}
	for _, f := range floats {
		v := q.Get(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Params{}, &ParamError{Field: f.key, Reason: fmt.Sprintf("%q is not a number", v)}
		}
		*f.dst = n
	}

	if v := q.Get("time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Params{}, &ParamError{Field: "time", Reason: fmt.Sprintf("%q is not an RFC 3339 timestamp", v)}
		}
		p.Launch.Time = t
	}
	return p, nil
}
