package predictor

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ReadParams decodes a launch parameter document. YAML and JSON are both
// accepted; unknown keys are rejected.
//
//	profile: standard
//	launch:
//	  latitude: 37.4
//	  longitude: -122.2
//	  altitude: 30
//	  time: 2026-10-19T15:00:00Z
//	burst_altitude: 30000
//	ascent_rate: 5
//	descent_rate: 6
func ReadParams(r io.Reader) (Params, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Params
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return Params{}, errors.New("parameter document is empty")
		}
		return Params{}, fmt.Errorf("parsing parameters: %w", err)
	}
	return p, nil
}

// LoadParams reads a parameter file from disk.
func LoadParams(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return Params{}, fmt.Errorf("opening parameter file: %w", err)
	}
	defer f.Close()

	p, err := ReadParams(f)
	if err != nil {
		return Params{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
