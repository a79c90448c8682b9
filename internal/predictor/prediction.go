package predictor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zfurman56/hab-predictor/internal/geo"
)

// Prediction is the result of one stepper run: *StandardPrediction or
// *ValBalPrediction.
type Prediction interface {
	Profile() Profile
	// Steps is the number of integration steps taken.
	Steps() int
	// Track returns every recorded position in flight order.
	Track() []geo.Point

	sealed()
}

// StandardPrediction is the ascent/burst/descent result.
type StandardPrediction struct {
	Ascent  []geo.Point `json:"ascent"`
	Burst   geo.Point   `json:"burst"`
	Descent []geo.Point `json:"descent"`
}

// ValBalPrediction is the float-drift result.
type ValBalPrediction struct {
	Positions []geo.Point `json:"positions"`
}

func (*StandardPrediction) Profile() Profile { return ProfileStandard }
func (*ValBalPrediction) Profile() Profile   { return ProfileValBal }

func (p *StandardPrediction) Steps() int { return len(p.Ascent) + len(p.Descent) }
func (p *ValBalPrediction) Steps() int   { return len(p.Positions) }

func (p *StandardPrediction) Track() []geo.Point {
	out := make([]geo.Point, 0, len(p.Ascent)+len(p.Descent))
	out = append(out, p.Ascent...)
	return append(out, p.Descent...)
}

func (p *ValBalPrediction) Track() []geo.Point { return p.Positions }

func (*StandardPrediction) sealed() {}
func (*ValBalPrediction) sealed()   {}

// MarshalJSON encodes empty sequences as [] rather than null.
func (p *StandardPrediction) MarshalJSON() ([]byte, error) {
	type plain StandardPrediction
	out := plain(*p)
	out.Ascent = nonNil(out.Ascent)
	out.Descent = nonNil(out.Descent)
	return json.Marshal(out)
}

// MarshalJSON encodes an empty track as [] rather than null.
func (p *ValBalPrediction) MarshalJSON() ([]byte, error) {
	type plain ValBalPrediction
	out := plain(*p)
	out.Positions = nonNil(out.Positions)
	return json.Marshal(out)
}

func nonNil(pts []geo.Point) []geo.Point {
	if pts == nil {
		return []geo.Point{}
	}
	return pts
}

// Serialize renders p as JSON. Standard predictions encode as
// {"ascent":[...],"burst":{...},"descent":[...]} and ValBal predictions as
// {"positions":[...]}. A marshal failure can only come from a programming
// error and panics.
func Serialize(p Prediction) string {
	var (
		b   []byte
		err error
	)
	switch v := p.(type) {
	case *StandardPrediction:
		b, err = json.Marshal(v)
	case *ValBalPrediction:
		b, err = json.Marshal(v)
	default:
		panic(fmt.Sprintf("predictor: unknown prediction type %T", p))
	}
	if err != nil {
		panic(fmt.Sprintf("predictor: serializing %s prediction: %v", p.Profile(), err))
	}
	return string(b)
}

// Decode parses the output of Serialize for the given profile.
func Decode(profile Profile, data []byte) (Prediction, error) {
	switch profile {
	case ProfileStandard:
		var p StandardPrediction
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decoding standard prediction: %w", err)
		}
		return &p, nil
	case ProfileValBal:
		var p ValBalPrediction
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decoding valbal prediction: %w", err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("decoding prediction: unknown profile %q", profile)
	}
}

// Envelope is the tagged wire form of a prediction returned by the API and
// the CLI. The profile tag selects how "prediction" is decoded.
type Envelope struct {
	ID         string     `json:"id"`
	Profile    Profile    `json:"profile"`
	Dataset    string     `json:"dataset,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Summary    *Summary   `json:"summary,omitempty"`
	Prediction Prediction `json:"-"`
}

// NewEnvelope wraps p, launched from launch, with a fresh ID and its summary.
func NewEnvelope(p Prediction, launch geo.Point, dataset string) *Envelope {
	s := Summarize(launch, p)
	return &Envelope{
		ID:         uuid.NewString(),
		Profile:    p.Profile(),
		Dataset:    dataset,
		CreatedAt:  time.Now().UTC(),
		Summary:    &s,
		Prediction: p,
	}
}

type envelopeJSON struct {
	ID         string          `json:"id"`
	Profile    Profile         `json:"profile"`
	Dataset    string          `json:"dataset,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Summary    *Summary        `json:"summary,omitempty"`
	Prediction json.RawMessage `json:"prediction"`
}

// MarshalJSON implements json.Marshaler.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	if e.Prediction == nil {
		return nil, fmt.Errorf("envelope %s: no prediction", e.ID)
	}
	return json.Marshal(envelopeJSON{
		ID:         e.ID,
		Profile:    e.Profile,
		Dataset:    e.Dataset,
		CreatedAt:  e.CreatedAt,
		Summary:    e.Summary,
		Prediction: json.RawMessage(Serialize(e.Prediction)),
	})
}

// UnmarshalJSON resolves the prediction variant from the profile tag.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var aux envelopeJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Prediction) == 0 {
		return fmt.Errorf("envelope %s: missing \"prediction\" field", aux.ID)
	}

	pred, err := Decode(aux.Profile, aux.Prediction)
	if err != nil {
		return fmt.Errorf("envelope %s: %w", aux.ID, err)
	}

	*e = Envelope{
		ID:         aux.ID,
		Profile:    aux.Profile,
		Dataset:    aux.Dataset,
		CreatedAt:  aux.CreatedAt,
		Summary:    aux.Summary,
		Prediction: pred,
	}
	return nil
}
