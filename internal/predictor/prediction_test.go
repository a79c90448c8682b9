package predictor

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zfurman56/hab-predictor/internal/geo"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

func TestSerializeStandardShape(t *testing.T) {
	burst := geo.Point{Latitude: 1.5, Longitude: -2.25, Altitude: 30000.5, Time: t0.Add(100 * time.Minute)}
	p := &StandardPrediction{Burst: burst}

	var got map[string]json.RawMessage
	if err := json.Unmarshal([]byte(Serialize(p)), &got); err != nil {
		t.Fatalf("serialized output is not JSON: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("top-level keys = %d, want 3 (ascent, burst, descent)", len(got))
	}
	if string(got["ascent"]) != "[]" || string(got["descent"]) != "[]" {
		t.Errorf("empty sequences encoded as %s / %s, want []", got["ascent"], got["descent"])
	}

	var point map[string]any
	if err := json.Unmarshal(got["burst"], &point); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"latitude", "longitude", "altitude", "time"} {
		if _, ok := point[key]; !ok {
			t.Errorf("burst point missing %q", key)
		}
	}
	if point["time"] != "2026-10-19T16:40:00Z" {
		t.Errorf("time = %v, want RFC 3339", point["time"])
	}
}

func TestSerializeValBalShape(t *testing.T) {
	got := Serialize(&ValBalPrediction{Positions: []geo.Point{{Latitude: 1, Longitude: 2, Altitude: 3, Time: t0}}})
	want := `{"positions":[{"latitude":1,"longitude":2,"altitude":3,"time":"2026-10-19T15:00:00Z"}]}`
	if got != want {
		t.Errorf("Serialize =\n%s\nwant\n%s", got, want)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	pr := New(wind.Constant{Velocity: geo.Velocity{North: 2.5, East: -1.25}}, DefaultConfig(), testLogger())
	launch := geo.Point{Latitude: 37.123456789, Longitude: -122.987654321, Altitude: 12.5,
		Time: time.Date(2026, 10, 19, 15, 0, 0, 123456789, time.UTC)}

	std, err := pr.Standard(context.Background(), StandardParams{Launch: launch, BurstAltitude: 800, AscentRate: 5.3, DescentRate: 7.1})
	if err != nil {
		t.Fatal(err)
	}
	vb, err := pr.ValBal(context.Background(), ValBalParams{Launch: launch, Duration: 3.25})
	if err != nil {
		t.Fatal(err)
	}

	for _, orig := range []Prediction{std, vb} {
		t.Run(string(orig.Profile()), func(t *testing.T) {
			decoded, err := Decode(orig.Profile(), []byte(Serialize(orig)))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if decoded.Steps() != orig.Steps() {
				t.Fatalf("steps = %d, want %d", decoded.Steps(), orig.Steps())
			}
			assertSameTrack(t, orig.Track(), decoded.Track())

			if s, ok := orig.(*StandardPrediction); ok {
				d := decoded.(*StandardPrediction)
				if len(d.Ascent) != len(s.Ascent) || len(d.Descent) != len(s.Descent) {
					t.Errorf("phase lengths %d/%d, want %d/%d", len(d.Ascent), len(d.Descent), len(s.Ascent), len(s.Descent))
				}
				assertSameTrack(t, []geo.Point{s.Burst}, []geo.Point{d.Burst})
			}
		})
	}
}

func assertSameTrack(t *testing.T, want, got []geo.Point) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("track length %d, want %d", len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.Latitude != g.Latitude || w.Longitude != g.Longitude || w.Altitude != g.Altitude || !w.Time.Equal(g.Time) {
			t.Fatalf("point %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode("zeppelin", []byte(`{}`)); err == nil {
		t.Error("expected error for unknown profile")
	}
	if _, err := Decode(ProfileValBal, []byte(`{"positions":`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestSerializePanicsOnNaN(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Serialize did not panic on an unencodable value")
		}
	}()
	Serialize(&ValBalPrediction{Positions: []geo.Point{{Altitude: math.NaN()}}})
}

func TestEnvelopeRoundTrip(t *testing.T) {
	p := standardParams()
	pred, err := calm().Predict(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}

	env := NewEnvelope(pred, p.Launch, "gfs_2026101912")
	if _, err := uuid.Parse(env.ID); err != nil {
		t.Errorf("envelope ID %q is not a UUID: %v", env.ID, err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"profile":"standard"`) {
		t.Errorf("envelope JSON lacks profile tag: %s", data)
	}

	var back Envelope
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.ID != env.ID || back.Profile != ProfileStandard || back.Dataset != env.Dataset {
		t.Errorf("envelope header = %+v", back)
	}
	sp, ok := back.Prediction.(*StandardPrediction)
	if !ok {
		t.Fatalf("decoded prediction type = %T", back.Prediction)
	}
	if len(sp.Ascent) != 200 || len(sp.Descent) != 200 {
		t.Errorf("phase lengths %d/%d, want 200/200", len(sp.Ascent), len(sp.Descent))
	}
	if back.Summary == nil || back.Summary.Steps != 400 {
		t.Errorf("summary = %+v, want 400 steps", back.Summary)
	}
}

func TestEnvelopeUnmarshalErrors(t *testing.T) {
	tests := []string{
		`{"id":"a","profile":"standard"}`,
		`{"id":"a","profile":"zeppelin","prediction":{}}`,
		`{"id":"a","profile":"valbal","prediction":{"positions":"nope"}}`,
	}
	for _, in := range tests {
		var e Envelope
		if err := json.Unmarshal([]byte(in), &e); err == nil {
			t.Errorf("Unmarshal(%s) succeeded", in)
		}
	}
}

func TestSummarize(t *testing.T) {
	pr := New(wind.Constant{Velocity: geo.Velocity{East: 10}}, DefaultConfig(), testLogger())
	launch := geo.Point{Latitude: 0, Longitude: 0, Altitude: 0, Time: t0}
	sp, err := pr.Standard(context.Background(), StandardParams{Launch: launch, BurstAltitude: 1000, AscentRate: 5, DescentRate: 5})
	if err != nil {
		t.Fatal(err)
	}

	s := Summarize(launch, sp)
	if s.Burst == nil || s.Burst.Altitude != 1000 || s.MaxAltitude != 1000 {
		t.Errorf("burst/max = %v/%v, want 1000", s.Burst, s.MaxAltitude)
	}
	if s.FlightSeconds != 400 {
		t.Errorf("flight seconds = %v, want 400", s.FlightSeconds)
	}
	// 400 s at 10 m/s east, measured at ground level on a slightly larger sphere.
	if math.Abs(s.Distance-4000) > 5 {
		t.Errorf("distance = %v, want ~4000 m", s.Distance)
	}
	if math.Abs(s.Bearing-90) > 0.01 {
		t.Errorf("bearing = %v, want 90", s.Bearing)
	}

	empty := Summarize(launch, &ValBalPrediction{})
	if empty.Landing != launch || empty.Distance != 0 || empty.Steps != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestReadParams(t *testing.T) {
	yamlDoc := `
profile: ValBal
launch:
  latitude: 37.4
  longitude: -122.2
  altitude: 30
  time: 2026-10-19T15:00:00Z
duration: 90
`
	p, err := ReadParams(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("ReadParams yaml: %v", err)
	}
	if p.Profile != ProfileValBal || p.Duration != 90 || p.Launch.Latitude != 37.4 || !p.Launch.Time.Equal(t0) {
		t.Errorf("yaml params = %+v", p)
	}

	jsonDoc := `{"profile":"standard","launch":{"latitude":1,"longitude":2,"altitude":3,"time":"2026-10-19T15:00:00Z"},"burst_altitude":30000,"ascent_rate":5,"descent_rate":6}`
	p, err = ReadParams(strings.NewReader(jsonDoc))
	if err != nil {
		t.Fatalf("ReadParams json: %v", err)
	}
	if p.Profile != ProfileStandard || p.BurstAltitude != 30000 || !p.Launch.Time.Equal(t0) {
		t.Errorf("json params = %+v", p)
	}
}

func TestReadParamsErrors(t *testing.T) {
	tests := []struct {
		name, doc string
	}{
		{"empty", ""},
		{"unknown key", "profile: standard\nburst: 1\n"},
		{"bad profile", "profile: zeppelin\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadParams(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParamsJSONProfileCaseInsensitive(t *testing.T) {
	var p Params
	if err := json.Unmarshal([]byte(`{"profile":"VALBAL","duration":5}`), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.Profile != ProfileValBal {
		t.Errorf("profile = %q, want valbal", p.Profile)
	}
}
