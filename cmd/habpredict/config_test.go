package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/zfurman56/hab-predictor/internal/predictor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestEnvIntFallsBack(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 7},
		{"12", 12},
		{"abc", 7},
		{"0", 7}, // below atLeast
		{"1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("HAB_TEST_INT", tt.value)
			if got := envInt(testLogger(), "HAB_TEST_INT", 7, 1); got != tt.want {
				t.Errorf("envInt(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestEnvFloatRejectsNonFinite(t *testing.T) {
	for _, v := range []string{"NaN", "Inf", "-1", "0", "x"} {
		t.Setenv("HAB_TEST_FLOAT", v)
		if got := envFloat(testLogger(), "HAB_TEST_FLOAT", 2.5, 0); got != 2.5 {
			t.Errorf("envFloat(%q) = %v, want default 2.5", v, got)
		}
	}
	t.Setenv("HAB_TEST_FLOAT", "0.25")
	if got := envFloat(testLogger(), "HAB_TEST_FLOAT", 2.5, 0); got != 0.25 {
		t.Errorf("envFloat(0.25) = %v", got)
	}
}

func TestLoadAuthConfig(t *testing.T) {
	t.Setenv("HAB_AUTH_ENABLED", "")
	cfg, err := loadAuthConfig(testLogger())
	if err != nil || cfg.Enabled {
		t.Errorf("unset: cfg=%+v err=%v, want disabled", cfg, err)
	}

	t.Setenv("HAB_AUTH_ENABLED", "maybe")
	if _, err := loadAuthConfig(testLogger()); err == nil {
		t.Error("expected error for non-boolean HAB_AUTH_ENABLED")
	}

	t.Setenv("HAB_AUTH_ENABLED", "true")
	t.Setenv("HAB_AUTH_TOKEN", "")
	t.Setenv("HAB_AUTH_JWT_SECRET", "")
	if _, err := loadAuthConfig(testLogger()); err == nil {
		t.Error("expected error for missing token")
	}

	t.Setenv("HAB_AUTH_JWT_SECRET", "k")
	cfg, err = loadAuthConfig(testLogger())
	if err != nil || string(cfg.JWTSecret) != "k" {
		t.Errorf("jwt only: cfg=%+v err=%v", cfg, err)
	}

	t.Setenv("HAB_AUTH_TOKEN", "s3cret")
	cfg, err = loadAuthConfig(testLogger())
	if err != nil || !cfg.Enabled || cfg.Token != "s3cret" {
		t.Errorf("enabled: cfg=%+v err=%v", cfg, err)
	}
}

func TestLoadPredictorConfig(t *testing.T) {
	t.Setenv("HAB_STEP_SECONDS", "0.5")
	t.Setenv("HAB_MAX_STEPS", "5000")
	t.Setenv("HAB_MAX_BURST_ALTITUDE", "-3")

	cfg := loadPredictorConfig(testLogger())
	if cfg.Step != 500*time.Millisecond {
		t.Errorf("step = %v, want 500ms", cfg.Step)
	}
	if cfg.MaxSteps != 5000 {
		t.Errorf("max steps = %d, want 5000", cfg.MaxSteps)
	}
	if cfg.MaxBurstAltitude != predictor.DefaultMaxBurstAltitude {
		t.Errorf("max burst = %v, want default", cfg.MaxBurstAltitude)
	}

	t.Setenv("HAB_STEP_SECONDS", "1e-12")
	if cfg := loadPredictorConfig(testLogger()); cfg.Step != predictor.DefaultStep {
		t.Errorf("sub-nanosecond step = %v, want default", cfg.Step)
	}
}

func TestLoadWindConfig(t *testing.T) {
	t.Setenv("HAB_WIND_DIR", "/srv/wind")
	t.Setenv("HAB_WIND_MAX_FILES", "3")
	t.Setenv("HAB_WIND_SOURCE_URL", "  https://example.org/gfs.tar.zst ")
	t.Setenv("HAB_WIND_REFRESH_INTERVAL", "3600")

	cfg := loadWindConfig(testLogger())
	if cfg.Dir != "/srv/wind" || cfg.MaxFiles != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SourceURL != "https://example.org/gfs.tar.zst" {
		t.Errorf("source url = %q, want trimmed", cfg.SourceURL)
	}
	if cfg.RefreshInterval != time.Hour {
		t.Errorf("refresh interval = %v, want 1h", cfg.RefreshInterval)
	}
}

func TestLoadStreamAndCacheConfig(t *testing.T) {
	t.Setenv("HAB_STREAM_MAX_CONCURRENT", "3")
	t.Setenv("HAB_STREAM_BATCH_SIZE", "-1")
	t.Setenv("HAB_TRUST_PROXY", "yes")
	t.Setenv("HAB_CACHE_TTL", "abc")
	t.Setenv("HAB_CACHE_MAX_ENTRIES", "10")

	sc := loadStreamConfig(testLogger())
	if sc.MaxConcurrentPerIP != 3 || sc.BatchSize != 100 || sc.MaxTotal != 1000 {
		t.Errorf("stream cfg = %+v", sc)
	}
	if sc.TrustProxy {
		t.Error("trust proxy enabled by unparsable value")
	}

	cc := loadCacheConfig(testLogger())
	if cc.TTL != 600*time.Second || cc.MaxEntries != 10 {
		t.Errorf("cache cfg = %+v", cc)
	}
}

func TestLoadTracingConfig(t *testing.T) {
	t.Setenv("HAB_TRACING_ENABLED", "1")
	t.Setenv("HAB_TRACING_EXPORTER", "OTLP")
	t.Setenv("HAB_TRACING_SAMPLE_RATIO", "2")

	cfg := loadTracingConfig(testLogger())
	if !cfg.Enabled || cfg.Exporter != "otlp" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SampleRatio != 1.0 {
		t.Errorf("ratio = %v, want default 1.0 for out-of-range value", cfg.SampleRatio)
	}

	t.Setenv("HAB_TRACING_EXPORTER", "")
	t.Setenv("HAB_TRACING_SAMPLE_RATIO", "0.1")
	cfg = loadTracingConfig(testLogger())
	if cfg.Exporter != "stdout" || cfg.SampleRatio != 0.1 {
		t.Errorf("cfg = %+v", cfg)
	}
}
