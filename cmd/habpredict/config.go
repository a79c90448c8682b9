package main

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zfurman56/hab-predictor/internal/auth"
	"github.com/zfurman56/hab-predictor/internal/cache"
	"github.com/zfurman56/hab-predictor/internal/observability"
	"github.com/zfurman56/hab-predictor/internal/predictor"
	"github.com/zfurman56/hab-predictor/internal/stream"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

// windConfig controls where wind datasets come from and are kept.
type windConfig struct {
	Dir             string
	MaxFiles        int
	SourceURL       string
	RefreshInterval time.Duration // 0 disables periodic refresh
	S3              wind.S3Config
}

func envInt(logger *slog.Logger, key string, def, atLeast int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < atLeast {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

// envFloat reads a finite float greater than above.
func envFloat(logger *slog.Logger, key string, def, above float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= above {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return f
}

func envBool(logger *slog.Logger, key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return b
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv("HAB_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("HAB_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("HAB_AUTH_TOKEN")
		if secret := os.Getenv("HAB_AUTH_JWT_SECRET"); secret != "" {
			cfg.JWTSecret = []byte(secret)
		}
		if cfg.Token == "" && len(cfg.JWTSecret) == 0 {
			return cfg, errors.New("HAB_AUTH_TOKEN or HAB_AUTH_JWT_SECRET is required when auth is enabled")
		}
		logger.Info("auth enabled",
			"static_token", cfg.Token != "",
			"jwt", len(cfg.JWTSecret) > 0,
		)
	}

	return cfg, nil
}

func loadPredictorConfig(logger *slog.Logger) predictor.Config {
	def := predictor.DefaultConfig()
	stepSeconds := envFloat(logger, "HAB_STEP_SECONDS", def.Step.Seconds(), 0)
	cfg := predictor.Config{
		Step:             time.Duration(stepSeconds * float64(time.Second)),
		MaxSteps:         envInt(logger, "HAB_MAX_STEPS", def.MaxSteps, 1),
		MaxBurstAltitude: envFloat(logger, "HAB_MAX_BURST_ALTITUDE", def.MaxBurstAltitude, 0),
	}
	if cfg.Step <= 0 {
		logger.Warn("HAB_STEP_SECONDS below clock resolution, using default", "value", stepSeconds)
		cfg.Step = def.Step
	}

	logger.Info("predictor config",
		"step_seconds", cfg.Step.Seconds(),
		"max_steps", cfg.MaxSteps,
		"max_burst_altitude", cfg.MaxBurstAltitude,
	)
	return cfg
}

func loadWindConfig(logger *slog.Logger) windConfig {
	cfg := windConfig{
		Dir:             "/tmp/hab/wind",
		MaxFiles:        envInt(logger, "HAB_WIND_MAX_FILES", 5, 1),
		SourceURL:       strings.TrimSpace(os.Getenv("HAB_WIND_SOURCE_URL")),
		RefreshInterval: time.Duration(envInt(logger, "HAB_WIND_REFRESH_INTERVAL", 0, 0)) * time.Second,
		S3: wind.S3Config{
			Region:    os.Getenv("HAB_WIND_S3_REGION"),
			Endpoint:  os.Getenv("HAB_WIND_S3_ENDPOINT"),
			Anonymous: envBool(logger, "HAB_WIND_S3_ANONYMOUS", false),
			AccessKey: os.Getenv("HAB_WIND_S3_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("HAB_WIND_S3_SECRET_ACCESS_KEY"),
		},
	}
	if v := os.Getenv("HAB_WIND_DIR"); v != "" {
		cfg.Dir = v
	}

	logger.Info("wind config",
		"dir", cfg.Dir,
		"max_files", cfg.MaxFiles,
		"source_url", cfg.SourceURL,
		"refresh_interval_seconds", cfg.RefreshInterval.Seconds(),
		"s3_endpoint", cfg.S3.Endpoint,
		"s3_anonymous", cfg.S3.Anonymous,
	)
	return cfg
}

func loadCacheConfig(logger *slog.Logger) cache.Config {
	cfg := cache.Config{
		TTL:        time.Duration(envInt(logger, "HAB_CACHE_TTL", 600, 1)) * time.Second,
		MaxEntries: envInt(logger, "HAB_CACHE_MAX_ENTRIES", 256, 1),
		Interval:   10 * time.Second,
	}
	logger.Info("cache config",
		"ttl_seconds", cfg.TTL.Seconds(),
		"max_entries", cfg.MaxEntries,
	)
	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: envInt(logger, "HAB_STREAM_MAX_CONCURRENT", 10, 1),
		MaxTotal:           envInt(logger, "HAB_STREAM_MAX_TOTAL", 1000, 1),
		BatchSize:          envInt(logger, "HAB_STREAM_BATCH_SIZE", 100, 1),
		TrustProxy:         envBool(logger, "HAB_TRUST_PROXY", false),
	}
	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_total", cfg.MaxTotal,
		"batch_size", cfg.BatchSize,
		"trust_proxy", cfg.TrustProxy,
	)
	return cfg
}

func loadBatchWorkers(logger *slog.Logger) int {
	n := envInt(logger, "HAB_BATCH_WORKERS", runtime.NumCPU(), 1)
	logger.Info("batch config", "workers", n)
	return n
}

func loadTracingConfig(logger *slog.Logger) observability.TracingConfig {
	cfg := observability.TracingConfig{
		Enabled:     envBool(logger, "HAB_TRACING_ENABLED", false),
		ServiceName: "hab-predictor",
		Exporter:    strings.ToLower(os.Getenv("HAB_TRACING_EXPORTER")),
		Endpoint:    os.Getenv("HAB_TRACING_ENDPOINT"),
		SampleRatio: 1.0,
	}
	if cfg.Exporter == "" {
		cfg.Exporter = "stdout"
	}
	if v := os.Getenv("HAB_TRACING_SAMPLE_RATIO"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 || r > 1 {
			logger.Warn("invalid HAB_TRACING_SAMPLE_RATIO value, using default", "value", v, "default", 1.0)
		} else {
			cfg.SampleRatio = r
		}
	}
	return cfg
}
