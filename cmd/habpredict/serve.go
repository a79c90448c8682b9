package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zfurman56/hab-predictor/internal/api"
	"github.com/zfurman56/hab-predictor/internal/cache"
	"github.com/zfurman56/hab-predictor/internal/ensemble"
	"github.com/zfurman56/hab-predictor/internal/metrics"
	"github.com/zfurman56/hab-predictor/internal/observability"
	"github.com/zfurman56/hab-predictor/internal/stream"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the prediction HTTP service",
	Long: "Serve predictions over HTTP. Configuration comes from HAB_* environment " +
		"variables; the newest cached wind dataset is loaded at startup.",
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides HAB_HTTP_ADDR, default :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stdout)

	addr := serveAddr
	if addr == "" {
		addr = os.Getenv("HAB_HTTP_ADDR")
	}
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		return fmt.Errorf("invalid auth configuration: %w", err)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, loadTracingConfig(logger), logger)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	predCfg := loadPredictorConfig(logger)
	windCfg := loadWindConfig(logger)

	store := wind.NewStore()
	windCache := wind.NewCache(windCfg.Dir, windCfg.MaxFiles)
	loadCachedDataset(windCache, store, logger)

	fetcher := wind.NewFetcher(windCfg.SourceURL, logger, wind.WithS3Config(windCfg.S3))

	results := cache.New(loadCacheConfig(logger), store, logger)
	svc := api.NewPredictionService(store, results, predCfg, logger)
	pool := ensemble.NewWorkerPool(loadBatchWorkers(logger), logger)
	streamHandler := stream.NewHandler(svc.Predict, store, loadStreamConfig(logger), logger)

	srv := api.NewServer(addr, logger, authCfg, api.Deps{
		Store:     store,
		Service:   svc,
		Results:   results,
		Pool:      pool,
		Stream:    streamHandler,
		Fetcher:   fetcher,
		WindCache: windCache,
	})

	go results.Start(ctx)
	go reportDatasetAge(ctx, store)
	if windCfg.SourceURL != "" {
		go refreshLoop(ctx, windCfg.RefreshInterval, fetcher, windCache, store, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"wind_fetch_enabled", windCfg.SourceURL != "",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// loadCachedDataset installs the newest cached dataset, if any.
func loadCachedDataset(windCache *wind.Cache, store *wind.Store, logger *slog.Logger) {
	ds, err := windCache.LoadLatest()
	if err != nil {
		logger.Info("no usable wind cache, starting without wind data", "dir", windCache.Dir(), "error", err)
		return
	}
	store.Set(ds)
	metrics.SetWindDataset(len(ds.Field.Levels()), ds.Field.Snapshots())

	from, until := ds.Field.TimeRange()
	logger.Info("loaded wind dataset from cache",
		"path", ds.Source,
		"fetched_at", ds.FetchedAt.Format(time.RFC3339),
		"valid_from", from.Format(time.RFC3339),
		"valid_until", until.Format(time.RFC3339),
		"levels", len(ds.Field.Levels()),
	)
}

// reportDatasetAge updates the dataset age gauge every 10s.
func reportDatasetAge(ctx context.Context, store *wind.Store) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.SetWindDatasetAge(store.AgeSeconds())
		case <-ctx.Done():
			return
		}
	}
}

// refreshLoop fetches a dataset at startup when none is loaded, then every
// interval. A zero interval only does the startup fetch.
func refreshLoop(ctx context.Context, interval time.Duration, fetcher *wind.Fetcher, windCache *wind.Cache, store *wind.Store, logger *slog.Logger) {
	refresh := func() {
		if _, err := wind.Refresh(ctx, fetcher, windCache, store, logger); err != nil && ctx.Err() == nil {
			logger.Warn("wind refresh failed", "source", fetcher.SourceURL(), "error", err)
		}
	}

	if store.Get() == nil {
		refresh()
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			return
		}
	}
}
