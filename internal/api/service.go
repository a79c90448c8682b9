package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/zfurman56/hab-predictor/internal/cache"
	"github.com/zfurman56/hab-predictor/internal/predictor"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

// PredictionService computes predictions against the current wind dataset,
// serving repeats from the result cache.
type PredictionService struct {
	store   *wind.Store
	results *cache.ResultCache
	cfg     predictor.Config
	logger  *slog.Logger
}

// NewPredictionService creates a service. results may be nil to disable
// caching.
func NewPredictionService(store *wind.Store, results *cache.ResultCache, cfg predictor.Config, logger *slog.Logger) *PredictionService {
	return &PredictionService{
		store:   store,
		results: results,
		cfg:     cfg,
		logger:  logger,
	}
}

// Predict returns the envelope for params. It satisfies
// ensemble.PredictFunc.
func (s *PredictionService) Predict(ctx context.Context, params predictor.Params) (*predictor.Envelope, error) {
	env, _, err := s.predict(ctx, params)
	return env, err
}

// predict also reports whether the result came from the cache.
func (s *PredictionService) predict(ctx context.Context, params predictor.Params) (*predictor.Envelope, bool, error) {
	ds := s.store.Get()
	if ds == nil || ds.Field == nil {
		return nil, false, wind.ErrNoDataset
	}

	pr := predictor.New(ds.Field, s.cfg, s.logger)
	var key string
	if s.results != nil {
		key = cache.Key(params, pr.Config().Step, ds.FetchedAt)
		if env := s.results.Get(key); env != nil {
			return env, true, nil
		}
	}

	pred, err := pr.Predict(ctx, params)
	if err != nil {
		return nil, false, err
	}
	env := predictor.NewEnvelope(pred, params.Launch, DatasetLabel(ds))
	if s.results != nil {
		s.results.Put(key, env)
	}
	return env, false, nil
}

// DatasetLabel identifies ds in envelopes.
func DatasetLabel(ds *wind.Dataset) string {
	return ds.FetchedAt.UTC().Format(time.RFC3339)
}
