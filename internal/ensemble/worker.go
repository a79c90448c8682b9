// Package ensemble runs batches of independent predictions on a bounded
// worker pool. Each prediction is integrated on a single goroutine; only
// distinct predictions run in parallel.
package ensemble

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/zfurman56/hab-predictor/internal/metrics"
	"github.com/zfurman56/hab-predictor/internal/predictor"
)

// PredictFunc computes one prediction. Implementations may serve results
// from a cache.
type PredictFunc func(ctx context.Context, params predictor.Params) (*predictor.Envelope, error)

// Result is the outcome of one batch member.
type Result struct {
	Index    int                 `json:"index"`
	Outcome  string              `json:"outcome"`
	Envelope *predictor.Envelope `json:"prediction,omitempty"`
	Error    string              `json:"error,omitempty"`

	Err error `json:"-"`
}

type job struct {
	index  int
	params predictor.Params
}

// WorkerPool manages a fixed number of goroutines for parallel predictions.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
// A non-positive count means one worker.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int { return wp.workers }

// RunBatch computes every member of batch with fn. Results are returned in
// input order together with success and error counts. Members not started
// before ctx is cancelled are reported with the context error.
func (wp *WorkerPool) RunBatch(ctx context.Context, fn PredictFunc, batch []predictor.Params) ([]Result, int, int) {
	if len(batch) == 0 {
		return []Result{}, 0, 0
	}
	metrics.ObserveBatchSize(len(batch))

	results := make([]Result, len(batch))
	done := make([]bool, len(batch))
	jobs := make(chan job, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < min(wp.workers, len(batch)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				// Each index is written by exactly one worker.
				results[j.index] = runOne(ctx, fn, j)
				done[j.index] = true
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, p := range batch {
			select {
			case jobs <- job{index: i, params: p}:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	var successCount, errorCount int
	for i := range results {
		if !done[i] {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			results[i] = failed(i, err)
		}
		if results[i].Err != nil {
			errorCount++
			wp.logger.Debug("batch member failed",
				"index", i,
				"outcome", results[i].Outcome,
				"error", results[i].Err,
			)
			continue
		}
		successCount++
	}

	wp.logger.Info("batch complete",
		"size", len(batch),
		"succeeded", successCount,
		"failed", errorCount,
		"workers", wp.workers,
	)
	return results, successCount, errorCount
}

func runOne(ctx context.Context, fn PredictFunc, j job) Result {
	if err := ctx.Err(); err != nil {
		return failed(j.index, err)
	}
	env, err := fn(ctx, j.params)
	if err != nil {
		return failed(j.index, err)
	}
	if env == nil {
		return failed(j.index, errors.New("predict returned no result"))
	}
	return Result{Index: j.index, Outcome: predictor.Outcome(nil), Envelope: env}
}

func failed(index int, err error) Result {
	return Result{
		Index:   index,
		Outcome: predictor.Outcome(err),
		Error:   err.Error(),
		Err:     err,
	}
}
