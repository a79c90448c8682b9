package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/zfurman56/hab-predictor/internal/ensemble"
	"github.com/zfurman56/hab-predictor/internal/predictor"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

var (
	predictParamsPath     string
	predictWindPath       string
	predictCalm           bool
	predictStep           time.Duration
	predictMaxSteps       int
	predictWindowCount    int
	predictWindowInterval float64
	predictPretty         bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict one flight from a parameter file",
	Long: "Read launch parameters from a YAML or JSON file, run the prediction and print " +
		"the result envelope as JSON. Wind comes from --wind, the newest dataset in " +
		"HAB_WIND_DIR, or a calm field with --calm.",
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)
	predictCmd.Flags().StringVar(&predictParamsPath, "params", "", "launch parameter file, YAML or JSON (required)")
	predictCmd.Flags().StringVar(&predictWindPath, "wind", "", "wind dataset archive (.tar or .tar.zst)")
	predictCmd.Flags().BoolVar(&predictCalm, "calm", false, "integrate through still air instead of a wind dataset")
	predictCmd.Flags().DurationVar(&predictStep, "step", 0, "integration step (default HAB_STEP_SECONDS or 1s)")
	predictCmd.Flags().IntVar(&predictMaxSteps, "max-steps", 0, "per-phase step budget (default HAB_MAX_STEPS)")
	predictCmd.Flags().IntVar(&predictWindowCount, "window-count", 1, "number of launches in a launch window")
	predictCmd.Flags().Float64Var(&predictWindowInterval, "window-interval", 60, "minutes between launches in a window")
	predictCmd.Flags().BoolVar(&predictPretty, "pretty", false, "indent JSON output")
	predictCmd.MarkFlagRequired("params")
}

func runPredict(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd.ErrOrStderr())

	params, err := predictor.LoadParams(predictParamsPath)
	if err != nil {
		return err
	}

	cfg := loadPredictorConfig(logger)
	if predictStep > 0 {
		cfg.Step = predictStep
	}
	if predictMaxSteps > 0 {
		cfg.MaxSteps = predictMaxSteps
	}

	field, label, err := openWindField()
	if err != nil {
		return err
	}
	pr := predictor.New(field, cfg, logger)

	predict := func(ctx context.Context, p predictor.Params) (*predictor.Envelope, error) {
		pred, err := pr.Predict(ctx, p)
		if err != nil {
			return nil, err
		}
		return predictor.NewEnvelope(pred, p.Launch, label), nil
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if predictPretty {
		enc.SetIndent("", "  ")
	}

	if predictWindowCount <= 1 {
		env, err := predict(cmd.Context(), params)
		if err != nil {
			return fmt.Errorf("prediction failed: %w", err)
		}
		return enc.Encode(env)
	}

	batch, err := ensemble.Window{IntervalMinutes: predictWindowInterval, Count: predictWindowCount}.Expand(params)
	if err != nil {
		return err
	}
	results, ok, _ := ensemble.NewWorkerPool(loadBatchWorkers(logger), logger).RunBatch(cmd.Context(), predict, batch)
	if err := enc.Encode(results); err != nil {
		return err
	}
	if ok == 0 {
		return errors.New("every prediction in the window failed")
	}
	return nil
}

// openWindField resolves the wind source flags into a field and a label for
// the result envelope.
func openWindField() (predictor.WindField, string, error) {
	if predictCalm {
		return wind.Constant{}, "calm", nil
	}
	ds, err := loadDataset(predictWindPath)
	if err != nil {
		return nil, "", err
	}
	if predictWindPath != "" {
		return ds.Field, filepath.Base(predictWindPath), nil
	}
	return ds.Field, ds.FetchedAt.UTC().Format(time.RFC3339), nil
}

// loadDataset reads the archive at path, or the newest cached dataset in
// HAB_WIND_DIR when path is empty.
func loadDataset(path string) (*wind.Dataset, error) {
	if path == "" {
		dir := os.Getenv("HAB_WIND_DIR")
		if dir == "" {
			dir = "/tmp/hab/wind"
		}
		ds, err := wind.NewCache(dir, 0).LoadLatest()
		if err != nil {
			return nil, fmt.Errorf("no wind dataset (use --wind or --calm): %w", err)
		}
		return ds, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wind archive: %w", err)
	}
	defer f.Close()

	field, err := wind.LoadArchive(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	fetchedAt := time.Now()
	if st, err := f.Stat(); err == nil {
		fetchedAt = st.ModTime()
	}
	return &wind.Dataset{Source: path, FetchedAt: fetchedAt, Field: field}, nil
}
