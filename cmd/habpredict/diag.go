package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zfurman56/hab-predictor/internal/geo"
	"github.com/zfurman56/hab-predictor/internal/predictor"
	"github.com/zfurman56/hab-predictor/internal/wind"
)

var (
	diagWindPath string
	diagLat      float64
	diagLon      float64
)

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Print a wind dataset summary and a sample prediction",
	Long: "Load a wind dataset, print its coverage, sample the wind profile above one " +
		"point at the start of the dataset and run a standard prediction from there.",
	RunE: runDiag,
}

func init() {
	rootCmd.AddCommand(diagCmd)
	diagCmd.Flags().StringVar(&diagWindPath, "wind", "", "wind dataset archive (default: newest in HAB_WIND_DIR)")
	diagCmd.Flags().Float64Var(&diagLat, "lat", 37.4275, "sample latitude")
	diagCmd.Flags().Float64Var(&diagLon, "lon", -122.1697, "sample longitude")
}

func runDiag(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr)
	out := cmd.OutOrStdout()

	ds, err := loadDataset(diagWindPath)
	if err != nil {
		return err
	}
	info := ds.Info()
	fmt.Fprintf(out, "Dataset %s\n", info.Source)
	fmt.Fprintf(out, "  fetched:   %s\n", info.FetchedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  valid:     %s to %s\n", info.ValidFrom.Format(time.RFC3339), info.ValidUntil.Format(time.RFC3339))
	fmt.Fprintf(out, "  snapshots: %d\n", info.Snapshots)
	fmt.Fprintf(out, "  levels:    %d\n", len(info.Levels))

	at := info.ValidFrom
	printWindProfile(out, ds.Field, info.Levels, diagLat, diagLon, at)

	params := predictor.Params{
		Profile:       predictor.ProfileStandard,
		Launch:        geo.Point{Latitude: diagLat, Longitude: diagLon, Time: at},
		BurstAltitude: 30000,
		AscentRate:    5,
		DescentRate:   5,
	}
	start := time.Now()
	pred, err := predictor.New(ds.Field, loadPredictorConfig(logger), logger).Predict(cmd.Context(), params)
	if err != nil {
		fmt.Fprintf(out, "\nSample prediction: ERROR %v\n", err)
		return nil
	}
	s := predictor.Summarize(params.Launch, pred)
	fmt.Fprintf(out, "\nSample prediction (30 km burst, 5 m/s up and down) in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(out, "  steps:   %d\n", s.Steps)
	fmt.Fprintf(out, "  landing: %.4f, %.4f at %s\n", s.Landing.Latitude, s.Landing.Longitude, s.Landing.Time.Format(time.RFC3339))
	fmt.Fprintf(out, "  drift:   %.1f km bearing %.0f°\n", s.Distance/1000, s.Bearing)
	return nil
}

// printWindProfile prints the wind at each level above lat/lon at time t.
func printWindProfile(out io.Writer, field *wind.Field, levels []float64, lat, lon float64, t time.Time) {
	fmt.Fprintf(out, "\nWind above %.4f, %.4f at %s\n", lat, lon, t.Format(time.RFC3339))
	for _, hPa := range levels {
		alt := wind.PressureToAltitude(hPa)
		v, err := field.VelocityAt(geo.Point{Latitude: lat, Longitude: lon, Altitude: alt, Time: t})
		switch {
		case errors.Is(err, wind.ErrOutOfCoverage):
			fmt.Fprintf(out, "  %6g hPa %7.0f m  out of coverage\n", hPa, alt)
		case err != nil:
			fmt.Fprintf(out, "  %6g hPa %7.0f m  ERROR %v\n", hPa, alt, err)
		default:
			fmt.Fprintf(out, "  %6g hPa %7.0f m  N %6.1f  E %6.1f m/s\n", hPa, alt, v.North, v.East)
		}
	}
}
