// Command habpredict predicts high-altitude balloon flight paths, either as
// an HTTP service (serve) or one at a time from a parameter file (predict).
// The convert subcommand turns GRIB forecasts into gribp wind files.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "habpredict",
	Short: "High-altitude balloon flight path predictor",
	Long: "habpredict integrates a balloon's position through a gridded wind forecast " +
		"to predict its ascent, burst and descent, or a constant-altitude float.",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the JSON logger at the level named by HAB_LOG_LEVEL.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("HAB_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
