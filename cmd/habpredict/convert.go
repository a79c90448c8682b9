package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zfurman56/hab-predictor/internal/wind"
)

var (
	convertGribPaths     []string
	convertValidTimes    []string
	convertOutDir        string
	convertArchivePath   string
	convertValidityHours float64
	convertGribGetData   string
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert GRIB forecasts to gribp wind files",
	Long: "Extract the u/v wind of every isobaric level from GRIB files with grib_get_data " +
		"and write one gribp file per level. Levels whose output already exists are skipped. " +
		"Without --grib, grib_get_data output for a single level is read from stdin and " +
		"gribp is written to stdout. With --archive, the converted levels are packed into a " +
		"dataset archive, one snapshot per --grib/--valid-time pair.",
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringArrayVar(&convertGribPaths, "grib", nil, "GRIB file to convert (repeatable)")
	convertCmd.Flags().StringArrayVar(&convertValidTimes, "valid-time", nil, "RFC 3339 valid time of each --grib file, in order (needed with --archive)")
	convertCmd.Flags().StringVar(&convertOutDir, "out", "", "directory for gribp files (default: next to each GRIB file)")
	convertCmd.Flags().StringVar(&convertArchivePath, "archive", "", "write a dataset archive (.tar.zst) of the converted levels")
	convertCmd.Flags().Float64Var(&convertValidityHours, "validity-hours", 6, "how long each snapshot stays valid")
	convertCmd.Flags().StringVar(&convertGribGetData, "grib-get-data", "grib_get_data", "path to the ecCodes grib_get_data tool")
}

func runConvert(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr)

	if len(convertGribPaths) == 0 {
		n, err := wind.ConvertLevel(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		logger.Info("converted level from stdin", "records", n)
		return nil
	}

	var validTimes []time.Time
	if convertArchivePath != "" {
		if len(convertValidTimes) != len(convertGribPaths) {
			return fmt.Errorf("--archive needs one --valid-time per --grib (%d files, %d times)", len(convertGribPaths), len(convertValidTimes))
		}
		for _, v := range convertValidTimes {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return fmt.Errorf("invalid --valid-time %q: %w", v, err)
			}
			validTimes = append(validTimes, t.UTC())
		}
	}

	manifest := wind.Manifest{ValidityHours: convertValidityHours}
	members := make(map[string][]byte)

	for i, path := range convertGribPaths {
		levels, err := convertFile(cmd.Context(), path, gribBase(path, convertOutDir), logger)
		if err != nil {
			return err
		}
		if convertArchivePath == "" {
			continue
		}

		snap := wind.ManifestSnapshot{ValidTime: validTimes[i], Files: make(map[string]string, len(levels))}
		for level, file := range levels {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading converted level: %w", err)
			}
			name := filepath.Base(file)
			if _, dup := members[name]; dup {
				return fmt.Errorf("two GRIB files convert to %s", name)
			}
			members[name] = data
			snap.Files[level] = name
		}
		manifest.Snapshots = append(manifest.Snapshots, snap)
	}

	if convertArchivePath == "" {
		return nil
	}
	return writeArchiveFile(convertArchivePath, manifest, members, logger)
}

// gribBase is the gribp file prefix for path: its name up to the first dot,
// in outDir when set and next to path otherwise.
func gribBase(path, outDir string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	return filepath.Join(outDir, name)
}

// convertFile converts every level of path, surface first, and returns
// the gribp file of each level keyed by its pressure in hPa.
func convertFile(ctx context.Context, path, base string, logger *slog.Logger) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("grib file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	start := time.Now()
	out := make(map[string]string, len(wind.Levels))
	for i := len(wind.Levels) - 1; i >= 0; i-- {
		hPa := wind.Levels[i]
		level := strconv.FormatFloat(hPa, 'f', -1, 64)
		dst := wind.LevelFileName(base, hPa)
		out[level] = dst

		if _, err := os.Stat(dst); err == nil {
			logger.Debug("level already converted", "level_hpa", level, "file", dst)
			continue
		}

		levelStart := time.Now()
		n, err := convertLevel(ctx, path, level, dst)
		if err != nil {
			return nil, fmt.Errorf("level %s hPa: %w", level, err)
		}
		logger.Info("converted level",
			"level_hpa", level,
			"records", n,
			"duration_ms", time.Since(levelStart).Milliseconds(),
		)
	}
	logger.Info("converted grib file",
		"file", path,
		"levels", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// convertLevel runs grib_get_data for one level and writes dst atomically.
func convertLevel(ctx context.Context, path, level, dst string) (int, error) {
	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp)

	c := exec.CommandContext(ctx, convertGribGetData, "-p", "shortName", "-w", "level="+level, path)
	var stderr bytes.Buffer
	c.Stderr = &stderr
	stdout, err := c.StdoutPipe()
	if err != nil {
		f.Close()
		return 0, err
	}
	if err := c.Start(); err != nil {
		f.Close()
		return 0, fmt.Errorf("starting %s: %w", convertGribGetData, err)
	}

	n, convErr := wind.ConvertLevel(stdout, f)
	waitErr := c.Wait()
	closeErr := f.Close()

	switch {
	case convErr != nil:
		return n, convErr
	case waitErr != nil:
		return n, fmt.Errorf("%s: %w: %s", convertGribGetData, waitErr, strings.TrimSpace(stderr.String()))
	case closeErr != nil:
		return n, closeErr
	case n == 0:
		return 0, errors.New("no u/v records in grib_get_data output")
	}
	return n, os.Rename(tmp, dst)
}

func writeArchiveFile(path string, m wind.Manifest, members map[string][]byte, logger *slog.Logger) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer os.Remove(tmp)

	if err := wind.WriteArchive(f, m, members); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	logger.Info("wrote wind archive",
		"path", path,
		"snapshots", len(m.Snapshots),
		"members", len(members),
	)
	return nil
}
