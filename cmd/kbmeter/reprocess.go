package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/kbmeter/internal/config"
	"github.com/rewired-gh/kbmeter/internal/experiment"
	"github.com/rewired-gh/kbmeter/internal/logger"
	"github.com/rewired-gh/kbmeter/internal/models"
	"github.com/rewired-gh/kbmeter/internal/physics"
	"github.com/rewired-gh/kbmeter/internal/record"
	"github.com/rewired-gh/kbmeter/internal/reprocess"
	"github.com/rewired-gh/kbmeter/internal/stats"
	"github.com/rewired-gh/kbmeter/internal/storage"
)

type reprocessFlags struct {
	gas      string
	eos      string
	budget   string
	offsetMS float64
	gate     bool
	boxcar   time.Duration
	runID    string
	out      string
}

func newReprocessCmd(root *rootFlags) *cobra.Command {
	var flags reprocessFlags

	cmd := &cobra.Command{
		Use:   "reprocess [record.csv]",
		Short: "Re-derive a recorded run under another model, budget or timing offset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (flags.runID != "") {
				return errors.New("give either a record file or --run")
			}
			f := cmd.Flags()
			cfg, err := loadConfig(root, func(cfg *config.Config) {
				if f.Changed("gas") {
					cfg.Experiment.Gas = flags.gas
				}
				if f.Changed("eos") {
					cfg.Experiment.EOS = flags.eos
				}
				if f.Changed("budget") {
					cfg.Experiment.Budget = flags.budget
				}
				if f.Changed("boxcar") {
					cfg.Experiment.BoxcarWindow = flags.boxcar
				}
				if f.Changed("offset-ms") {
					cfg.Reprocess.OffsetMS = flags.offsetMS
				}
				if f.Changed("gate") {
					cfg.Reprocess.Gate = flags.gate
				}
			})
			if err != nil {
				return err
			}

			var (
				rows []record.Row
				base *models.Run
			)
			if flags.runID != "" {
				rows, base, err = loadArchivedRun(cmd.Context(), cfg.Storage.DBPath, flags.runID)
			} else {
				rows, base, err = loadRecordFile(args[0])
			}
			if err != nil {
				return err
			}

			model, err := cfg.Experiment.Model()
			if err != nil {
				return err
			}
			budget, err := cfg.Experiment.ErrorBudget()
			if err != nil {
				return err
			}
			// The recorded run's own model and budget apply unless overridden on the command line.
			if base != nil {
				if !f.Changed("gas") {
					model.Gas = base.Model.Gas
				}
				if !f.Changed("eos") {
					model.EOS = base.Model.EOS
				}
				if !f.Changed("budget") {
					budget = base.Budget
				}
			}

			res, err := reprocess.Recompute(rows, reprocess.Options{
				Model:        model,
				Budget:       budget,
				OffsetMS:     cfg.Reprocess.OffsetMS,
				Gate:         cfg.Reprocess.Gate,
				GateBand:     stats.Band{K: cfg.Experiment.GateSigma, Policy: stats.GatePolicy},
				Band:         stats.Band{K: cfg.Experiment.LiveSigma, Policy: stats.LivePolicy},
				BoxcarWindow: cfg.Experiment.BoxcarWindow.Seconds(),
			})
			if err != nil {
				return err
			}
			for _, skipErr := range res.SkipErrors {
				logger.Debug("Skipped %v", skipErr)
			}

			if flags.out != "" {
				if err := writeRecord(flags.out, res.Rows(), record.OptionsFor(rows)); err != nil {
					return err
				}
				logger.Info("Reprocessed record written to %s", flags.out)
			}
			printResult(cmd.OutOrStdout(), model, cfg.Reprocess.OffsetMS, len(rows), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.gas, "gas", "", "gas: n2 or air")
	cmd.Flags().StringVar(&flags.eos, "eos", "", "equation of state: ideal, vdw or rk")
	cmd.Flags().StringVar(&flags.budget, "budget", "", "error budget preset")
	cmd.Flags().Float64Var(&flags.offsetMS, "offset-ms", 0, "add this many milliseconds to every transit time")
	cmd.Flags().BoolVar(&flags.gate, "gate", false, "drop points outside the band of the points before them")
	cmd.Flags().DurationVar(&flags.boxcar, "boxcar", 0, "trailing window for the boxcar average, 0 disables it")
	cmd.Flags().StringVar(&flags.runID, "run", "", "reprocess an archived run instead of a file")
	cmd.Flags().StringVarP(&flags.out, "output", "o", "", "write the reprocessed record to this CSV")
	return cmd
}

func newCompareCmd(root *rootFlags) *cobra.Command {
	var (
		gas      string
		budget   string
		offsetMS float64
	)

	cmd := &cobra.Command{
		Use:   "compare <record.csv>...",
		Short: "Compare runs under every equation of state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			cfg, err := loadConfig(root, func(cfg *config.Config) {
				if f.Changed("gas") {
					cfg.Experiment.Gas = gas
				}
				if f.Changed("budget") {
					cfg.Experiment.Budget = budget
				}
				if f.Changed("offset-ms") {
					cfg.Reprocess.OffsetMS = offsetMS
				}
			})
			if err != nil {
				return err
			}
			model, err := cfg.Experiment.Model()
			if err != nil {
				return err
			}
			b, err := cfg.Experiment.ErrorBudget()
			if err != nil {
				return err
			}

			runs := make([]reprocess.Run, 0, len(args))
			for _, path := range args {
				rows, _, err := loadRecordFile(path)
				if err != nil {
					return err
				}
				runs = append(runs, reprocess.Run{Name: filepath.Base(path), Rows: rows})
			}

			cmp, err := reprocess.Compare(runs, model.Gas, b, cfg.Reprocess.OffsetMS)
			if err != nil {
				return err
			}
			printComparison(cmd.OutOrStdout(), cmp)
			return nil
		},
	}

	cmd.Flags().StringVar(&gas, "gas", "", "gas: n2 or air")
	cmd.Flags().StringVar(&budget, "budget", "", "error budget preset")
	cmd.Flags().Float64Var(&offsetMS, "offset-ms", 0, "add this many milliseconds to every transit time")
	return cmd
}

// loadRecordFile reads a CSV record and, when present, the manifest written next to it.
func loadRecordFile(path string) ([]record.Row, *models.Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open record: %w", err)
	}
	defer f.Close()

	rows, res, err := record.Read(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if res.Failed > 0 {
		logger.Warn("Skipped %d of %d lines in %s: %s", res.Failed, res.Total, path, strings.Join(res.Errors, "; "))
	}

	m, err := experiment.ReadManifest(experiment.ManifestPath(path))
	switch {
	case err == nil:
		logger.Debug("Using model %s from the manifest of %s", m.Run.Model, path)
		return rows, &m.Run, nil
	case errors.Is(err, fs.ErrNotExist):
		return rows, nil, nil
	default:
		logger.Warn("Ignoring manifest of %s: %v", path, err)
		return rows, nil, nil
	}
}

// loadArchivedRun reads a run and its records from the archive.
func loadArchivedRun(ctx context.Context, dbPath, id string) ([]record.Row, *models.Run, error) {
	store, err := storage.New(dbPath)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	run, err := store.Run(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	records, err := store.Records(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rows := make([]record.Row, len(records))
	for i, rec := range records {
		rows[i] = record.FromRecord(run.Distance, rec)
	}
	return rows, &run, nil
}

func writeRecord(path string, rows []record.Row, o record.Options) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := record.Write(f, rows, o); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printResult(w io.Writer, model physics.Model, offsetMS float64, total int, res *reprocess.Result) {
	s := res.Summary
	fmt.Fprintf(w, "model      %s (offset %+g ms)\n", model, offsetMS)
	fmt.Fprintf(w, "rows       %d used, %d skipped, %d gated out of %d\n", s.Count, res.Skipped, res.GateRejected, total)
	if s.Count == 0 {
		return
	}
	fmt.Fprintf(w, "k_B        %.5f ± %.5f ×10⁻²³ J/K\n", s.Mean, s.StdError)
	fmt.Fprintf(w, "band       [%.5f, %.5f]\n", s.Low, s.High)
	fmt.Fprintf(w, "spread     %.5f (standard error of the values)\n", s.ValueSEM)
	dev := (s.Mean - physics.ReferenceBoltzmann) / physics.ReferenceBoltzmann * 100
	fmt.Fprintf(w, "reference  %.8f (%+.3f%%)\n", physics.ReferenceBoltzmann, dev)
	if res.Boxcar != nil && res.Boxcar.Count > 0 {
		fmt.Fprintf(w, "boxcar     %.5f ± %.5f over the last %d points\n", res.Boxcar.Mean, res.Boxcar.StdError, res.Boxcar.Count)
	}
}
