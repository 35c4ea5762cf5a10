package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/kbmeter/internal/acquisition"
	"github.com/rewired-gh/kbmeter/internal/config"
	"github.com/rewired-gh/kbmeter/internal/display"
	"github.com/rewired-gh/kbmeter/internal/experiment"
	"github.com/rewired-gh/kbmeter/internal/logger"
	"github.com/rewired-gh/kbmeter/internal/models"
	"github.com/rewired-gh/kbmeter/internal/stats"
	"github.com/rewired-gh/kbmeter/internal/storage"
	"github.com/rewired-gh/kbmeter/internal/telegram"
)

type acquireFlags struct {
	distanceCM float64
	roundTrip  bool
	gas        string
	eos        string
	budget     string
	source     string
	port       string
	replay     string
	display    string
	boxcar     time.Duration
}

func newAcquireCmd(root *rootFlags) *cobra.Command {
	var flags acquireFlags

	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Run a live experiment until the source ends or it is interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, func(cfg *config.Config) {
				f := cmd.Flags()
				if f.Changed("distance") {
					cfg.Experiment.DistanceCM = flags.distanceCM
				}
				if f.Changed("round-trip") {
					cfg.Experiment.RoundTrip = flags.roundTrip
				}
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
				if f.Changed("source") {
					cfg.Acquisition.Source = flags.source
				}
				if f.Changed("port") {
					cfg.Acquisition.Port = flags.port
				}
				if f.Changed("replay") {
					cfg.Acquisition.ReplayFile = flags.replay
					if !f.Changed("source") {
						cfg.Acquisition.Source = "replay"
					}
				}
				if f.Changed("display") {
					cfg.Display.Mode = flags.display
				}
			})
			if err != nil {
				return err
			}
			return runAcquire(cmd, cfg)
		},
	}

	cmd.Flags().Float64Var(&flags.distanceCM, "distance", 0, "transducer distance in cm (prompted when unset)")
	cmd.Flags().BoolVar(&flags.roundTrip, "round-trip", true, "the pulse travels the distance twice")
	cmd.Flags().StringVar(&flags.gas, "gas", "", "gas: n2 or air")
	cmd.Flags().StringVar(&flags.eos, "eos", "", "equation of state: ideal, vdw or rk")
	cmd.Flags().StringVar(&flags.budget, "budget", "", "error budget preset")
	cmd.Flags().StringVar(&flags.source, "source", "", "sample source: serial, replay or stdin")
	cmd.Flags().StringVar(&flags.port, "port", "", "serial port (discovered when empty)")
	cmd.Flags().StringVar(&flags.replay, "replay", "", "replay a recorded CSV instead of a live source")
	cmd.Flags().StringVar(&flags.display, "display", "", "live display: tui, log or none")
	cmd.Flags().DurationVar(&flags.boxcar, "boxcar", 0, "trailing window for the boxcar average, 0 disables it")
	return cmd
}

func runAcquire(cmd *cobra.Command, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model, err := cfg.Experiment.Model()
	if err != nil {
		return err
	}
	budget, err := cfg.Experiment.ErrorBudget()
	if err != nil {
		return err
	}

	var (
		open     experiment.OpenFunc
		distance float64
		source   string
	)
	switch cfg.Acquisition.Source {
	case "replay":
		rs, res, err := acquisition.OpenReplay(cfg.Acquisition.ReplayFile, cfg.Acquisition.ReplayPace)
		if err != nil {
			return err
		}
		if res.Failed > 0 {
			logger.Warn("Skipped %d of %d lines in %s", res.Failed, res.Total, cfg.Acquisition.ReplayFile)
		}
		distance = rs.Distance()
		source = rs.Describe()
		open = func(context.Context) (acquisition.Source, error) { return rs, nil }
	case "stdin":
		source = "stdin"
		open = func(context.Context) (acquisition.Source, error) {
			return acquisition.NewLineSource(os.Stdin, "stdin"), nil
		}
	default:
		acq := cfg.Acquisition
		source = "serial " + acq.Port
		if acq.Port == "" {
			source = "serial " + acq.PortMatch
		}
		open = func(ctx context.Context) (acquisition.Source, error) {
			port := acq.Port
			if port == "" {
				var err error
				port, err = acquisition.DiscoverPort(ctx, acquisition.ListPorts, acq.PortMatch, acq.DiscoveryAttempts, acq.DiscoveryDelay)
				if err != nil {
					return nil, err
				}
			}
			return acquisition.OpenSerial(port, acq.BaudRate)
		}
	}

	switch {
	case cfg.Experiment.DistanceCM != 0:
		distance = cfg.Experiment.PathLength()
	case distance > 0:
		logger.Info("Using the recorded distance of %.4f m", distance)
	case cfg.Acquisition.Source == "stdin":
		return errors.New("experiment.distance_cm must be set when samples are read from stdin")
	default:
		cm, err := config.PromptFloat(cmd.InOrStdin(), cmd.OutOrStdout(), "distance in cm", config.MinDistanceCM, config.MaxDistanceCM)
		if err != nil {
			return err
		}
		cfg.Experiment.DistanceCM = cm
		distance = cfg.Experiment.PathLength()
	}

	run := models.Run{
		ID:         uuid.NewString(),
		StartedAt:  time.Now(),
		Distance:   distance,
		Model:      model,
		BudgetName: cfg.Experiment.Budget,
		Budget:     budget,
		Source:     source,
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	session, err := experiment.NewSession(run, experiment.Constants{
		Distance: distance,
		Model:    model,
		Budget:   budget,
	}, experiment.Options{
		Band:         stats.Band{K: cfg.Experiment.LiveSigma, Policy: stats.LivePolicy},
		BoxcarWindow: cfg.Experiment.BoxcarWindow.Seconds(),
	})
	if err != nil {
		return err
	}
	logger.Info("Run %s: %s over %.4f m, budget %s", run.ID, model, distance, run.BudgetName)

	// Initialize storage
	persister := &experiment.Persister{DataDir: cfg.Storage.DataDir}
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Warn("Run archive unavailable, saving files only: %v", err)
	} else {
		persister.Store = store
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
	}

	// Initialize Telegram client
	var notifier experiment.Notifier
	if cfg.Telegram.Enabled {
		client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		notifier = client
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	runner := &experiment.Runner{
		Session:   session,
		Open:      open,
		Interval:  cfg.Display.Interval,
		Persister: persister,
		Notifier:  notifier,
	}

	switch cfg.Display.Mode {
	case "tui":
		return runWithTUI(ctx, cfg, runner)
	case "log":
		runner.Sink = &display.Log{}
	}
	return runner.Run(ctx)
}

// runWithTUI runs the acquisition behind the terminal UI. Log output moves to a file so it does
// not tear the screen.
func runWithTUI(ctx context.Context, cfg *config.Config, runner *experiment.Runner) error {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	logPath := filepath.Join(cfg.Storage.DataDir, "kbmeter.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger.InitWriter(logFile, cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	ui := display.NewTUI(ctx, runner.Session.Snapshot, cfg.Display.Interval)
	done := make(chan error, 1)
	go func() {
		err := runner.Run(runCtx)
		ui.Quit()
		done <- err
	}()

	uiErr := ui.Run(cancelRun)
	cancelRun()
	runErr := <-done

	if uiErr != nil && ctx.Err() == nil {
		logger.Warn("Display stopped: %v", uiErr)
	}
	if errors.Is(runErr, experiment.ErrStoppedByUser) || runErr == nil {
		fmt.Println(display.Line(runner.Session.Snapshot()))
	}
	return runErr
}
