package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/kbmeter/internal/config"
	"github.com/rewired-gh/kbmeter/internal/experiment"
	"github.com/rewired-gh/kbmeter/internal/logger"
)

// exitInterrupted is the conventional status for a process stopped by SIGINT.
const exitInterrupted = 130

func main() {
	err := newRootCmd().Execute()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, experiment.ErrStoppedByUser):
		if err != experiment.ErrStoppedByUser {
			fmt.Fprintln(os.Stderr, err)
		}
		return exitInterrupted
	default:
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
}

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "kbmeter",
		Short:         "Measure the Boltzmann constant from the speed of sound",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to configuration file (defaults and KBMETER_* environment when empty)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(newAcquireCmd(&flags))
	cmd.AddCommand(newReprocessCmd(&flags))
	cmd.AddCommand(newCompareCmd(&flags))
	cmd.AddCommand(newPortsCmd())
	cmd.AddCommand(newRunsCmd(&flags))
	return cmd
}

// loadConfig loads the configuration, lets mutate apply flag overrides, validates the result and
// initializes logging.
func loadConfig(flags *rootFlags, mutate func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if flags.configPath != "" {
		logger.Debug("Configuration loaded from %s", flags.configPath)
	}
	return cfg, nil
}
