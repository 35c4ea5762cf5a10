package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"periph.io/x/conn/v3/physic"

	"github.com/rewired-gh/kbmeter/internal/physics"
	"github.com/rewired-gh/kbmeter/internal/uncertainty"
)

// Accepted ranges for operator-entered values.
const (
	MinDistanceCM    = 1.0
	MaxDistanceCM    = 400.0
	MinBoxcarWindow  = 1 * time.Second
	MaxBoxcarWindow  = 1000 * time.Second
	MaxOffsetMS      = 1.0
	DefaultPortMatch = "Arduino"
)

// Config represents the complete application configuration
type Config struct {
	Experiment  ExperimentConfig  `mapstructure:"experiment"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	Display     DisplayConfig     `mapstructure:"display"`
	Reprocess   ReprocessConfig   `mapstructure:"reprocess"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ExperimentConfig holds the constants fixed at the start of a run
type ExperimentConfig struct {
	DistanceCM     float64            `mapstructure:"distance_cm"` // 0 means prompt the operator
	RoundTrip      bool               `mapstructure:"round_trip"`  // echo rigs travel the distance twice
	Gas            string             `mapstructure:"gas"`
	EOS            string             `mapstructure:"eos"`
	Budget         string             `mapstructure:"budget"`
	BudgetOverride uncertainty.Budget `mapstructure:"budget_override"`
	BoxcarWindow   time.Duration      `mapstructure:"boxcar_window"` // 0 disables the boxcar view
	LiveSigma      float64            `mapstructure:"live_sigma"`
	GateSigma      float64            `mapstructure:"gate_sigma"`
}

// AcquisitionConfig holds sample source configuration
type AcquisitionConfig struct {
	Source            string        `mapstructure:"source"` // serial, replay or stdin
	Port              string        `mapstructure:"port"`   // empty means discover
	PortMatch         string        `mapstructure:"port_match"`
	BaudRate          int           `mapstructure:"baud_rate"`
	DiscoveryAttempts int           `mapstructure:"discovery_attempts"`
	DiscoveryDelay    time.Duration `mapstructure:"discovery_delay"`
	ReplayFile        string        `mapstructure:"replay_file"`
	ReplayPace        time.Duration `mapstructure:"replay_pace"`
}

// DisplayConfig holds live display configuration
type DisplayConfig struct {
	Mode     string        `mapstructure:"mode"` // tui, log or none
	Interval time.Duration `mapstructure:"interval"`
}

// ReprocessConfig holds defaults for offline reprocessing
type ReprocessConfig struct {
	OffsetMS float64 `mapstructure:"offset_ms"`
	Gate     bool    `mapstructure:"gate"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
	DBPath  string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("KBMETER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Experiment defaults
	v.SetDefault("experiment.distance_cm", 0)
	v.SetDefault("experiment.round_trip", true)
	v.SetDefault("experiment.gas", "air")
	v.SetDefault("experiment.eos", "ideal")
	v.SetDefault("experiment.budget", "serial")
	v.SetDefault("experiment.boxcar_window", "0s")
	v.SetDefault("experiment.live_sigma", 3.0)
	v.SetDefault("experiment.gate_sigma", 2.0)

	// Acquisition defaults
	v.SetDefault("acquisition.source", "serial")
	v.SetDefault("acquisition.port", "")
	v.SetDefault("acquisition.replay_file", "")
	v.SetDefault("acquisition.port_match", DefaultPortMatch)
	v.SetDefault("acquisition.baud_rate", 9600)
	v.SetDefault("acquisition.discovery_attempts", 5)
	v.SetDefault("acquisition.discovery_delay", "3s")
	v.SetDefault("acquisition.replay_pace", "0s")

	// Display defaults
	v.SetDefault("display.mode", "log")
	v.SetDefault("display.interval", "1s")

	// Reprocess defaults
	v.SetDefault("reprocess.offset_ms", 0.0)
	v.SetDefault("reprocess.gate", false)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.db_path", "./data/kbmeter.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Experiment config
	if c.Experiment.DistanceCM != 0 {
		if err := CheckRange("experiment.distance_cm", c.Experiment.DistanceCM, MinDistanceCM, MaxDistanceCM); err != nil {
			return err
		}
	}
	if _, err := c.Experiment.Model(); err != nil {
		return fmt.Errorf("experiment: %w", err)
	}
	if _, err := c.Experiment.ErrorBudget(); err != nil {
		return fmt.Errorf("experiment: %w", err)
	}
	if w := c.Experiment.BoxcarWindow; w != 0 && (w < MinBoxcarWindow || w > MaxBoxcarWindow) {
		return fmt.Errorf("experiment.boxcar_window must be 0 or between %v and %v", MinBoxcarWindow, MaxBoxcarWindow)
	}
	if c.Experiment.LiveSigma <= 0 || c.Experiment.GateSigma <= 0 {
		return fmt.Errorf("experiment.live_sigma and experiment.gate_sigma must be positive")
	}

	// Validate Acquisition config
	switch c.Acquisition.Source {
	case "serial":
		if c.Acquisition.BaudRate <= 0 {
			return fmt.Errorf("acquisition.baud_rate must be positive")
		}
		if c.Acquisition.Port == "" && c.Acquisition.DiscoveryAttempts < 1 {
			return fmt.Errorf("acquisition.discovery_attempts must be at least 1 when acquisition.port is empty")
		}
	case "replay":
		if c.Acquisition.ReplayFile == "" {
			return fmt.Errorf("acquisition.replay_file is required when acquisition.source is replay")
		}
	case "stdin":
	default:
		return fmt.Errorf("acquisition.source must be one of: serial, replay, stdin")
	}
	if c.Acquisition.ReplayPace < 0 {
		return fmt.Errorf("acquisition.replay_pace must not be negative")
	}

	// Validate Display config
	validModes := map[string]bool{"tui": true, "log": true, "none": true}
	if !validModes[c.Display.Mode] {
		return fmt.Errorf("display.mode must be one of: tui, log, none")
	}
	if c.Display.Interval < 100*time.Millisecond {
		return fmt.Errorf("display.interval must be at least 100ms")
	}

	// Validate Reprocess config
	if err := CheckRange("reprocess.offset_ms", c.Reprocess.OffsetMS, -MaxOffsetMS, MaxOffsetMS); err != nil {
		return err
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Model returns the validated gas / equation-of-state selection.
func (e ExperimentConfig) Model() (physics.Model, error) {
	return physics.ParseModel(e.Gas, e.EOS)
}

// ErrorBudget returns the named budget, replaced component-wise by any positive override.
func (e ExperimentConfig) ErrorBudget() (uncertainty.Budget, error) {
	b, err := uncertainty.Preset(e.Budget)
	if err != nil {
		return uncertainty.Budget{}, err
	}
	if o := e.BudgetOverride; o.Distance > 0 {
		b.Distance = o.Distance
	}
	if o := e.BudgetOverride; o.TransitTime > 0 {
		b.TransitTime = o.TransitTime
	}
	if o := e.BudgetOverride; o.Temperature > 0 {
		b.Temperature = o.Temperature
	}
	return b, b.Validate()
}

// PathLength converts an operator distance in centimetres to the metres the pulse travels.
func PathLength(distanceCM float64, roundTrip bool) float64 {
	d := physic.Distance(distanceCM * float64(10*physic.MilliMetre))
	if roundTrip {
		d *= 2
	}
	return float64(d) / float64(physic.Metre)
}

// PathLength is the configured distance in metres.
func (e ExperimentConfig) PathLength() float64 {
	return PathLength(e.DistanceCM, e.RoundTrip)
}
