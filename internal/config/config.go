// Package config loads lectern configuration from its YAML config file and
// the environment. File values come through viper; LECTERN_* environment
// variables override them.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/lecternhq/lectern/internal/speech"
)

// Config is the full application configuration.
type Config struct {
	DataDir  string      `mapstructure:"data_dir" env:"LECTERN_DATA_DIR"`
	LogLevel string      `mapstructure:"log_level" env:"LECTERN_LOG_LEVEL"`
	Voice    string      `mapstructure:"voice" env:"LECTERN_VOICE"`
	Speed    float64     `mapstructure:"speed" env:"LECTERN_SPEED"`
	Queue    QueueConfig `mapstructure:"queue"`
	Synth    SynthConfig `mapstructure:"synth"`
}

// QueueConfig configures the session queue manager.
type QueueConfig struct {
	StopPrevious    bool          `mapstructure:"stop_previous" env:"LECTERN_STOP_PREVIOUS"`
	MaxSize         int           `mapstructure:"max_size" env:"LECTERN_QUEUE_MAX_SIZE"`
	SessionTimeout  time.Duration `mapstructure:"session_timeout" env:"LECTERN_SESSION_TIMEOUT"`
	GraceDelay      time.Duration `mapstructure:"grace_delay"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	PersistState    bool          `mapstructure:"persist_state" env:"LECTERN_PERSIST_STATE"`
	PersistDebounce time.Duration `mapstructure:"persist_debounce"`
	Overflow        string        `mapstructure:"overflow" env:"LECTERN_QUEUE_OVERFLOW"`
}

// SynthConfig configures the bundled loopback collaborator.
type SynthConfig struct {
	Loopback  bool          `mapstructure:"loopback" env:"LECTERN_LOOPBACK"`
	WordDelay time.Duration `mapstructure:"word_delay"`
}

// Default returns the built-in configuration.
func Default() Config {
	qc := speech.DefaultConfig()
	return Config{
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
		Voice:    "en-US-default",
		Speed:    1.0,
		Queue: QueueConfig{
			StopPrevious:    qc.StopPrevious,
			MaxSize:         qc.MaxQueueSize,
			SessionTimeout:  qc.SessionTimeout,
			GraceDelay:      qc.GraceDelay,
			SweepInterval:   qc.SweepInterval,
			PersistState:    qc.PersistState,
			PersistDebounce: qc.PersistDebounce,
			Overflow:        "reject",
		},
		Synth: SynthConfig{
			Loopback:  true,
			WordDelay: 150 * time.Millisecond,
		},
	}
}

// DefaultDataDir returns the platform data directory for lectern.
func DefaultDataDir() string {
	scope := gap.NewScope(gap.User, "lectern")
	dir, err := scope.DataPath("")
	if err != nil {
		return ".lectern"
	}
	return dir
}

// Load merges viper's current state over the defaults, then applies
// environment overrides.
func Load() (Config, error) {
	cfg := Default()

	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse configuration: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Speed < 0.1 || c.Speed > 3.0 {
		return fmt.Errorf("speed must be between 0.1 and 3.0, got %.2f", c.Speed)
	}
	if c.Queue.MaxSize < 0 {
		return fmt.Errorf("queue max_size must not be negative, got %d", c.Queue.MaxSize)
	}
	switch c.Queue.Overflow {
	case "reject", "evict":
	default:
		return fmt.Errorf("queue overflow must be reject or evict, got %q", c.Queue.Overflow)
	}
	return nil
}

// ManagerConfig converts the queue section into a speech.Config.
func (c Config) ManagerConfig() speech.Config {
	overflow := speech.OverflowReject
	if c.Queue.Overflow == "evict" {
		overflow = speech.OverflowEvictLowest
	}
	return speech.Config{
		StopPrevious:    c.Queue.StopPrevious,
		MaxQueueSize:    c.Queue.MaxSize,
		SessionTimeout:  c.Queue.SessionTimeout,
		GraceDelay:      c.Queue.GraceDelay,
		SweepInterval:   c.Queue.SweepInterval,
		PersistState:    c.Queue.PersistState,
		PersistDebounce: c.Queue.PersistDebounce,
		Overflow:        overflow,
	}
}
