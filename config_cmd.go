package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# log level: debug, info, warn, error
log_level: "info"
# directory for persisted state (defaults to the platform data dir)
# data_dir: ""

# voice and speed forwarded to the synthesis collaborator
voice: "en-US-default"
speed: 1.0

queue:
  # cancel the current utterance when a new request arrives
  stop_previous: true
  # pending queue bound (queue mode only)
  max_size: 10
  # force-stop sessions older than this
  session_timeout: 5m
  # how long a finished session stays readable before the slot frees
  grace_delay: 1s
  # stale-session sweep period
  sweep_interval: 1m
  # persist aggregate counters across restarts
  persist_state: true
  # overflow policy: reject or evict
  overflow: "reject"

synth:
  # built-in loopback collaborator for local runs
  loopback: true
  # simulated speaking time per word
  word_delay: 150ms
`

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the configuration file",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}
		contents, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("unable to read config: %w", err)
		}
		fmt.Printf("# %s\n\n%s", configFile, contents)
		return nil
	},
}

// ensureConfigFile writes the default configuration when none exists yet.
func ensureConfigFile() error {
	if used := viper.ConfigFileUsed(); used != "" {
		configFile = used
		return nil
	}
	if configFile == "" {
		return fmt.Errorf("no configuration path available")
	}
	if _, err := os.Stat(configFile); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("unable to write default config: %w", err)
	}
	return nil
}
