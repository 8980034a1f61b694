// Package main provides the entry point for the lectern CLI.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lecternhq/lectern/internal/bus"
	"github.com/lecternhq/lectern/internal/config"
	"github.com/lecternhq/lectern/internal/pipeline"
	"github.com/lecternhq/lectern/internal/pipeline/plugins"
	"github.com/lecternhq/lectern/internal/speech"
	"github.com/lecternhq/lectern/internal/store"
	"github.com/lecternhq/lectern/internal/synth"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	dataDir    string
	logLevel   string
	queueMode  bool
	noPersist  bool

	rootCmd = &cobra.Command{
		Use:   "lectern [FILE]",
		Short: "Read text aloud, one utterance at a time",
		Long: "Lectern queues speech requests and guarantees that at most one\n" +
			"utterance plays at a time, superseding or queueing the rest.",
		SilenceErrors: false,
		SilenceUsage:  true,
		Args:          cobra.MaximumNArgs(1),
		RunE:          execute,
	}
)

func execute(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if queueMode {
		cfg.Queue.StopPrevious = false
	}
	if noPersist {
		cfg.Queue.PersistState = false
	}
	applyLogLevel(cfg.LogLevel)

	reader, sourceID, err := openSource(args)
	if err != nil {
		return err
	}
	defer reader.Close() //nolint:errcheck

	st, err := store.OpenBadger(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return err
	}

	b := bus.New()

	host := pipeline.NewHost(b, st)
	for _, p := range []pipeline.Plugin{plugins.NewNormalize(), plugins.NewStats()} {
		if err := host.Register(p); err != nil {
			_ = st.Close()
			return err
		}
	}
	if err := host.Init(); err != nil {
		_ = st.Close()
		return fmt.Errorf("pipeline startup failed: %w", err)
	}

	mgr := speech.NewManager(b, st, cfg.ManagerConfig())
	mgr.UseProcessor(host)
	if err := mgr.Start(); err != nil {
		_ = host.Cleanup()
		_ = st.Close()
		return err
	}

	var loop *synth.Loopback
	if cfg.Synth.Loopback {
		loop = synth.NewLoopback(b, cfg.Synth.WordDelay)
		loop.Start()
	}

	subscribeNotifications(b)
	feedRequests(b, reader, sourceID, cfg)
	waitForDrain(mgr)

	// Teardown in reverse startup order; every component gets an attempt.
	if loop != nil {
		loop.Close()
	}
	if err := mgr.Cleanup(); err != nil {
		log.Warn("manager cleanup failed", "error", err)
	}
	if err := host.Cleanup(); err != nil {
		log.Warn("pipeline cleanup failed", "error", err)
	}
	if err := st.Close(); err != nil {
		log.Warn("store close failed", "error", err)
	}

	stats := mgr.GetStats()
	log.Info("done",
		"processed", stats.TotalProcessed,
		"stopped", stats.TotalStopped,
		"errors", stats.TotalErrors)
	return nil
}

// openSource returns the text source: a file argument, or stdin.
func openSource(args []string) (io.ReadCloser, string, error) {
	if len(args) == 0 || args[0] == "-" {
		return os.Stdin, "stdin", nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("unable to open file: %w", err)
	}
	return f, filepath.Base(args[0]), nil
}

// subscribeNotifications surfaces playback notifications on the log; this is
// the stand-in for a presentation collaborator.
func subscribeNotifications(b *bus.Bus) {
	b.Subscribe(speech.TopicPlaybackStarted, func(ev bus.Event) error {
		if msg, ok := ev.Payload.(speech.PlaybackStartedMsg); ok {
			log.Info("speaking", "session", msg.SessionID, "source", msg.SourceID)
		}
		return nil
	})
	b.Subscribe(speech.TopicStopped, func(ev bus.Event) error {
		if msg, ok := ev.Payload.(speech.StoppedMsg); ok {
			log.Info("stopped", "session", msg.SessionID, "reason", msg.Reason)
		}
		return nil
	})
	b.Subscribe(speech.TopicRejected, func(ev bus.Event) error {
		if msg, ok := ev.Payload.(speech.RejectedMsg); ok {
			log.Warn("request rejected", "request", msg.RequestID, "reason", msg.Reason)
		}
		return nil
	})
	b.Subscribe(pipeline.TopicProcessError, func(ev bus.Event) error {
		if msg, ok := ev.Payload.(pipeline.ProcessError); ok {
			log.Error("pipeline failure", "plugin", msg.PluginID, "error", msg.Err)
		}
		return nil
	})
}

// feedRequests emits one request per non-empty input line.
func feedRequests(b *bus.Bus, r io.Reader, sourceID string, cfg config.Config) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		b.Emit(speech.TopicRequest, speech.Request{
			ID:       uuid.NewString(),
			SourceID: sourceID,
			Text:     line,
			Voice:    cfg.Voice,
			Speed:    cfg.Speed,
			Priority: speech.PriorityNormal,
		})
	}
	if err := scanner.Err(); err != nil {
		log.Warn("input read failed", "error", err)
	}
}

// waitForDrain blocks until the slot and pending queue are empty, or a
// shutdown signal arrives.
func waitForDrain(mgr *speech.Manager) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			log.Info("received shutdown signal", "signal", sig)
			mgr.StopCurrent()
			return
		case <-ticker.C:
			if _, busy := mgr.Current(); !busy && mgr.PendingLen() == 0 {
				return
			}
		}
	}
}

func applyLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "", "directory for persisted state")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVarP(&queueMode, "queue", "q", false, "queue requests instead of superseding the current one")
	rootCmd.Flags().BoolVar(&noPersist, "no-persist", false, "disable counter persistence")

	_ = viper.BindPFlag("data_dir", rootCmd.Flags().Lookup("data-dir"))
	_ = viper.BindPFlag("log_level", rootCmd.Flags().Lookup("log-level"))

	viper.SetDefault("log_level", "info")
	viper.SetDefault("queue.stop_previous", true)
	viper.SetDefault("queue.max_size", 10)
	viper.SetDefault("queue.persist_state", true)
	viper.SetDefault("queue.overflow", "reject")
	viper.SetDefault("synth.loopback", true)

	rootCmd.AddCommand(configCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "lectern")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "lectern")}, dirs...)
	}
	if c := os.Getenv("LECTERN_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("lectern")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("lectern")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}
	configFile = filepath.Join(dirs[0], "lectern.yml")
}
