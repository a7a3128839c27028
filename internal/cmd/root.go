package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/runger/warmroute/internal/config"
	wrlog "github.com/runger/warmroute/internal/log"
)

// Command groups shown in help output.
const (
	groupRun   = "run"
	groupModel = "model"
	groupSetup = "setup"
)

var (
	configPath string
	colorMode  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "warmroute",
	Short: "predictive route prefetching",
	Long: `warmroute - learn where users go next and warm those routes early
  - replay navigation traces against the prefetch engine
  - inspect, export or reset the learned transition model`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return applyColorMode()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupRun, Title: "Replay:"},
		&cobra.Group{ID: groupModel, Title: "Model:"},
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
	)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/warmroute/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "color output: auto, always, or never")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the config named by --config, or the default file.
func loadConfig() (*config.Config, *config.Paths, error) {
	paths := config.DefaultPaths()
	path := configPath
	if path == "" {
		path = paths.ConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		if err := cfg.Set("log.level", logLevel); err != nil {
			return nil, nil, err
		}
	}
	return cfg, paths, nil
}

// configFilePath returns the file config writes go to.
func configFilePath(paths *config.Paths) string {
	if configPath != "" {
		return configPath
	}
	return paths.ConfigFile()
}

// newLogger builds the command logger. The returned closer releases the
// log file, if one was opened.
func newLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	lc := wrlog.DefaultConfig()
	lc.Level = wrlog.ParseLevel(cfg.Log.Level)
	lc.Debug = cfg.Log.Level == "debug"

	noop := func() error { return nil }
	if cfg.Log.File == "" {
		return wrlog.New(lc), noop, nil
	}

	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to open log file: %w", err)
	}
	lc.Output = f
	return wrlog.New(lc), f.Close, nil
}
