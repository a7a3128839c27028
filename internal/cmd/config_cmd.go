package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/warmroute/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get or set configuration values",
	Long: `Get or set warmroute configuration values.

Without arguments, lists the common configuration keys.
With one argument, shows the value of that key.
With two arguments, sets the key to the value.

Configuration is stored in ~/.config/warmroute/config.yaml (XDG compliant).

Keys are in the format: section.key
Sections: engine, scoring, gates, scheduler, storage, dispatch, log

Examples:
  warmroute config                              # List keys
  warmroute config scoring.reinforce_weight     # Get a value
  warmroute config storage.backend badger       # Switch storage backend
  warmroute config gates.require_fine_pointer true`,
	Args:    cobra.MaximumNArgs(2),
	GroupID: groupSetup,
	RunE:    runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch len(args) {
	case 0:
		return listConfig(out, cfg, configFilePath(paths))
	case 1:
		return getConfig(out, cfg, args[0])
	case 2:
		return setConfig(out, cfg, paths, args[0], args[1])
	}

	return nil
}

func listConfig(out io.Writer, cfg *config.Config, file string) error {
	fmt.Fprintln(out, paint(titleStyle, "Configuration Keys"))
	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintln(out)

	var failedKeys []string
	for _, key := range config.ListKeys() {
		value, err := cfg.Get(key)
		if err != nil {
			failedKeys = append(failedKeys, key)
			continue
		}

		displayValue := value
		if displayValue == "" {
			displayValue = paint(dimStyle, "(not set)")
		}

		fmt.Fprintf(out, "  %s = %s\n", paint(keyStyle, key), displayValue)
	}

	if len(failedKeys) > 0 {
		fmt.Fprintf(out, "\n%s Failed to retrieve keys: %s\n", paint(warnStyle, "Warning:"), strings.Join(failedKeys, ", "))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Config file: %s\n", file)

	return nil
}

func getConfig(out io.Writer, cfg *config.Config, key string) error {
	value, err := cfg.Get(key)
	if err != nil {
		return err
	}

	if value == "" {
		fmt.Fprintln(out, paint(dimStyle, "(not set)"))
	} else {
		fmt.Fprintln(out, value)
	}

	return nil
}

func setConfig(out io.Writer, cfg *config.Config, paths *config.Paths, key, value string) error {
	if err := cfg.Set(key, value); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if configPath == "" {
		if err := paths.EnsureDirectories(); err != nil {
			return fmt.Errorf("failed to create directories: %w", err)
		}
	}

	file := configFilePath(paths)
	if err := cfg.SaveToFile(file); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s = %s\n", paint(keyStyle, key), value)
	fmt.Fprintf(out, "Saved to: %s\n", file)

	return nil
}
