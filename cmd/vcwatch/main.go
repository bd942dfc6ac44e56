// Command vcwatch watches AI coding agent terminals and notifies a human
// when an agent is blocked waiting for input.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/vcwatch/internal/config"
	"github.com/steveyegge/vcwatch/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "vcwatch",
	Short: "Notify when coding agents are waiting for you",
	Long: `vcwatch polls agent terminals, waits for output to settle, detects
prompts that need a human (confirmations, permission requests, questions),
and delivers one notification per prompt to the configured channels.

Configuration is read from ~/.vcwatch/config.yaml and VCWATCH_* environment
variables. Every notification is also appended to
~/.vcwatch/notifications.jsonl.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.vcwatch/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")
}

// loadConfig loads the config file named by --config and applies
// --log-level.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

// setupLogger installs the configured logger as the slog default.
func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	logger, closeFn, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, closeFn, err
	}
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}
