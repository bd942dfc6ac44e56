package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/vcwatch/internal/config"
	"github.com/steveyegge/vcwatch/internal/pipeline"
)

// buildPipeline wires the store, dispatcher, tracker and optional extractor
// into a pipeline. cleanup releases everything and is never nil.
func buildPipeline(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("cleanup failed", "error", err)
			}
		}
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, cleanup, err
	}
	dispatcher := buildDispatcher(cfg, st, logger)

	tracker, closeTracker, err := buildTracker(ctx, cfg, logger)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, closeTracker)

	opts := []pipeline.Option{pipeline.WithTracker(tracker), pipeline.WithLogger(logger)}
	ex, err := buildExtractor(cfg, nil, logger)
	if err != nil {
		return nil, cleanup, err
	}
	if ex != nil {
		opts = append(opts, pipeline.WithExtractor(ex))
	}

	return pipeline.New(cfg.PipelineConfig(), dispatcher, opts...), cleanup, nil
}

// applyPipelineFlags applies flags shared by observe and watch.
func applyPipelineFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")
	}
	if cmd.Flags().Changed("no-ai") {
		noAI, _ := cmd.Flags().GetBool("no-ai")
		cfg.AI.Enabled = !noAI
	}
	if cmd.Flags().Changed("threshold") {
		cfg.StabilityThreshold, _ = cmd.Flags().GetInt("threshold")
	}
	if cmd.Flags().Changed("project") {
		cfg.Project, _ = cmd.Flags().GetString("project")
	}
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "Classify and log decisions but deliver nothing")
	cmd.Flags().Bool("no-ai", false, "Disable AI extraction; rules only")
	cmd.Flags().Int("threshold", 0, "Identical captures required before classifying")
	cmd.Flags().String("project", "", "Project name shown in notifications")
	cmd.Flags().String("agent", "", "Agent ID (required)")
	_ = cmd.MarkFlagRequired("agent")
}

var observeCmd = &cobra.Command{
	Use:   "observe",
	Short: "Run one snapshot from stdin through the full pipeline",
	Long: `Read one terminal snapshot from stdin and submit it to the pipeline
--checks times, as if the terminal had been captured that many times without
changing. With the default threshold the third check is the first stable one.

Example:
  tmux capture-pane -p -t agent | vcwatch observe --agent agent-1 --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _ := cmd.Flags().GetString("agent")
		checks, _ := cmd.Flags().GetInt("checks")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyPipelineFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if !cmd.Flags().Changed("checks") {
			checks = cfg.StabilityThreshold
		}
		if checks < 1 {
			return fmt.Errorf("checks must be positive (got %d)", checks)
		}

		logger, closeLog, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		text, err := readInput(cmd)
		if err != nil {
			return err
		}

		ctx := context.Background()
		p, cleanup, err := buildPipeline(ctx, cfg, logger)
		defer cleanup()
		if err != nil {
			return err
		}

		if cfg.DryRun {
			fmt.Fprintln(cmd.OutOrStdout(), color.YellowString("DRY RUN MODE - No notifications will be delivered"))
		}
		for i := 0; i < checks; i++ {
			d, err := p.Observe(ctx, agentID, text)
			if err != nil {
				return err
			}
			printDecision(cmd.OutOrStdout(), d)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch --agent <id> -- <capture command...>",
	Short: "Poll an agent terminal and notify when it is waiting",
	Long: `Run a capture command on every poll interval, feed its output through the
pipeline, and deliver notifications. Stops on Ctrl+C.

Example:
  vcwatch watch --agent api-refactor -- tmux capture-pane -p -t api-refactor`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _ := cmd.Flags().GetString("agent")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyPipelineFlags(cmd, &cfg)
		if cmd.Flags().Changed("interval") {
			cfg.PollInterval, _ = cmd.Flags().GetDuration("interval")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, closeLog, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, cleanup, err := buildPipeline(ctx, cfg, logger)
		defer cleanup()
		if err != nil {
			return err
		}

		capturer := &pipeline.CommandCapturer{AgentID: agentID, Name: args[0], Args: args[1:]}

		out := cmd.OutOrStdout()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Fprintf(out, "%s Watching %s every %v: %s (Ctrl+C to stop)\n",
			cyan("👁️"), agentID, cfg.PollInterval, strings.Join(args, " "))

		err = p.Watch(ctx, capturer, cfg.PollInterval, func(d pipeline.Decision) {
			if d.Notified() || d.Status == pipeline.Unknown {
				printDecision(out, d)
			}
		})
		fmt.Fprintln(out, "\nStopped watching")
		return err
	},
}

func init() {
	addPipelineFlags(observeCmd)
	observeCmd.Flags().Int("checks", 0, "Times to submit the snapshot (default: stability threshold)")

	addPipelineFlags(watchCmd)
	watchCmd.Flags().Duration("interval", 0, "Poll interval (default from config)")

	rootCmd.AddCommand(observeCmd, watchCmd)
}
