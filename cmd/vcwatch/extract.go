package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/vcwatch/internal/ai"
	"github.com/steveyegge/vcwatch/internal/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Ask the AI extractor what the agent is waiting for",
	Long: `Send terminal text from stdin through the adaptive extractor: growing
context windows are tried until the completion service returns a
confident, structured answer.

Requires an API key (ANTHROPIC_API_KEY, OPENAI_API_KEY, VCWATCH_API_KEY,
ai.api_key in the config file, or a .env file).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _ := cmd.Flags().GetString("agent")
		showMetrics, _ := cmd.Flags().GetBool("metrics")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
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

		cfg.AI.Enabled = true
		metrics := extract.NewInMemoryMetricsCollector()
		ex, err := buildExtractor(cfg, metrics, logger)
		if err != nil {
			return err
		}
		if ex == nil {
			return fmt.Errorf("AI extraction unavailable: %w", ai.ErrMissingAPIKey)
		}

		res := ex.Extract(context.Background(), agentID, text)
		out := cmd.OutOrStdout()
		printExtraction(out, res)

		if showMetrics {
			cyan := color.New(color.FgCyan).SprintFunc()
			fmt.Fprintf(out, "\n%s\n", cyan("Iterations"))
			for _, it := range metrics.Iterations(agentID) {
				fmt.Fprintf(out, "  #%d lines=%d bytes=%d %s %v confidence=%.2f %s\n",
					it.Iteration, it.WindowLines, it.PromptBytes, it.Outcome,
					it.Duration.Round(time.Millisecond), it.Confidence, it.Err)
			}
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().String("agent", "cli", "Agent ID used in logs and metrics")
	extractCmd.Flags().Bool("metrics", false, "Print per-iteration metrics")
	rootCmd.AddCommand(extractCmd)
}
