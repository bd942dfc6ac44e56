package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/vcwatch/internal/dedup"
	"github.com/steveyegge/vcwatch/internal/urgency"
	"github.com/steveyegge/vcwatch/internal/waitpattern"
)

// maxInput bounds how much terminal text is read from stdin.
const maxInput = 4 << 20

func readInput(cmd *cobra.Command) (string, error) {
	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxInput))
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify terminal text from stdin",
	Long: `Run the wait-pattern rules over the trailing lines of terminal text read
from stdin and print whether the agent is waiting and on what.

Examples:
  tmux capture-pane -p -t agent | vcwatch classify
  echo 'Proceed? [y/n]' | vcwatch classify`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		text, err := readInput(cmd)
		if err != nil {
			return err
		}

		v := waitpattern.NewClassifier(waitpattern.Config{TailLines: tail}).Classify(text)
		out := cmd.OutOrStdout()

		switch {
		case v.IsWaiting:
			fmt.Fprintf(out, "%s %s (rule %s)\n", color.GreenString("waiting:"), v.Pattern, v.Rule)
			if v.Line != "" {
				fmt.Fprintf(out, "  %s\n", v.Line)
			}
		case v.Pattern == waitpattern.Unknown:
			fmt.Fprintf(out, "%s input could not be classified\n", color.YellowString("unknown:"))
		default:
			fmt.Fprintln(out, "not waiting")
		}
		return nil
	},
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Print the dedup key of terminal text from stdin",
	Long: `Normalize terminal text (strip ANSI escapes, timestamps and blank lines)
and print its 16-character dedup key. Use --normalized to also print the
text that was hashed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		showNormalized, _ := cmd.Flags().GetBool("normalized")
		text, err := readInput(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, dedup.Key(text))
		if showNormalized {
			fmt.Fprintln(out, dedup.Normalize(text))
		}
		return nil
	},
}

var urgencyCmd = &cobra.Command{
	Use:   "urgency <event-type> [context]",
	Short: "Print the urgency of an agent event",
	Long: `Map an event type and optional raw context to HIGH, MEDIUM or LOW.

Examples:
  vcwatch urgency permission_request
  vcwatch urgency notification '{"notification_type":"idle_prompt"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := ""
		if len(args) == 2 {
			raw = args[1]
		}
		level := urgency.Classify(args[0], raw)
		fmt.Fprintln(cmd.OutOrStdout(), urgencyColor(level.String()).Sprint(level.String()))
		return nil
	},
}

func init() {
	classifyCmd.Flags().Int("tail", waitpattern.DefaultTailLines, "Number of trailing lines to classify")
	keyCmd.Flags().Bool("normalized", false, "Also print the normalized text")

	rootCmd.AddCommand(classifyCmd, keyCmd, urgencyCmd)
}
