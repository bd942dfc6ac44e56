package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/vcwatch/internal/notify"
	"github.com/steveyegge/vcwatch/internal/urgency"
)

var notifyCmd = &cobra.Command{
	Use:   "notify <message...>",
	Short: "Send an ad-hoc notification through every channel",
	Long: `Build a notification and deliver it synchronously through the durable log
and every configured channel, then print the per-channel results.

Urgency defaults to what the event type implies; --urgency overrides it.

Examples:
  vcwatch notify --agent build-bot --event error "tests failing on main"
  vcwatch notify --dry-run --urgency HIGH "check the dashboard"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _ := cmd.Flags().GetString("agent")
		event, _ := cmd.Flags().GetString("event")
		level, _ := cmd.Flags().GetString("urgency")
		payload, _ := cmd.Flags().GetString("payload")
		project, _ := cmd.Flags().GetString("project")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if payload != "" && !json.Valid([]byte(payload)) {
			return fmt.Errorf("--payload is not valid JSON")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if dryRun {
			cfg.DryRun = true
		}
		if project != "" {
			cfg.Project = project
		}

		logger, closeLog, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		d := buildDispatcher(cfg, st, logger)

		lvl := urgency.Classify(event, payload)
		if level != "" {
			lvl = urgency.Parse(level)
		}
		msg := notify.NewMessage(agentID, strings.Join(args, " "), lvl, event)
		msg.Metadata.Project = cfg.Project
		if payload != "" {
			msg.Payload = json.RawMessage(payload)
		}

		out := cmd.OutOrStdout()
		if cfg.DryRun {
			fmt.Fprintln(out, color.YellowString("DRY RUN MODE - No notifications will be delivered"))
		}
		fmt.Fprintf(out, "%s %s\n", urgencyColor(lvl.String()).Sprintf("[%s]", lvl), notify.Format(msg))

		deliveries := d.Send(context.Background(), msg)
		printDeliveries(out, deliveries)

		sent, skipped, failed := notify.Summary(deliveries)
		fmt.Fprintf(out, "%d sent, %d skipped, %d failed\n", sent, skipped, failed)
		if failed > 0 {
			return fmt.Errorf("%d channel(s) failed", failed)
		}
		return nil
	},
}

func init() {
	notifyCmd.Flags().String("agent", "", "Agent ID")
	notifyCmd.Flags().String("event", "notification", "Event type (drives default urgency)")
	notifyCmd.Flags().String("urgency", "", "Override urgency: HIGH, MEDIUM, LOW")
	notifyCmd.Flags().String("payload", "", "Structured JSON payload for dashboard channels")
	notifyCmd.Flags().String("project", "", "Project name")
	notifyCmd.Flags().Bool("dry-run", false, "Report every channel as skipped without delivering")
	rootCmd.AddCommand(notifyCmd)
}
