package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/vcwatch/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent notifications from the durable log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		agentID, _ := cmd.Flags().GetString("agent")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
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
		recs, err := st.Read(store.Query{Limit: limit, AgentID: agentID})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			for _, r := range recs {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		}

		if len(recs) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(out, "\n%s No notifications found\n\n", yellow("✨"))
			return nil
		}
		for _, r := range recs {
			printRecord(out, r)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of recent notifications to show")
	historyCmd.Flags().String("agent", "", "Only show this agent")
	historyCmd.Flags().Bool("json", false, "Print raw JSON lines")
	rootCmd.AddCommand(historyCmd)
}
