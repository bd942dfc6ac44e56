package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/vcwatch/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recent notifications over HTTP",
	Long: `Start a read-only HTTP feed for dashboards:

  GET /health
  GET /api/notifications?limit=N&agent=ID`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
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

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return api.Serve(ctx, cfg.Server.Addr, api.NewHandler(st, logger).Router(), logger)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8787)")
	rootCmd.AddCommand(serveCmd)
}
