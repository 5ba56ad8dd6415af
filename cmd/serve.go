package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"car-dashboard/dashboard"
	"car-dashboard/storage"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = flagAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := newDashboard()
		if err != nil {
			return err
		}
		logger.Info("=== Used car dashboard starting (data: %s) ===", cfg.DataPath)
		return srv.Serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides SERVER_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func newDashboard() (*dashboard.Server, error) {
	pred, explainer, err := loadModel(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	return dashboard.NewServer(cfg.Server, storage.NewCSVReader(cfg.DataPath), pred, explainer, logger), nil
}
