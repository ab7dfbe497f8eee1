package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/api"
)

func newServeCommand(a *app) *cobra.Command {
	var bindOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bridge HTTP API",
		Long: `Start the bridge HTTP API. Clients bind, print and watch the
connection state through it.

Example:
  bridge serve --listen :9300
  bridge serve --transport dbus --bind=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeBridge, err := a.newBridge()
			if err != nil {
				return err
			}
			defer closeBridge()

			if bindOnStart {
				if err := b.Bind(); err != nil {
					a.logger.Warn("initial bind failed", zap.Error(err))
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return api.NewServer(b, a.logger).Run(ctx, a.cfg.Listen)
		},
	}

	cmd.Flags().String("listen", "", "HTTP listen address")
	_ = a.v.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	cmd.Flags().BoolVar(&bindOnStart, "bind", true, "bind to the printer service on start")

	return cmd
}
