package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/printerd"
)

func newDevicesCommand(a *app) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List attached printers",
		Long: `List USB printers and serial ports that could drive a printer.
With --watch, keep scanning and report devices as they come and go.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return watchDevices(a, interval)
			}

			found, err := printerd.Detect()
			if err != nil {
				a.logger.Warn("USB detection failed", zap.Error(err))
			}
			if len(found) == 0 {
				fmt.Println("No printers found")
				return nil
			}
			for _, c := range found {
				fmt.Printf("%-24s %s\n", c.Key(), c.Description)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep scanning for changes")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "scan interval for --watch")

	return cmd
}

func watchDevices(a *app, interval time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := printerd.NewMonitor(interval, a.logger)
	m.OnAdded(func(c printerd.Candidate) {
		fmt.Printf("+ %-24s %s\n", c.Key(), c.Description)
	})
	m.OnRemoved(func(c printerd.Candidate) {
		fmt.Printf("- %-24s %s\n", c.Key(), c.Description)
	})
	m.Run(ctx)
	return nil
}
