package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/ipc"
	"github.com/thereceipt/printer-bridge/internal/printerd"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the printer to bridges",
		Long: `Open the configured device and serve it to bridges.

Example:
  printerd serve --device usb --vid 0x04b8 --pid 0x0e15
  printerd serve --device network --host 192.168.1.50
  printerd serve --device file --path /tmp/receipt.bin --dbus`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(a)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", "", "HTTP listen address")
	flags.String("package", "", "service package")
	flags.String("component", "", "service component")
	flags.String("device", "", "device type (usb|serial|network|file)")
	flags.String("vid", "", "USB vendor ID")
	flags.String("pid", "", "USB product ID")
	flags.String("path", "", "serial port or output file ('-' for stdout)")
	flags.Int("baud", 0, "serial baud rate")
	flags.String("host", "", "network printer host")
	flags.Int("port", 0, "network printer port")
	flags.String("paper", "", "paper width (58mm|80mm|112mm)")
	flags.String("font", "", "TrueType font for table rows")
	flags.Bool("dbus", false, "also export the service on the session bus")

	for key, flag := range map[string]string{
		"listen":      "listen",
		"package":     "package",
		"component":   "component",
		"device.type": "device",
		"device.vid":  "vid",
		"device.pid":  "pid",
		"device.path": "path",
		"device.baud": "baud",
		"device.host": "host",
		"device.port": "port",
		"paper_width": "paper",
		"font":        "font",
		"dbus":        "dbus",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}

func serve(a *app) error {
	dev, err := printerd.Open(a.cfg.Device)
	if err != nil {
		return err
	}
	defer dev.Close()

	svc := printerd.NewService(dev,
		printerd.WithPaperWidth(printerd.PaperWidthDots(a.cfg.PaperWidth)),
		printerd.WithFont(a.cfg.Font),
		printerd.WithLogger(a.logger),
	)
	if err := svc.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize printer: %w", err)
	}
	a.logger.Info("printer ready",
		zap.String("device", a.cfg.Device.Type),
		zap.String("paper", a.cfg.PaperWidth),
	)

	if a.cfg.DBus {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return fmt.Errorf("failed to connect to session bus: %w", err)
		}
		defer conn.Close()
		if err := ipc.ExportDBus(conn, a.cfg.Locator, svc); err != nil {
			return err
		}
		a.logger.Info("exported on session bus", zap.String("name", ipc.BusName(a.cfg.Locator)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return printerd.NewServer(svc, a.cfg.Locator, a.logger).Run(ctx, a.cfg.Listen)
}
