package main

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/bridge"
	"github.com/thereceipt/printer-bridge/internal/config"
	"github.com/thereceipt/printer-bridge/internal/decode"
	"github.com/thereceipt/printer-bridge/internal/ipc"
	"github.com/thereceipt/printer-bridge/internal/logging"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Bridge
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.NewBridgeViper()}

	cmd := &cobra.Command{
		Use:           "bridge",
		Short:         "Printer service bridge",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadBridge(a.v, a.configFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.Development)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("transport", "", "printer service transport (ws|dbus)")
	flags.String("service-url", "", "printer service base URL for the ws transport")
	flags.String("package", "", "printer service package")
	flags.String("component", "", "printer service component")
	flags.Duration("call-timeout", 0, "bound on each remote call (0 waits forever)")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.Bool("development", false, "human readable logs")

	for key, flag := range map[string]string{
		"transport":    "transport",
		"service_url":  "service-url",
		"package":      "package",
		"component":    "component",
		"call_timeout": "call-timeout",
		"log_level":    "log-level",
		"development":  "development",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newExecCommand(a))
	cmd.AddCommand(newRunCommand(a))
	cmd.AddCommand(newStatusCommand(a))

	return cmd
}

// newBinder builds the IPC mechanism named by the config. The returned
// cleanup releases transport resources.
func newBinder(cfg *config.Bridge, logger *zap.Logger) (ipc.Binder, func(), error) {
	switch cfg.Transport {
	case config.TransportWebSocket:
		opts := []ipc.WebSocketOption{ipc.WithLogger(logger)}
		if cfg.CallTimeout > 0 {
			opts = append(opts, ipc.WithCallTimeout(cfg.CallTimeout))
		}
		return ipc.NewWebSocketBinder(cfg.ServiceURL, opts...), func() {}, nil
	case config.TransportDBus:
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to session bus: %w", err)
		}
		return ipc.NewDBusBinder(conn, logger), func() { _ = conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// newBridge assembles the facade over the configured transport.
func (a *app) newBridge() (*bridge.Bridge, func(), error) {
	binder, cleanup, err := newBinder(a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}

	b := bridge.New(
		bridge.NewController(binder, a.cfg.Locator, a.logger),
		bridge.NewSerializer(a.logger),
		bridge.WithDecoder(decode.NewDecoder(a.cfg.MaxDimension)),
		bridge.WithLogger(a.logger),
	)

	closeAll := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.Close(ctx); err != nil {
			a.logger.Warn("bridge did not stop cleanly", zap.Error(err))
		}
		cleanup()
	}
	return b, closeAll, nil
}

// connect binds and waits up to timeout for the service.
func connect(ctx context.Context, b *bridge.Bridge, timeout time.Duration) error {
	if err := b.Bind(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := b.WaitBound(ctx); err != nil {
		return fmt.Errorf("printer service unavailable (%s): %w", b.State(), err)
	}
	return nil
}
