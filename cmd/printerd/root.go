package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/config"
	"github.com/thereceipt/printer-bridge/internal/logging"
)

type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Printerd
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.NewPrinterdViper()}

	cmd := &cobra.Command{
		Use:           "printerd",
		Short:         "ESC/POS printer service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadPrinterd(a.v, a.configFile)
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
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.Bool("development", false, "human readable logs")
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("development", flags.Lookup("development"))

	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newDevicesCommand(a))

	return cmd
}
