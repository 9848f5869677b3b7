package main

import (
	"roomchat/internal/app"
	"roomchat/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type rootOptions struct {
	configFile string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.New()}

	rootCmd := &cobra.Command{
		Use:           "roomchat",
		Short:         "Real-time room chat server",
		Long:          "roomchat serves room-scoped chat over HTTP and WebSocket, backed by Redis.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "optional config file (yaml, json or toml)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newResetCmd(opts),
	)

	return rootCmd
}

// load reads configuration and builds the logger.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.v, o.configFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := app.NewLogger(cfg.LogDev)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
