package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robalobadob/tickantoe/internal/config"
)

var (
	cfg      config.Config
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tickantoe",
		Short:         "Tic Kan Toe condition API, relay and terminal client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
				zerolog.SetGlobalLevel(lvl)
			} else {
				log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "overrides LOG_LEVEL")
	root.AddCommand(serveCmd(), playCmd())
	return root
}
