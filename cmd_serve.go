package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/robalobadob/tickantoe/internal/dex"
	"github.com/robalobadob/tickantoe/internal/httpserver"
	"github.com/robalobadob/tickantoe/internal/relay"
)

func serveCmd() *cobra.Command {
	var (
		port    string
		dexFile string
		maxGen  int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the condition API and the matchmaking relay",
		Long: `Serves the condition API (/api/*), the websocket relay (/ws) and
Prometheus metrics (/metrics) on one port.

Examples:
  tickantoe serve
  tickantoe serve --port 8080 --default-max-gen 3
  tickantoe serve --dex ./my-dex.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("dex") {
				cfg.DexFile = dexFile
			}
			if cmd.Flags().Changed("default-max-gen") {
				cfg.DefaultMaxGen = maxGen
			}

			d, err := dex.Load(cfg.DexFile)
			if err != nil {
				return err
			}
			hub := relay.NewHub(relay.Options{QueueSize: cfg.RelayQueue, Rate: cfg.RelayRate})
			srv := httpserver.New(httpserver.Options{
				Dex:           d,
				Relay:         hub,
				ClientOrigin:  cfg.ClientOrigin,
				DefaultMaxGen: cfg.DefaultMaxGen,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return hub.Run(gctx) })
			g.Go(func() error { return srv.Run(gctx, ":"+cfg.Port) })

			log.Info().
				Str("port", cfg.Port).
				Int("generations", d.MaxGeneration()).
				Msg("starting tickantoe server")
			if err := g.Wait(); err != nil {
				log.Error().Err(err).Msg("server exited")
				return err
			}
			log.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "overrides PORT")
	cmd.Flags().StringVar(&dexFile, "dex", "", "overrides DEX_FILE")
	cmd.Flags().IntVar(&maxGen, "default-max-gen", 0, "overrides DEFAULT_MAX_GEN")
	return cmd
}
