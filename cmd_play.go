package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robalobadob/tickantoe/internal/api"
	"github.com/robalobadob/tickantoe/internal/game"
	"github.com/robalobadob/tickantoe/internal/kv"
	"github.com/robalobadob/tickantoe/internal/online"
	"github.com/robalobadob/tickantoe/internal/session"
)

func playCmd() *cobra.Command {
	var (
		apiRoot  string
		relayURL string
		backend  string
		maxGen   int
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a session in the terminal",
		Long: `Starts a line-driven client session against a running server.
The session is saved in the configured store and resumed on the next start.

Examples:
  tickantoe play
  tickantoe play --max-gen 2
  tickantoe play --api http://host:3135 --relay ws://host:3135/ws`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("api") {
				cfg.APIRoot = apiRoot
			}
			if cmd.Flags().Changed("relay") {
				cfg.RelayURL = relayURL
			}
			if cmd.Flags().Changed("backend") {
				cfg.StoreBackend = backend
			}

			// Every mutation is persisted as it happens, so an interrupt loses nothing.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			store, err := kv.Open(cfg.KV())
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					log.Warn().Err(err).Msg("close store")
				}
			}()

			sessions := session.New(store, cfg.HistoryLimit)
			client := api.New(cfg.APIRoot, nil)
			machine := online.New(sessions, online.WebsocketDialer{URL: cfg.RelayURL}, online.Options{})
			g := game.New(game.Options{
				Store:    sessions,
				API:      client,
				Link:     session.LinkFile{Path: cfg.LinkFile},
				Presence: machine,
			})
			if _, err := g.Initialize(ctx, game.Details{MaxGen: maxGen}); err != nil {
				return err
			}
			defer func() { _ = machine.Disable(context.Background()) }()

			r := &repl{game: g, store: sessions, online: machine, searcher: client, out: cmd.OutOrStdout()}
			go r.watch(ctx, machine.Lost())
			return r.run(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&apiRoot, "api", "", "overrides API_ROOT")
	cmd.Flags().StringVar(&relayURL, "relay", "", "overrides RELAY_URL")
	cmd.Flags().StringVar(&backend, "backend", "", "overrides STORE_BACKEND (memory|sqlite|badger)")
	cmd.Flags().IntVar(&maxGen, "max-gen", 0, "start a fresh grid under this generation ceiling")
	return cmd
}
