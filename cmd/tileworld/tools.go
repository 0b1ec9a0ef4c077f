package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/tileworld/internal/auth"
	"github.com/dkeye/tileworld/internal/config"
	"github.com/dkeye/tileworld/internal/domain"
	"github.com/dkeye/tileworld/internal/protocol"
	"github.com/dkeye/tileworld/internal/store"
	"github.com/dkeye/tileworld/internal/world"
)

func runMigrate(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := store.Migrate(ctx, st); err != nil {
		return err
	}
	maps, err := world.NewService(st, st, domain.GridPosition{Row: cfg.Game.SpawnRow, Col: cfg.Game.SpawnCol}, cfg.IDs.Node)
	if err != nil {
		return err
	}
	m, err := maps.EnsureStarterMap(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("driver", cfg.Store.Driver).Str("default_map", string(m.ID)).Msg("migration complete")
	return nil
}

func newTokenCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token for a user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			tokens, err := auth.NewTokenService((*cfg).Auth.JWTSecret, (*cfg).Auth.Issuer, (*cfg).Auth.TokenTTL)
			if err != nil {
				return err
			}
			tok, err := tokens.Issue(domain.UserID(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), tok)
			return nil
		},
	}
}

func newSchemaCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the websocket protocol JSON schema",
		// The schema needs no config, so skip the root pre-run.
		PersistentPreRunE: func(c *cobra.Command, args []string) error { return nil },
		RunE: func(c *cobra.Command, args []string) error {
			w := c.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(protocol.Schema())
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the schema to a file instead of stdout")
	return cmd
}
