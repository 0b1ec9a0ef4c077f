package main

import (
	"context"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/tileworld/internal/config"
	"github.com/dkeye/tileworld/internal/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var (
		configFile string
		cfg        *config.Config
		logSink    io.Closer
	)

	rootCmd := &cobra.Command{
		Use:           "tileworld",
		Short:         "Multiplayer tile-map presence server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configFile)
			if err != nil {
				return err
			}
			logSink = logging.Setup(cfg.Log)
			return nil
		},
		PersistentPostRun: func(c *cobra.Command, args []string) {
			if logSink != nil {
				_ = logSink.Close()
			}
		},
		RunE: func(c *cobra.Command, args []string) error {
			return runServe(c.Context(), cfg)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration (default config/config.$CONFIG_ENV.yaml)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and websocket server",
			RunE: func(c *cobra.Command, args []string) error {
				return runServe(c.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the store schema and seed the starter map",
			RunE: func(c *cobra.Command, args []string) error {
				return runMigrate(c.Context(), cfg)
			},
		},
		newTokenCmd(&cfg),
		newSchemaCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("tileworld failed")
		os.Exit(1)
	}
}
