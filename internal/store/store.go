// Package store picks the persistence backend named by the config.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/config"
	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/store/memory"
	"github.com/dkeye/tileworld/internal/store/mysql"
	"github.com/dkeye/tileworld/internal/store/postgres"
)

// SchemaManager is implemented by backends that own a database schema.
type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
}

func Open(cfg config.StoreConfig) (core.Store, error) {
	var (
		s   core.Store
		err error
	)
	switch cfg.Driver {
	case "memory", "":
		s = memory.New()
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("missing connection info")
		}
		s, err = postgres.Open(postgres.Config{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
			Timeout:  cfg.Timeout,
		})
	case "mysql":
		s, err = mysql.Open(mysql.Config{
			User:     cfg.Mysql.User,
			Password: cfg.Mysql.Password,
			Host:     cfg.Mysql.Host,
			Database: cfg.Mysql.Database,
			Debug:    cfg.Debug,
		})
	default:
		return nil, fmt.Errorf("unknown db driver %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "store").Str("driver", cfg.Driver).Msg("store opened")
	return s, nil
}

// Migrate creates the schema when the backend has one.
func Migrate(ctx context.Context, s core.Store) error {
	sm, ok := s.(SchemaManager)
	if !ok {
		return nil
	}
	if err := sm.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	log.Info().Str("module", "store").Msg("schema ready")
	return nil
}
