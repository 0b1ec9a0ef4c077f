package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/account"
	router "github.com/dkeye/tileworld/internal/adapters/http"
	"github.com/dkeye/tileworld/internal/app"
	"github.com/dkeye/tileworld/internal/app/orch"
	"github.com/dkeye/tileworld/internal/auth"
	"github.com/dkeye/tileworld/internal/config"
	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
	"github.com/dkeye/tileworld/internal/store"
	"github.com/dkeye/tileworld/internal/world"
)

// wire builds every service on top of an open store.
func wire(ctx context.Context, cfg *config.Config, st core.Store) (router.Deps, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return router.Deps{}, err
	}
	spawnPos := domain.GridPosition{Row: cfg.Game.SpawnRow, Col: cfg.Game.SpawnCol}
	maps, err := world.NewService(st, st, spawnPos, cfg.IDs.Node)
	if err != nil {
		return router.Deps{}, err
	}
	if _, err := maps.EnsureStarterMap(ctx); err != nil {
		return router.Deps{}, fmt.Errorf("seed starter map: %w", err)
	}

	reg := app.NewRegistry()
	metrics := &app.Metrics{}
	access := &app.AccessPolicy{
		Maps:          st,
		Users:         st,
		SpawnPosition: spawnPos,
	}
	o := &orch.Orchestrator{
		Registry: reg,
		Broadcaster: &app.RoomBroadcaster{
			Presence: st,
			Registry: reg,
			Policy:   app.SimplePolicy{},
			Metrics:  metrics,
		},
		Access:        access,
		Limiter:       app.NewMoveRateLimiter(cfg.Game.ThrottleInterval),
		Metrics:       metrics,
		Store:         st,
		Tokens:        tokens,
		StoreTimeout:  cfg.Store.Timeout,
		ValidateMoves: cfg.Game.ValidateMoves,
	}
	accounts := &account.Service{
		Users:    st,
		Presence: st,
		Spawns:   access,
		Hasher:   auth.BcryptHasher{},
		Tokens:   tokens,
	}
	return router.Deps{Orch: o, Accounts: accounts, Maps: maps, Tokens: tokens, Users: st}, nil
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := store.Migrate(ctx, st); err != nil {
		return err
	}
	// No connection survives a restart, so stale online flags are cleared.
	if n, err := st.ResetOnline(ctx); err != nil {
		return fmt.Errorf("reset online flags: %w", err)
	} else if n > 0 {
		log.Info().Int64("records", n).Msg("cleared stale online flags")
	}

	deps, err := wire(ctx, cfg, st)
	if err != nil {
		return err
	}

	r := router.SetupRouter(ctx, cfg, deps)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Msg("tileworld server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
