package main

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/tileworld/internal/config"
	"github.com/dkeye/tileworld/internal/store/memory"
)

func TestWireSeedsStarterMap(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: "wire-secret", Issuer: "tileworld", TokenTTL: time.Hour},
		Game: config.GameConfig{ThrottleInterval: 100 * time.Millisecond, SpawnRow: 10, SpawnCol: 15},
		IDs:  config.IDConfig{Node: 1},
	}

	deps, err := wire(ctx, cfg, st)
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	if deps.Orch == nil || deps.Accounts == nil || deps.Maps == nil {
		t.Fatalf("expected every dependency to be built, got %+v", deps)
	}

	def, err := st.FindDefaultSpawn(ctx)
	if err != nil {
		t.Fatalf("expected starter map, got %v", err)
	}
	if !def.IsPublished {
		t.Fatalf("expected starter map to be published")
	}

	sess, err := deps.Accounts.Register(ctx, "alice", "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.Player.CurrentMap != def.ID {
		t.Fatalf("expected spawn on %s, got %s", def.ID, sess.Player.CurrentMap)
	}
}

func TestWireRejectsEmptySecret(t *testing.T) {
	cfg := &config.Config{IDs: config.IDConfig{Node: 1}}
	if _, err := wire(context.Background(), cfg, memory.New()); err == nil {
		t.Fatalf("expected error for empty jwt secret")
	}
}
