package world

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
	"github.com/dkeye/tileworld/internal/store/memory"
)

func ptr[T any](v T) *T { return &v }

func place(t *testing.T, store *memory.Store, uid domain.UserID, mapID domain.MapID, online bool) {
	t.Helper()
	ctx := context.Background()
	u := &domain.User{ID: uid, Username: string(uid), Email: string(uid) + "@example.com"}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	p := domain.NewPresence(u, domain.Spawn{MapID: mapID, Position: domain.GridPosition{Row: 4, Col: 4}})
	if err := store.CreatePresence(ctx, p); err != nil {
		t.Fatalf("create presence: %v", err)
	}
	if online {
		if _, err := store.SetOnline(ctx, uid, core.ConnectionID("conn-"+string(uid))); err != nil {
			t.Fatalf("set online: %v", err)
		}
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	home, err := svc.Create(ctx, "dev", CreateMapInput{
		Name: "Home", Width: 6, Height: 5, Tiles: domain.FilledTiles(6, 5, domain.TerrainGrass, true),
		IsPublished: true, IsDefaultSpawn: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other, err := svc.Create(ctx, "dev", input("Cave", false))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, "dev", input("Lake", false)); err != nil {
		t.Fatalf("create: %v", err)
	}

	renamed, err := svc.Update(ctx, other.ID, UpdateMapInput{Name: ptr("Lake"), IsPublished: ptr(true)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if renamed.Slug != "lake-1" || !renamed.IsPublished {
		t.Fatalf("expected lake-1 published, got %q %v", renamed.Slug, renamed.IsPublished)
	}

	if _, err := svc.Update(ctx, other.ID, UpdateMapInput{Width: ptr(3)}); !errors.Is(err, domain.ErrMapSizeInvalid) {
		t.Fatalf("expected ErrMapSizeInvalid, got %v", err)
	}
	if _, err := svc.Update(ctx, home.ID, UpdateMapInput{IsDefaultSpawn: ptr(false)}); !errors.Is(err, ErrDefaultSpawnRequired) {
		t.Fatalf("expected ErrDefaultSpawnRequired, got %v", err)
	}
	if _, err := svc.Update(ctx, "missing", UpdateMapInput{Name: ptr("Gone")}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := svc.Update(ctx, other.ID, UpdateMapInput{IsDefaultSpawn: ptr(true)}); err != nil {
		t.Fatalf("move default: %v", err)
	}
	def, err := svc.Default(ctx)
	if err != nil || def.ID != other.ID {
		t.Fatalf("expected %s as default, got %v %v", other.ID, def, err)
	}
	old, _ := svc.Maps.FindMap(ctx, home.ID)
	if old.IsDefaultSpawn {
		t.Fatalf("expected old default to lose its flag")
	}
}

func TestDeleteRelocatesPlayers(t *testing.T) {
	ctx := context.Background()
	svc, store := newServiceWithStore(t)
	def, err := svc.EnsureStarterMap(ctx)
	if err != nil {
		t.Fatalf("starter: %v", err)
	}
	cave, err := svc.Create(ctx, "dev", input("Cave", true))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	place(t, store, "alice", cave.ID, true)
	place(t, store, "bob", cave.ID, false)
	place(t, store, "carol", def.ID, false)

	res, err := svc.Delete(ctx, cave.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.Relocated != 2 || res.NewDefault != "" {
		t.Fatalf("expected 2 relocated and no new default, got %+v", res)
	}
	for _, uid := range []domain.UserID{"alice", "bob"} {
		p, _ := store.FindPresence(ctx, uid)
		if p.MapID != def.ID || p.Position != spawn || p.Direction != domain.DirIdle {
			t.Fatalf("expected %s at default spawn, got %+v", uid, p)
		}
	}
	if p, _ := store.FindPresence(ctx, "alice"); !p.Online {
		t.Fatalf("expected relocation to keep online flag")
	}
	if p, _ := store.FindPresence(ctx, "carol"); p.Position != (domain.GridPosition{Row: 4, Col: 4}) {
		t.Fatalf("expected carol untouched, got %+v", p)
	}
	if _, err := store.FindMap(ctx, cave.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected map gone, got %v", err)
	}
}

func TestDeleteDefaultHandsOffFlag(t *testing.T) {
	ctx := context.Background()
	svc, store := newServiceWithStore(t)
	def, err := svc.EnsureStarterMap(ctx)
	if err != nil {
		t.Fatalf("starter: %v", err)
	}
	draft, err := svc.Create(ctx, "dev", input("Draft", false))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	town, err := svc.Create(ctx, "dev", input("Town", true))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	place(t, store, "alice", def.ID, false)

	res, err := svc.Delete(ctx, def.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.NewDefault != town.ID {
		t.Fatalf("expected published %s to become default, got %q (draft %s)", town.ID, res.NewDefault, draft.ID)
	}
	now, err := store.FindDefaultSpawn(ctx)
	if err != nil || now.ID != town.ID {
		t.Fatalf("expected %s as default, got %v %v", town.ID, now, err)
	}
	if p, _ := store.FindPresence(ctx, "alice"); p.MapID != town.ID {
		t.Fatalf("expected alice moved to the new default, got %s", p.MapID)
	}
}

func TestDeleteRefusesOnlyMap(t *testing.T) {
	ctx := context.Background()
	svc, store := newServiceWithStore(t)
	def, err := svc.EnsureStarterMap(ctx)
	if err != nil {
		t.Fatalf("starter: %v", err)
	}
	if _, err := svc.Delete(ctx, def.ID); !errors.Is(err, ErrLastMap) {
		t.Fatalf("expected ErrLastMap, got %v", err)
	}
	if _, err := store.FindDefaultSpawn(ctx); err != nil {
		t.Fatalf("expected default map kept, got %v", err)
	}
	if _, err := svc.Delete(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
