package world

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/tileworld/internal/domain"
	"github.com/dkeye/tileworld/internal/store/memory"
)

var spawn = domain.GridPosition{Row: 2, Col: 3}

func newService(t *testing.T) *Service {
	t.Helper()
	svc, _ := newServiceWithStore(t)
	return svc
}

func newServiceWithStore(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc, err := NewService(store, store, spawn, 1)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store
}

func input(name string, published bool) CreateMapInput {
	return CreateMapInput{
		Name:        name,
		Width:       6,
		Height:      5,
		Tiles:       domain.FilledTiles(6, 5, domain.TerrainGrass, true),
		IsPublished: published,
	}
}

func TestCreateAssignsIDAndUniqueSlug(t *testing.T) {
	svc := newService(t)
	a, err := svc.Create(context.Background(), "dev", input("Forest Path", true))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := svc.Create(context.Background(), "dev", input("Forest  Path!", true))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if a.Slug != "forest-path" || b.Slug != "forest-path-1" {
		t.Fatalf("expected forest-path and forest-path-1, got %q and %q", a.Slug, b.Slug)
	}
}

func TestCreateValidatesShape(t *testing.T) {
	svc := newService(t)
	bad := input("Tiny", true)
	bad.Width = 3
	if _, err := svc.Create(context.Background(), "dev", bad); !errors.Is(err, domain.ErrMapSizeInvalid) {
		t.Fatalf("expected ErrMapSizeInvalid, got %v", err)
	}
	bad = input("Ragged", true)
	bad.Tiles = bad.Tiles[:4]
	if _, err := svc.Create(context.Background(), "dev", bad); !errors.Is(err, domain.ErrMapTilesInvalid) {
		t.Fatalf("expected ErrMapTilesInvalid, got %v", err)
	}
}

func TestVisibilityOfUnpublishedMaps(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	pub, _ := svc.Create(ctx, "dev", input("Public", true))
	draft, _ := svc.Create(ctx, "dev", input("Draft", false))
	player := &domain.User{ID: "alice"}
	dev := &domain.User{ID: "dev", IsDeveloper: true}

	if got, _ := svc.List(ctx, player); len(got) != 1 || got[0].ID != pub.ID {
		t.Fatalf("expected only the public map, got %+v", got)
	}
	if got, _ := svc.List(ctx, dev); len(got) != 2 {
		t.Fatalf("expected developer to see 2 maps, got %d", len(got))
	}
	if _, err := svc.Get(ctx, draft.ID, nil); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := svc.Get(ctx, draft.ID, player); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if _, err := svc.Get(ctx, draft.ID, dev); err != nil {
		t.Fatalf("expected developer access, got %v", err)
	}
	if _, err := svc.Get(ctx, "missing", dev); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTogglePublishAndSetDefault(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	starter, err := svc.EnsureStarterMap(ctx)
	if err != nil {
		t.Fatalf("starter map: %v", err)
	}
	if again, _ := svc.EnsureStarterMap(ctx); again.ID != starter.ID {
		t.Fatalf("expected seeding to be idempotent")
	}

	other, _ := svc.Create(ctx, "dev", input("Other", false))
	toggled, err := svc.TogglePublish(ctx, other.ID)
	if err != nil || !toggled.IsPublished {
		t.Fatalf("expected published, got %+v (%v)", toggled, err)
	}
	if _, err := svc.SetDefault(ctx, other.ID); err != nil {
		t.Fatalf("set default: %v", err)
	}
	def, err := svc.Default(ctx)
	if err != nil || def.ID != other.ID {
		t.Fatalf("expected %s as default, got %+v (%v)", other.ID, def, err)
	}
}
