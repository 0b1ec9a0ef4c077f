package app

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/tileworld/internal/domain"
	"github.com/dkeye/tileworld/internal/store/memory"
)

func seedPolicyStore(t *testing.T, withDefault bool) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	maps := []domain.Map{
		{ID: "D", Name: "default", IsPublished: true, IsDefaultSpawn: withDefault},
		{ID: "U", Name: "draft"},
	}
	for i := range maps {
		if err := s.CreateMap(ctx, &maps[i]); err != nil {
			t.Fatalf("create map: %v", err)
		}
	}
	for _, u := range []domain.User{
		{ID: "alice", Username: "alice", Email: "alice@example.com"},
		{ID: "dev", Username: "dev", Email: "dev@example.com", IsDeveloper: true},
	} {
		if err := s.CreateUser(ctx, &u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	return s
}

func TestCanAccessMap(t *testing.T) {
	s := seedPolicyStore(t, true)
	p := &AccessPolicy{Maps: s, Users: s}

	cases := []struct {
		user domain.UserID
		m    domain.MapID
		want bool
	}{
		{"alice", "D", true},
		{"alice", "U", false},
		{"dev", "U", true},
		{"dev", "missing", false},
		{"ghost", "U", false},
	}
	for _, tc := range cases {
		got, err := p.CanAccessMap(context.Background(), tc.user, tc.m)
		if err != nil {
			t.Fatalf("%s on %s: %v", tc.user, tc.m, err)
		}
		if got != tc.want {
			t.Fatalf("%s on %s: expected %v, got %v", tc.user, tc.m, tc.want, got)
		}
	}
}

func TestDefaultSpawn(t *testing.T) {
	pos := domain.GridPosition{Row: 10, Col: 15}

	s := seedPolicyStore(t, true)
	spawn, err := (&AccessPolicy{Maps: s, Users: s, SpawnPosition: pos}).DefaultSpawn(context.Background())
	if err != nil {
		t.Fatalf("default spawn: %v", err)
	}
	if spawn.MapID != "D" || spawn.Position != pos {
		t.Fatalf("unexpected spawn %+v", spawn)
	}

	s = seedPolicyStore(t, false)
	_, err = (&AccessPolicy{Maps: s, Users: s, SpawnPosition: pos}).DefaultSpawn(context.Background())
	if !errors.Is(err, domain.ErrServerMisconfigured) {
		t.Fatalf("expected ErrServerMisconfigured, got %v", err)
	}
}

func TestAccessPolicyFailsOnStoreOutage(t *testing.T) {
	s := seedPolicyStore(t, true)
	s.FailWith(domain.ErrStoreUnavailable)
	_, err := (&AccessPolicy{Maps: s, Users: s}).CanAccessMap(context.Background(), "alice", "D")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
