package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickConnection
	DropFrame
)

// BackpressurePolicy decides what happens to a connection whose send queue is full.
type BackpressurePolicy interface {
	OnBackPressure(mapID domain.MapID, cid core.ConnectionID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.MapID, core.ConnectionID) BackpressureAction {
	return KickConnection
}

// AccessPolicy decides who may stand on which map.
type AccessPolicy struct {
	Maps  core.MapStore
	Users core.UserStore
	// SpawnPosition is where relocated players are put on the default map.
	SpawnPosition domain.GridPosition
}

// CanAccessMap is true for published maps and, for unpublished ones,
// only for developers. A missing map is never accessible.
func (p *AccessPolicy) CanAccessMap(ctx context.Context, uid domain.UserID, mapID domain.MapID) (bool, error) {
	m, err := p.Maps.FindMap(ctx, mapID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find map %s: %w", mapID, err)
	}
	if m.IsPublished {
		return true, nil
	}
	u, err := p.Users.FindUser(ctx, uid)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find user %s: %w", uid, err)
	}
	return u.IsDeveloper, nil
}

// DefaultSpawn returns the default map and the configured spawn tile.
func (p *AccessPolicy) DefaultSpawn(ctx context.Context) (domain.Spawn, error) {
	m, err := p.Maps.FindDefaultSpawn(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		log.Error().Str("module", "app.policy").Msg("no default spawn map")
		return domain.Spawn{}, domain.ErrServerMisconfigured
	}
	if err != nil {
		return domain.Spawn{}, fmt.Errorf("find default spawn: %w", err)
	}
	return domain.Spawn{MapID: m.ID, Position: p.SpawnPosition}, nil
}
