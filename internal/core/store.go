package core

import (
	"context"

	"github.com/dkeye/tileworld/internal/domain"
)

// PresenceStore is the persisted per-user presence collection.
// Every method is a single-record atomic operation except ResetOnline.
type PresenceStore interface {
	FindPresence(ctx context.Context, userID domain.UserID) (*domain.Presence, error)
	ListOnline(ctx context.Context, mapID domain.MapID) ([]domain.Presence, error)
	CreatePresence(ctx context.Context, p *domain.Presence) error
	SetOnline(ctx context.Context, userID domain.UserID, connID ConnectionID) (*domain.Presence, error)
	// SetOffline clears the record only while it is still bound to connID.
	SetOffline(ctx context.Context, userID domain.UserID, connID ConnectionID) (*domain.Presence, bool, error)
	UpdatePosition(ctx context.Context, userID domain.UserID, mapID domain.MapID, pos domain.GridPosition, dir domain.Direction) (*domain.Presence, error)
	ResetOnline(ctx context.Context) (int64, error)
	// RelocateAll moves every record on from to the spawn, online or not.
	RelocateAll(ctx context.Context, from domain.MapID, to domain.Spawn) (int64, error)
}

type MapStore interface {
	FindMap(ctx context.Context, id domain.MapID) (*domain.Map, error)
	FindDefaultSpawn(ctx context.Context) (*domain.Map, error)
	ListMaps(ctx context.Context, publishedOnly bool) ([]domain.Map, error)
	CreateMap(ctx context.Context, m *domain.Map) error
	SetPublished(ctx context.Context, id domain.MapID, published bool) (*domain.Map, error)
	// SetDefaultSpawn flags id and clears the flag on every other map.
	SetDefaultSpawn(ctx context.Context, id domain.MapID) (*domain.Map, error)
	// UpdateMap replaces the editable fields of an existing map. Setting the
	// default flag clears it everywhere else.
	UpdateMap(ctx context.Context, m *domain.Map) (*domain.Map, error)
	DeleteMap(ctx context.Context, id domain.MapID) error
}

type UserStore interface {
	FindUser(ctx context.Context, id domain.UserID) (*domain.User, error)
	// FindUserByLogin matches either username or email.
	FindUserByLogin(ctx context.Context, login string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
	TouchLogin(ctx context.Context, id domain.UserID) error
}

// Store is the full persistence collaborator.
type Store interface {
	PresenceStore
	MapStore
	UserStore
	Close() error
}
