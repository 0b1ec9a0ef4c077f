// Package world manages the tile maps players walk on.
package world

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
)

type CreateMapInput struct {
	Name           string          `json:"name" binding:"required"`
	Width          int             `json:"width" binding:"required"`
	Height         int             `json:"height" binding:"required"`
	Tiles          [][]domain.Tile `json:"tiles" binding:"required"`
	IsPublished    bool            `json:"isPublished"`
	IsDefaultSpawn bool            `json:"isDefaultSpawn"`
}

// UpdateMapInput carries only the fields the caller wants changed.
type UpdateMapInput struct {
	Name           *string         `json:"name"`
	Width          *int            `json:"width"`
	Height         *int            `json:"height"`
	Tiles          [][]domain.Tile `json:"tiles"`
	IsPublished    *bool           `json:"isPublished"`
	IsDefaultSpawn *bool           `json:"isDefaultSpawn"`
}

// DeleteResult reports what a map deletion did to the rest of the world.
type DeleteResult struct {
	Relocated  int64        `json:"relocated"`
	NewDefault domain.MapID `json:"newDefault,omitempty"`
}

var (
	ErrLastMap              = errors.New("cannot delete the only default spawn map")
	ErrDefaultSpawnRequired = errors.New("set another map as default spawn instead")
)

type Service struct {
	Maps     core.MapStore
	Presence core.PresenceStore
	// SpawnPosition is where players stand after their map is deleted.
	SpawnPosition domain.GridPosition
	node          *snowflake.Node
}

// NewService creates map ids on the given snowflake node.
func NewService(maps core.MapStore, presence core.PresenceStore, spawn domain.GridPosition, nodeID int64) (*Service, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &Service{Maps: maps, Presence: presence, SpawnPosition: spawn, node: node}, nil
}

// List shows developers every map and everyone else published maps only.
func (s *Service) List(ctx context.Context, viewer *domain.User) ([]domain.Map, error) {
	return s.Maps.ListMaps(ctx, !isDeveloper(viewer))
}

// Get hides unpublished maps from anonymous callers and non-developers.
func (s *Service) Get(ctx context.Context, id domain.MapID, viewer *domain.User) (*domain.Map, error) {
	m, err := s.Maps.FindMap(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsPublished {
		return m, nil
	}
	switch {
	case viewer == nil:
		return nil, domain.ErrUnauthenticated
	case !viewer.IsDeveloper:
		return nil, domain.ErrAccessDenied
	}
	return m, nil
}

func (s *Service) Default(ctx context.Context) (*domain.Map, error) {
	return s.Maps.FindDefaultSpawn(ctx)
}

// Create stores a new map authored by creator under a unique slug.
func (s *Service) Create(ctx context.Context, creator domain.UserID, in CreateMapInput) (*domain.Map, error) {
	m := &domain.Map{
		ID:             domain.MapID(s.node.Generate().String()),
		Name:           in.Name,
		Width:          in.Width,
		Height:         in.Height,
		Tiles:          in.Tiles,
		IsPublished:    in.IsPublished,
		IsDefaultSpawn: in.IsDefaultSpawn,
		CreatedBy:      creator,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	slug, err := s.uniqueSlug(ctx, domain.Slugify(in.Name), "")
	if err != nil {
		return nil, err
	}
	m.Slug = slug
	if err := s.Maps.CreateMap(ctx, m); err != nil {
		return nil, fmt.Errorf("create map: %w", err)
	}
	log.Info().Str("module", "world").Str("map", string(m.ID)).Str("slug", m.Slug).
		Str("by", string(creator)).Msg("map created")
	return m, nil
}

// uniqueSlug ignores the slug of self so a rename can keep its own.
func (s *Service) uniqueSlug(ctx context.Context, base string, self domain.MapID) (string, error) {
	all, err := s.Maps.ListMaps(ctx, false)
	if err != nil {
		return "", err
	}
	taken := make(map[string]struct{}, len(all))
	for _, m := range all {
		if m.ID != self {
			taken[m.Slug] = struct{}{}
		}
	}
	slug := base
	for n := 1; ; n++ {
		if _, ok := taken[slug]; !ok {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(n)
	}
}

// Update applies the set fields of in. A rename regenerates the slug.
// The default spawn flag can be moved to a map but not cleared from one.
func (s *Service) Update(ctx context.Context, id domain.MapID, in UpdateMapInput) (*domain.Map, error) {
	m, err := s.Maps.FindMap(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil && *in.Name != m.Name {
		m.Name = *in.Name
		slug, err := s.uniqueSlug(ctx, domain.Slugify(m.Name), id)
		if err != nil {
			return nil, err
		}
		m.Slug = slug
	}
	if in.Width != nil {
		m.Width = *in.Width
	}
	if in.Height != nil {
		m.Height = *in.Height
	}
	if in.Tiles != nil {
		m.Tiles = in.Tiles
	}
	if in.IsPublished != nil {
		m.IsPublished = *in.IsPublished
	}
	if in.IsDefaultSpawn != nil {
		if m.IsDefaultSpawn && !*in.IsDefaultSpawn {
			return nil, ErrDefaultSpawnRequired
		}
		m.IsDefaultSpawn = *in.IsDefaultSpawn
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m, err = s.Maps.UpdateMap(ctx, m)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "world").Str("map", string(id)).Str("slug", m.Slug).Msg("map updated")
	return m, nil
}

// Delete removes a map. Deleting the default spawn hands the flag to another
// map first, and every player on the deleted map is moved to the default spawn.
func (s *Service) Delete(ctx context.Context, id domain.MapID) (*DeleteResult, error) {
	m, err := s.Maps.FindMap(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &DeleteResult{}
	if m.IsDefaultSpawn {
		next, err := s.successor(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, err := s.Maps.SetDefaultSpawn(ctx, next); err != nil {
			return nil, err
		}
		res.NewDefault = next
	}

	def, err := s.Maps.FindDefaultSpawn(ctx)
	switch {
	case err == nil:
		res.Relocated, err = s.Presence.RelocateAll(ctx, id, domain.Spawn{MapID: def.ID, Position: s.SpawnPosition})
		if err != nil {
			return nil, err
		}
	case errors.Is(err, domain.ErrNotFound):
		log.Warn().Str("module", "world").Str("map", string(id)).Msg("no default spawn, players left on deleted map")
	default:
		return nil, err
	}

	if err := s.Maps.DeleteMap(ctx, id); err != nil {
		return nil, err
	}
	log.Info().Str("module", "world").Str("map", string(id)).Int64("relocated", res.Relocated).
		Str("new_default", string(res.NewDefault)).Msg("map deleted")
	return res, nil
}

// successor picks the next default spawn, preferring published maps.
func (s *Service) successor(ctx context.Context, id domain.MapID) (domain.MapID, error) {
	all, err := s.Maps.ListMaps(ctx, false)
	if err != nil {
		return "", err
	}
	var fallback domain.MapID
	for _, m := range all {
		if m.ID == id {
			continue
		}
		if m.IsPublished {
			return m.ID, nil
		}
		if fallback == "" {
			fallback = m.ID
		}
	}
	if fallback == "" {
		return "", ErrLastMap
	}
	return fallback, nil
}

// TogglePublish flips the published flag.
func (s *Service) TogglePublish(ctx context.Context, id domain.MapID) (*domain.Map, error) {
	m, err := s.Maps.FindMap(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err = s.Maps.SetPublished(ctx, id, !m.IsPublished)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "world").Str("map", string(id)).Bool("published", m.IsPublished).Msg("publish toggled")
	return m, nil
}

// SetDefault makes id the only default spawn map.
func (s *Service) SetDefault(ctx context.Context, id domain.MapID) (*domain.Map, error) {
	m, err := s.Maps.SetDefaultSpawn(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "world").Str("map", string(id)).Msg("default spawn changed")
	return m, nil
}

// EnsureStarterMap seeds a published default spawn map when none exists.
func (s *Service) EnsureStarterMap(ctx context.Context) (*domain.Map, error) {
	m, err := s.Maps.FindDefaultSpawn(ctx)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	const side = 30
	return s.Create(ctx, "", CreateMapInput{
		Name:           "Starter Meadow",
		Width:          side,
		Height:         side,
		Tiles:          domain.FilledTiles(side, side, domain.TerrainGrass, true),
		IsPublished:    true,
		IsDefaultSpawn: true,
	})
}

func isDeveloper(u *domain.User) bool { return u != nil && u.IsDeveloper }
