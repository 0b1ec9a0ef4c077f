package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MinMapSide = 5
	MaxMapSide = 100
)

var (
	ErrMapNameInvalid  = errors.New("map name must be 3..100 characters")
	ErrMapSizeInvalid  = fmt.Errorf("map width and height must be within %d..%d", MinMapSide, MaxMapSide)
	ErrMapTilesInvalid = errors.New("tile grid does not match width and height")
)

type MapID string

type Terrain string

const (
	TerrainNone    Terrain = "none"
	TerrainGrass   Terrain = "grass"
	TerrainWater   Terrain = "water"
	TerrainWall    Terrain = "wall"
	TerrainTree    Terrain = "tree"
	TerrainBarrier Terrain = "barrier"
	TerrainPortal  Terrain = "portal"
)

type Portal struct {
	TargetMapID    MapID        `json:"targetMapId"`
	TargetPosition GridPosition `json:"targetPosition"`
}

type Tile struct {
	Terrain  Terrain `json:"terrain"`
	Walkable bool    `json:"walkable"`
	Portal   *Portal `json:"portalData,omitempty"`
}

type Map struct {
	ID             MapID     `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Tiles          [][]Tile  `json:"tiles"`
	IsPublished    bool      `json:"isPublished"`
	IsDefaultSpawn bool      `json:"isDefaultSpawn"`
	CreatedBy      UserID    `json:"createdBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Validate checks the same shape rules the map editor enforces.
func (m *Map) Validate() error {
	if n := len(strings.TrimSpace(m.Name)); n < 3 || n > 100 {
		return ErrMapNameInvalid
	}
	if m.Width < MinMapSide || m.Width > MaxMapSide || m.Height < MinMapSide || m.Height > MaxMapSide {
		return ErrMapSizeInvalid
	}
	if len(m.Tiles) != m.Height {
		return ErrMapTilesInvalid
	}
	for _, row := range m.Tiles {
		if len(row) != m.Width {
			return ErrMapTilesInvalid
		}
	}
	return nil
}

func (m *Map) InBounds(p GridPosition) bool {
	return p.Valid() && p.Row < m.Height && p.Col < m.Width
}

func (m *Map) TileAt(p GridPosition) (Tile, bool) {
	if !m.InBounds(p) || p.Row >= len(m.Tiles) || p.Col >= len(m.Tiles[p.Row]) {
		return Tile{}, false
	}
	return m.Tiles[p.Row][p.Col], true
}

func (m *Map) Walkable(p GridPosition) bool {
	t, ok := m.TileAt(p)
	return ok && t.Walkable
}

// FilledTiles returns a height x width grid of one terrain.
func FilledTiles(width, height int, terrain Terrain, walkable bool) [][]Tile {
	tiles := make([][]Tile, height)
	for r := range tiles {
		tiles[r] = make([]Tile, width)
		for c := range tiles[r] {
			tiles[r][c] = Tile{Terrain: terrain, Walkable: walkable}
		}
	}
	return tiles
}

// Slugify lowercases name and collapses everything but [a-z0-9] into dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
