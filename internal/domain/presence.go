package domain

import (
	"fmt"
	"time"
)

type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
	DirIdle  Direction = "idle"
)

func (d Direction) Valid() bool {
	switch d {
	case DirUp, DirDown, DirLeft, DirRight, DirIdle:
		return true
	}
	return false
}

func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown direction %q", s)
	}
	return d, nil
}

// GridPosition is a tile coordinate; row grows downwards.
type GridPosition struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p GridPosition) Valid() bool { return p.Row >= 0 && p.Col >= 0 }

// Presence is the durable per-user record of where a player is.
// Online is true iff ConnectionID is set.
type Presence struct {
	UserID       UserID       `json:"userId"`
	DisplayName  string       `json:"displayName"`
	MapID        MapID        `json:"mapId"`
	Position     GridPosition `json:"position"`
	Direction    Direction    `json:"direction"`
	Online       bool         `json:"isOnline"`
	ConnectionID string       `json:"-"`
	LastUpdate   time.Time    `json:"lastUpdate"`
}

// NewPresence builds the record created at registration time.
func NewPresence(u *User, spawn Spawn) *Presence {
	return &Presence{
		UserID:      u.ID,
		DisplayName: u.Username,
		MapID:       spawn.MapID,
		Position:    spawn.Position,
		Direction:   DirIdle,
		LastUpdate:  time.Now().UTC(),
	}
}

// PublicPresence is what other players are allowed to see.
type PublicPresence struct {
	UserID      UserID       `json:"userId"`
	DisplayName string       `json:"displayName"`
	Position    GridPosition `json:"position"`
	Direction   Direction    `json:"direction"`
	MapID       MapID        `json:"mapId"`
}

func (p *Presence) Public() PublicPresence {
	return PublicPresence{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Position:    p.Position,
		Direction:   p.Direction,
		MapID:       p.MapID,
	}
}

// Spawn is a map plus a tile on it.
type Spawn struct {
	MapID    MapID        `json:"mapId"`
	Position GridPosition `json:"position"`
}
