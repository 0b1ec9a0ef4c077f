// Package protocol defines the JSON messages exchanged over the signal socket.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
)

type Type string

// server -> client
const (
	TypeSelfState    Type = "self-state"
	TypeOccupantList Type = "occupant-list"
	TypePlayerJoined Type = "player-joined"
	TypePlayerMoved  Type = "player-moved"
	TypePlayerLeft   Type = "player-left"
	TypeMapReset     Type = "map-reset"
	TypeError        Type = "error"
	TypePong         Type = "pong"
)

// client -> server
const (
	TypeMove      Type = "move"
	TypeChangeMap Type = "change-map"
	TypePing      Type = "ping"
)

// Error codes carried in ErrorPayload.Code.
const (
	CodeUnauthenticated     = "unauthenticated"
	CodePresenceNotFound    = "presence_not_found"
	CodeServerMisconfigured = "server_misconfigured"
	CodeStoreUnavailable    = "store_unavailable"
	CodeBadPayload          = "bad_payload"
	CodeNotJoined           = "not_joined"
	CodeMoveRejected        = "move_rejected"
	CodeUnknownType         = "unknown_type"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Type    Type            `json:"type" jsonschema:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SelfState struct {
	MapID     domain.MapID        `json:"mapId"`
	Position  domain.GridPosition `json:"position"`
	Direction domain.Direction    `json:"direction"`
}

type OccupantList []domain.PublicPresence

type PlayerJoined = domain.PublicPresence

type PlayerMoved struct {
	UserID      domain.UserID       `json:"userId"`
	DisplayName string              `json:"displayName"`
	Position    domain.GridPosition `json:"position"`
	Direction   domain.Direction    `json:"direction"`
}

type PlayerLeft struct {
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName"`
}

type MapReset struct {
	Reason      string              `json:"reason"`
	NewMapID    domain.MapID        `json:"newMapId"`
	NewPosition domain.GridPosition `json:"newPosition"`
}

type ErrorPayload struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type Move struct {
	Position     domain.GridPosition `json:"position" jsonschema:"required"`
	Direction    domain.Direction    `json:"direction" jsonschema:"required,enum=up,enum=down,enum=left,enum=right,enum=idle"`
	ClaimedMapID domain.MapID        `json:"claimedMapId" jsonschema:"required"`
}

func (m Move) Validate() error {
	if !m.Position.Valid() {
		return fmt.Errorf("negative position %+v", m.Position)
	}
	if !m.Direction.Valid() {
		return fmt.Errorf("unknown direction %q", m.Direction)
	}
	if m.ClaimedMapID == "" {
		return fmt.Errorf("claimedMapId is required")
	}
	return nil
}

type ChangeMap struct {
	TargetMapID    domain.MapID        `json:"targetMapId" jsonschema:"required"`
	TargetPosition domain.GridPosition `json:"targetPosition" jsonschema:"required"`
}

func (c ChangeMap) Validate() error {
	if c.TargetMapID == "" {
		return fmt.Errorf("targetMapId is required")
	}
	if !c.TargetPosition.Valid() {
		return fmt.Errorf("negative position %+v", c.TargetPosition)
	}
	return nil
}

// Encode wraps payload into an envelope frame.
func Encode(t Type, payload any) (core.Frame, error) {
	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", t, err)
	}
	return core.Frame(b), nil
}

// Decode splits a frame into its type and raw payload.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("missing message type")
	}
	return env, nil
}

// DecodePayload unmarshals the payload of env into v.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", env.Type, err)
	}
	return nil
}
