package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
	"github.com/dkeye/tileworld/internal/protocol"
)

// HandleMove records a move and relays it to the claimed map.
// Throttled moves return ErrThrottled and are dropped without a reply.
func (o *Orchestrator) HandleMove(ctx context.Context, cid core.ConnectionID, mv protocol.Move) error {
	id, ok := o.joined(cid)
	if !ok {
		return nil
	}
	uid := id.UserID
	if !o.Limiter.Allow(uid) {
		o.Metrics.IncMovesThrottled()
		log.Debug().Str("module", "orch").Str("user", string(uid)).Msg("move throttled")
		return domain.ErrThrottled
	}

	sctx, done := o.storeCtx(ctx)
	defer done()

	if o.ValidateMoves {
		if reason, err := o.checkMove(sctx, uid, mv); err != nil {
			o.Metrics.IncMovesDropped()
			log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("move validation failed")
			return storeFailure(err)
		} else if reason != "" {
			o.Metrics.IncMovesRejected()
			o.sendError(cid, protocol.CodeMoveRejected, reason, false)
			return fmt.Errorf("%w: %s", domain.ErrMoveRejected, reason)
		}
	}

	p, err := o.Store.UpdatePosition(sctx, uid, mv.ClaimedMapID, mv.Position, mv.Direction)
	if err != nil {
		o.Metrics.IncMovesDropped()
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("move dropped")
		return storeFailure(err)
	}

	moved := protocol.PlayerMoved{
		UserID:      uid,
		DisplayName: id.DisplayName,
		Position:    p.Position,
		Direction:   p.Direction,
	}
	if _, err := o.Broadcaster.BroadcastToRoom(sctx, mv.ClaimedMapID, cid, protocol.TypePlayerMoved, moved); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("map", string(mv.ClaimedMapID)).Msg("player-moved broadcast failed")
	}
	o.Metrics.IncMovesAccepted()
	return nil
}

// checkMove returns a non-empty reason when the move is not allowed.
func (o *Orchestrator) checkMove(ctx context.Context, uid domain.UserID, mv protocol.Move) (string, error) {
	p, err := o.Store.FindPresence(ctx, uid)
	if err != nil {
		return "", err
	}
	if p.MapID != mv.ClaimedMapID {
		return fmt.Sprintf("you are on map %s, not %s", p.MapID, mv.ClaimedMapID), nil
	}
	allowed, err := o.Access.CanAccessMap(ctx, uid, mv.ClaimedMapID)
	if err != nil {
		return "", err
	}
	if !allowed {
		return fmt.Sprintf("access to map %s denied", mv.ClaimedMapID), nil
	}
	m, err := o.Store.FindMap(ctx, mv.ClaimedMapID)
	if err != nil {
		return "", err
	}
	if !m.InBounds(mv.Position) {
		return fmt.Sprintf("position %d,%d is outside the map", mv.Position.Row, mv.Position.Col), nil
	}
	if !m.Walkable(mv.Position) {
		return fmt.Sprintf("tile %d,%d is not walkable", mv.Position.Row, mv.Position.Col), nil
	}
	return "", nil
}
