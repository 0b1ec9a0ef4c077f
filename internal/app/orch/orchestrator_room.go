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

// Join puts an authenticated connection on the map its presence record names.
// A player whose map became inaccessible is moved to the default spawn
// without a client-visible notice.
//
// Returned errors are lifecycle decisions for the transport:
// ErrPresenceNotFound and ErrStoreUnavailable end the connection,
// ErrServerMisconfigured leaves it open in the failed state.
func (o *Orchestrator) Join(ctx context.Context, cid core.ConnectionID) error {
	id, ok := o.Registry.Resolve(cid)
	if !ok {
		return fmt.Errorf("%w: connection %s is not bound", domain.ErrUnauthenticated, cid)
	}
	uid := id.UserID
	sctx, done := o.storeCtx(ctx)
	defer done()

	p, err := o.Store.FindPresence(sctx, uid)
	if errors.Is(err, domain.ErrNotFound) {
		log.Error().Str("module", "orch").Str("user", string(uid)).Msg("no presence record for user")
		o.sendError(cid, protocol.CodePresenceNotFound, "player state not found", false)
		o.Registry.SetState(cid, core.StateFailed)
		return domain.ErrPresenceNotFound
	}
	if err != nil {
		return o.joinUnavailable(cid, err)
	}

	mapID := p.MapID
	allowed, err := o.Access.CanAccessMap(sctx, uid, mapID)
	if err != nil {
		return o.joinUnavailable(cid, err)
	}
	if !allowed {
		spawn, err := o.Access.DefaultSpawn(sctx)
		if err != nil {
			return o.spawnFailure(cid, err)
		}
		log.Info().Str("module", "orch").Str("user", string(uid)).Str("from", string(p.MapID)).
			Str("to", string(spawn.MapID)).Msg("relocating player off inaccessible map")
		if _, err := o.Store.UpdatePosition(sctx, uid, spawn.MapID, spawn.Position, domain.DirIdle); err != nil {
			return o.joinUnavailable(cid, err)
		}
		mapID = spawn.MapID
	}

	// Listed before going online so a failure leaves the record offline.
	occupants, err := o.Broadcaster.ListOccupants(sctx, mapID, uid)
	if err != nil {
		return o.joinUnavailable(cid, err)
	}
	p, err = o.Store.SetOnline(sctx, uid, cid)
	if err != nil {
		return o.joinUnavailable(cid, err)
	}

	self := protocol.SelfState{MapID: p.MapID, Position: p.Position, Direction: p.Direction}
	if err := o.Broadcaster.SendTo(cid, protocol.TypeSelfState, self); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(cid)).Msg("send self-state")
	}
	if err := o.Broadcaster.SendTo(cid, protocol.TypeOccupantList, protocol.OccupantList(occupants)); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(cid)).Msg("send occupant-list")
	}
	if _, err := o.Broadcaster.BroadcastToRoom(sctx, p.MapID, cid, protocol.TypePlayerJoined, p.Public()); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("map", string(p.MapID)).Msg("player-joined broadcast failed")
	}

	o.Registry.SetState(cid, core.StateJoined)
	o.Metrics.IncJoins()
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("user", string(uid)).
		Str("map", string(p.MapID)).Int("occupants", len(occupants)).Msg("player joined")
	return nil
}

func (o *Orchestrator) joinUnavailable(cid core.ConnectionID, err error) error {
	log.Warn().Err(err).Str("module", "orch").Str("conn", string(cid)).Msg("join failed")
	o.sendError(cid, protocol.CodeStoreUnavailable, "temporarily unavailable, reconnect", true)
	o.Registry.SetState(cid, core.StateFailed)
	return storeFailure(err)
}

func (o *Orchestrator) spawnFailure(cid core.ConnectionID, err error) error {
	if errors.Is(err, domain.ErrServerMisconfigured) {
		o.sendError(cid, protocol.CodeServerMisconfigured, "server has no default spawn map", false)
		o.Registry.SetState(cid, core.StateFailed)
		return err
	}
	return o.joinUnavailable(cid, err)
}

// HandleMapChange moves a joined player to another map. A target the player
// may not enter is replaced by the default spawn and the client gets a map-reset.
func (o *Orchestrator) HandleMapChange(ctx context.Context, cid core.ConnectionID, req protocol.ChangeMap) error {
	id, ok := o.joined(cid)
	if !ok {
		return nil
	}
	uid := id.UserID
	sctx, done := o.storeCtx(ctx)
	defer done()

	current, err := o.Store.FindPresence(sctx, uid)
	if err != nil {
		return o.mapChangeUnavailable(cid, err)
	}
	oldMap := current.MapID

	target := domain.Spawn{MapID: req.TargetMapID, Position: req.TargetPosition}
	allowed, err := o.Access.CanAccessMap(sctx, uid, target.MapID)
	if err != nil {
		return o.mapChangeUnavailable(cid, err)
	}
	if !allowed {
		spawn, err := o.Access.DefaultSpawn(sctx)
		if errors.Is(err, domain.ErrServerMisconfigured) {
			o.sendError(cid, protocol.CodeServerMisconfigured, "server has no default spawn map", false)
			return err
		}
		if err != nil {
			return o.mapChangeUnavailable(cid, err)
		}
		log.Info().Str("module", "orch").Str("user", string(uid)).Str("denied", string(target.MapID)).
			Str("to", string(spawn.MapID)).Msg("map change denied, resetting to default spawn")
		reset := protocol.MapReset{
			Reason:      fmt.Sprintf("access to map %s denied", target.MapID),
			NewMapID:    spawn.MapID,
			NewPosition: spawn.Position,
		}
		if err := o.Broadcaster.SendTo(cid, protocol.TypeMapReset, reset); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("conn", string(cid)).Msg("send map-reset")
		}
		o.Metrics.IncMapResets()
		target = spawn
	}

	p, err := o.Store.UpdatePosition(sctx, uid, target.MapID, target.Position, domain.DirIdle)
	if err != nil {
		return o.mapChangeUnavailable(cid, err)
	}

	left := protocol.PlayerLeft{UserID: uid, DisplayName: id.DisplayName}
	if _, err := o.Broadcaster.BroadcastToRoom(sctx, oldMap, cid, protocol.TypePlayerLeft, left); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("map", string(oldMap)).Msg("player-left broadcast failed")
	}
	occupants, err := o.Broadcaster.ListOccupants(sctx, p.MapID, uid)
	if err != nil {
		return o.mapChangeUnavailable(cid, err)
	}
	if err := o.Broadcaster.SendTo(cid, protocol.TypeOccupantList, protocol.OccupantList(occupants)); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(cid)).Msg("send occupant-list")
	}
	if _, err := o.Broadcaster.BroadcastToRoom(sctx, p.MapID, cid, protocol.TypePlayerJoined, p.Public()); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("map", string(p.MapID)).Msg("player-joined broadcast failed")
	}

	o.Metrics.IncMapChanges()
	log.Info().Str("module", "orch").Str("user", string(uid)).Str("from", string(oldMap)).
		Str("to", string(p.MapID)).Int("row", p.Position.Row).Int("col", p.Position.Col).Msg("map changed")
	return nil
}

func (o *Orchestrator) mapChangeUnavailable(cid core.ConnectionID, err error) error {
	log.Warn().Err(err).Str("module", "orch").Str("conn", string(cid)).Msg("map change failed")
	o.sendError(cid, protocol.CodeStoreUnavailable, "map change failed, try again", true)
	return storeFailure(err)
}
