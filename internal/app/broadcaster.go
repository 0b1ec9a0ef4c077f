package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
	"github.com/dkeye/tileworld/internal/protocol"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []core.ConnectionID
}

// RoomBroadcaster fans events out to the players standing on a map.
// A room is never stored: it is the set of online presence records for the
// map whose connection is live in this process.
type RoomBroadcaster struct {
	Presence core.PresenceStore
	Registry *Registry
	Policy   BackpressurePolicy
	Metrics  *Metrics
}

// BroadcastToRoom delivers event to every live occupant of mapID except exclude.
func (b *RoomBroadcaster) BroadcastToRoom(
	ctx context.Context,
	mapID domain.MapID,
	exclude core.ConnectionID,
	event protocol.Type,
	payload any,
) (PublishResult, error) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return PublishResult{}, err
	}
	occupants, err := b.Presence.ListOnline(ctx, mapID)
	if err != nil {
		return PublishResult{}, fmt.Errorf("list room %s: %w", mapID, err)
	}

	res := PublishResult{}
	for _, p := range occupants {
		cid := core.ConnectionID(p.ConnectionID)
		if cid == "" || cid == exclude {
			continue
		}
		sig, ok := b.Registry.Signal(cid)
		if !ok {
			// online in the store but not served by this process
			continue
		}
		if err := sig.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SendTo++
	}
	b.settle(mapID, res)
	log.Debug().Str("module", "app.broadcast").Str("map", string(mapID)).Str("type", string(event)).
		Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res, nil
}

// SendTo delivers event to a single connection.
func (b *RoomBroadcaster) SendTo(cid core.ConnectionID, event protocol.Type, payload any) error {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	sig, ok := b.Registry.Signal(cid)
	if !ok {
		return fmt.Errorf("connection %s is gone", cid)
	}
	res := PublishResult{}
	if err := sig.TrySend(frame); err != nil {
		res.Dropped = append(res.Dropped, cid)
	} else {
		res.SendTo = 1
	}
	b.settle("", res)
	return err
}

// ListOccupants returns the public view of everyone online on mapID but excludeUser.
func (b *RoomBroadcaster) ListOccupants(ctx context.Context, mapID domain.MapID, excludeUser domain.UserID) ([]domain.PublicPresence, error) {
	occupants, err := b.Presence.ListOnline(ctx, mapID)
	if err != nil {
		return nil, fmt.Errorf("list room %s: %w", mapID, err)
	}
	out := make([]domain.PublicPresence, 0, len(occupants))
	for i := range occupants {
		if occupants[i].UserID == excludeUser {
			continue
		}
		out = append(out, occupants[i].Public())
	}
	return out, nil
}

func (b *RoomBroadcaster) settle(mapID domain.MapID, res PublishResult) {
	if b.Metrics != nil {
		b.Metrics.AddFrames(res.SendTo, len(res.Dropped))
	}
	if b.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch b.Policy.OnBackPressure(mapID, slow) {
		case KickConnection:
			log.Warn().Str("module", "app.broadcast").Str("conn", string(slow)).Msg("kicking slow connection")
			if b.Registry.Cancel(slow) && b.Metrics != nil {
				b.Metrics.IncKicks()
			}
		case DropFrame, NoAction:
		}
	}
}
