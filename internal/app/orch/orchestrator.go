package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/app"
	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
	"github.com/dkeye/tileworld/internal/protocol"
)

const DefaultStoreTimeout = 2 * time.Second

// Orchestrator drives one connection through
// authenticate -> join -> (move | change-map)* -> disconnect.
// Calls for the same connection must be serialized by the caller.
type Orchestrator struct {
	Registry    *app.Registry
	Broadcaster *app.RoomBroadcaster
	Access      *app.AccessPolicy
	Limiter     *app.MoveRateLimiter
	Metrics     *app.Metrics
	Store       core.Store
	Tokens      core.TokenVerifier

	StoreTimeout time.Duration
	// ValidateMoves enables claimed-map, bounds and walkability checks on moves.
	ValidateMoves bool
}

func (o *Orchestrator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := o.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Authenticate verifies the handshake token and binds the connection.
// Nothing is created when it fails.
func (o *Orchestrator) Authenticate(
	ctx context.Context,
	cid core.ConnectionID,
	token string,
	conn core.SignalConnection,
	cancel context.CancelFunc,
) (domain.Identity, error) {
	if token == "" {
		o.Metrics.IncAuthFailures()
		return domain.Identity{}, fmt.Errorf("%w: missing token", domain.ErrUnauthenticated)
	}
	uid, err := o.Tokens.Verify(token)
	if err != nil {
		o.Metrics.IncAuthFailures()
		return domain.Identity{}, err
	}

	sctx, done := o.storeCtx(ctx)
	defer done()
	user, err := o.Store.FindUser(sctx, uid)
	if errors.Is(err, domain.ErrNotFound) {
		o.Metrics.IncAuthFailures()
		return domain.Identity{}, fmt.Errorf("%w: unknown user", domain.ErrUnauthenticated)
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	id := user.Identity()
	if prev, had := o.Registry.Bind(cid, id, conn, cancel); had {
		log.Info().Str("module", "orch").Str("user", string(uid)).
			Str("old_conn", string(prev)).Str("conn", string(cid)).Msg("superseding connection")
		o.Registry.Cancel(prev)
	}
	return id, nil
}

// Disconnect tears the connection down. Only the first call has an effect.
func (o *Orchestrator) Disconnect(cid core.ConnectionID) {
	sess, ok := o.Registry.Unbind(cid)
	if !ok {
		return
	}
	uid := sess.Identity.UserID
	if other, live := o.Registry.ConnectionOf(uid); live && other != cid {
		// superseded: the newer connection owns the presence record now
		log.Info().Str("module", "orch").Str("conn", string(cid)).Str("user", string(uid)).Msg("superseded connection closed")
		return
	}
	o.Limiter.Forget(uid)

	ctx, done := o.storeCtx(context.Background())
	defer done()
	p, changed, err := o.Store.SetOffline(ctx, uid, cid)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("mark offline failed")
		return
	}
	if !changed && p != nil && p.Online && p.ConnectionID != "" {
		if _, live := o.Registry.Signal(core.ConnectionID(p.ConnectionID)); !live {
			// left behind by a connection that never finished joining
			p, changed, err = o.Store.SetOffline(ctx, uid, core.ConnectionID(p.ConnectionID))
			if err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("clear stale connection failed")
				return
			}
		}
	}
	if !changed || p == nil {
		return
	}
	left := protocol.PlayerLeft{UserID: uid, DisplayName: sess.Identity.DisplayName}
	if _, err := o.Broadcaster.BroadcastToRoom(ctx, p.MapID, cid, protocol.TypePlayerLeft, left); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("map", string(p.MapID)).Msg("player-left broadcast failed")
	}
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("user", string(uid)).
		Str("map", string(p.MapID)).Msg("player disconnected")
}

// sendError reports a failure to the connection itself.
func (o *Orchestrator) sendError(cid core.ConnectionID, code, msg string, retryable bool) {
	payload := protocol.ErrorPayload{Message: msg, Code: code, Retryable: retryable}
	if err := o.Broadcaster.SendTo(cid, protocol.TypeError, payload); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("conn", string(cid)).Msg("send error frame")
	}
}

// joined resolves a connection that has completed Join.
func (o *Orchestrator) joined(cid core.ConnectionID) (domain.Identity, bool) {
	id, ok := o.Registry.Resolve(cid)
	if !ok || o.Registry.State(cid) != core.StateJoined {
		o.sendError(cid, protocol.CodeNotJoined, "join before sending game events", false)
		return domain.Identity{}, false
	}
	return id, true
}

// storeFailure maps any non-domain failure onto ErrStoreUnavailable.
func storeFailure(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
