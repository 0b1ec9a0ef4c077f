package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
	"github.com/dkeye/tileworld/internal/protocol"
)

func (ctl *SignalWSController) writePump(ctx context.Context, cid core.ConnectionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("writePump ctx done")
			c.CloseWith(websocket.CloseNormalClosure, "connection closed by server")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(cid)).Msg("writePump channel closed")
				c.writeClose()
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

// readPump owns the connection: it joins, then handles frames one at a time
// so events of a single connection are never processed concurrently.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cid core.ConnectionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		ctl.Orch.Disconnect(cid)
		ctl.Frames.Forget(cid)
		cancel()
		c.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := ctl.Orch.Join(ctx, cid); err != nil {
		switch {
		case errors.Is(err, domain.ErrServerMisconfigured):
			// stays open in the failed state
		case errors.Is(err, domain.ErrStoreUnavailable):
			// the queued error frame goes out before the close frame
			c.Shutdown(websocket.CloseTryAgainLater, "store unavailable")
			return
		default:
			c.Shutdown(websocket.ClosePolicyViolation, err.Error())
			return
		}
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !ctl.Frames.Allow(cid) {
			log.Debug().Str("module", "signal").Str("conn", string(cid)).Msg("inbound frame dropped")
			continue
		}
		ctl.handleSignal(ctx, cid, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cid core.ConnectionID, c *WsSignalConn, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("bad json")
		ctl.sendError(c, protocol.CodeBadPayload, "malformed message")
		return
	}

	switch env.Type {
	case protocol.TypeMove:
		var mv protocol.Move
		if err := protocol.DecodePayload(env, &mv); err != nil {
			ctl.sendError(c, protocol.CodeBadPayload, err.Error())
			return
		}
		if err := mv.Validate(); err != nil {
			ctl.sendError(c, protocol.CodeBadPayload, err.Error())
			return
		}
		_ = ctl.Orch.HandleMove(ctx, cid, mv)
	case protocol.TypeChangeMap:
		var req protocol.ChangeMap
		if err := protocol.DecodePayload(env, &req); err != nil {
			ctl.sendError(c, protocol.CodeBadPayload, err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			ctl.sendError(c, protocol.CodeBadPayload, err.Error())
			return
		}
		_ = ctl.Orch.HandleMapChange(ctx, cid, req)
	case protocol.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
		ctl.sendError(c, protocol.CodeUnknownType, "unknown message type "+string(env.Type))
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, t protocol.Type, v any) {
	frame, err := protocol.Encode(t, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(frame)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code, msg string) {
	ctl.sendJSON(c, protocol.TypeError, protocol.ErrorPayload{Message: msg, Code: code})
}
