package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/app"
	"github.com/dkeye/tileworld/internal/app/orch"
	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const (
	writeWait          = 5 * time.Second
	defaultPingPeriod  = 54 * time.Second
	defaultSendBuffer  = 32
	defaultFrameLimit  = 50
	defaultFrameWindow = time.Second
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
	// FrameLimit inbound frames are accepted per second per connection.
	FrameLimit int
}

type SignalWSController struct {
	Orch   *orch.Orchestrator
	Frames *FrameLimiter
	opts   Options
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = defaultPingPeriod
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.FrameLimit <= 0 {
		opts.FrameLimit = defaultFrameLimit
	}
	return &SignalWSController{
		Orch:   o,
		Frames: NewFrameLimiter(opts.FrameLimit, defaultFrameWindow),
		opts:   opts,
	}
}

// WsSignalConn is the websocket side of core.SignalConnection.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	// done is closed when writePump exits.
	done chan struct{}

	mu          sync.RWMutex
	closed      bool
	closeCode   int
	closeReason string
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// CloseWith sends a close frame carrying code and reason, then closes.
func (c *WsSignalConn) CloseWith(code int, reason string) {
	if len(reason) > 120 {
		reason = reason[:120]
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.Close()
}

// Shutdown stops accepting frames, lets writePump flush what is already
// queued, then sends the close frame and closes the socket.
func (c *WsSignalConn) Shutdown(code int, reason string) {
	if len(reason) > 120 {
		reason = reason[:120]
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.send)
	c.mu.Unlock()

	select {
	case <-c.done:
	case <-time.After(2 * writeWait):
	}
	_ = c.conn.Close()
}

// writeClose sends the close frame recorded by Shutdown, if any.
func (c *WsSignalConn) writeClose() {
	c.mu.RLock()
	code, reason := c.closeCode, c.closeReason
	c.mu.RUnlock()
	if code == 0 {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until it closes.
// The token has already been extracted from the request by the HTTP layer.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, w http.ResponseWriter, r *http.Request, token string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ctl.Orch.Metrics.IncConnections()
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
		done: make(chan struct{}),
	}
	cid := app.NewConnectionID()
	ctx, cancel := context.WithCancel(ctx)

	id, err := ctl.Orch.Authenticate(ctx, cid, token, conn, cancel)
	if err != nil {
		cancel()
		code := websocket.ClosePolicyViolation
		if errors.Is(err, domain.ErrStoreUnavailable) {
			code = websocket.CloseTryAgainLater
		}
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("handshake rejected")
		conn.CloseWith(code, err.Error())
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("user", string(id.UserID)).Msg("new WS connection")

	go ctl.writePump(ctx, cid, conn)
	go ctl.readPump(ctx, cancel, cid, conn)
}
