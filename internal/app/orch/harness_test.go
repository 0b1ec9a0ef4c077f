package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/tileworld/internal/app"
	"github.com/dkeye/tileworld/internal/auth"
	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
	"github.com/dkeye/tileworld/internal/protocol"
	"github.com/dkeye/tileworld/internal/store/memory"
)

var spawnPos = domain.GridPosition{Row: 10, Col: 15}

// recordingConn is a SignalConnection that keeps every frame it is given.
type recordingConn struct {
	mu     sync.Mutex
	frames []protocol.Envelope
	full   bool
	closed bool
}

func (c *recordingConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	if c.full {
		return errors.New("backpressure")
	}
	env, err := protocol.Decode(f)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *recordingConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *recordingConn) types() []protocol.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Type, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Type)
	}
	return out
}

func (c *recordingConn) count(t protocol.Type) int {
	n := 0
	for _, got := range c.types() {
		if got == t {
			n++
		}
	}
	return n
}

// last decodes the most recent frame of type t into v.
func (c *recordingConn) last(t *testing.T, typ protocol.Type, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Type == typ {
			if err := protocol.DecodePayload(c.frames[i], v); err != nil {
				t.Fatalf("decode %s: %v", typ, err)
			}
			return
		}
	}
	t.Fatalf("expected a %s frame, got %v", typ, c.typesLocked())
}

func (c *recordingConn) typesLocked() []protocol.Type {
	out := make([]protocol.Type, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Type)
	}
	return out
}

func (c *recordingConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

type client struct {
	cid      core.ConnectionID
	conn     *recordingConn
	canceled bool
}

type harness struct {
	t      *testing.T
	store  *memory.Store
	tokens *auth.TokenService
	orch   *Orchestrator
	now    time.Time
	seq    int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return buildHarness(t, true)
}

// buildHarness seeds maps D (default spawn), N (published) and U (unpublished).
func buildHarness(t *testing.T, withDefault bool) *harness {
	t.Helper()
	h := &harness{t: t, store: memory.New(), now: time.Unix(1_700_000_000, 0)}
	tokens, err := auth.NewTokenService("test-secret", "tileworld-test", time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	h.tokens = tokens

	h.addMap("D", true, withDefault)
	h.addMap("N", true, false)
	h.addMap("U", false, false)

	h.addUser("alice", false, "D")
	h.addUser("bob", false, "D")
	h.addUser("carol", false, "N")
	h.addUser("dev", true, "D")

	reg := app.NewRegistry()
	metrics := &app.Metrics{}
	h.orch = &Orchestrator{
		Registry: reg,
		Broadcaster: &app.RoomBroadcaster{
			Presence: h.store,
			Registry: reg,
			Policy:   app.SimplePolicy{},
			Metrics:  metrics,
		},
		Access:       &app.AccessPolicy{Maps: h.store, Users: h.store, SpawnPosition: spawnPos},
		Limiter:      app.NewMoveRateLimiter(100 * time.Millisecond).WithClock(func() time.Time { return h.now }),
		Metrics:      metrics,
		Store:        h.store,
		Tokens:       tokens,
		StoreTimeout: time.Second,
	}
	return h
}

func (h *harness) addMap(id domain.MapID, published, isDefault bool) {
	h.t.Helper()
	tiles := domain.FilledTiles(20, 20, domain.TerrainGrass, true)
	tiles[0][0] = domain.Tile{Terrain: domain.TerrainWall}
	m := &domain.Map{
		ID:             id,
		Name:           "map " + string(id),
		Width:          20,
		Height:         20,
		Tiles:          tiles,
		IsPublished:    published,
		IsDefaultSpawn: isDefault,
	}
	if err := h.store.CreateMap(context.Background(), m); err != nil {
		h.t.Fatalf("create map %s: %v", id, err)
	}
}

func (h *harness) addUser(name string, developer bool, mapID domain.MapID) {
	h.t.Helper()
	u := &domain.User{
		ID:          domain.UserID(name),
		Username:    name,
		Email:       name + "@example.com",
		IsDeveloper: developer,
	}
	if err := h.store.CreateUser(context.Background(), u); err != nil {
		h.t.Fatalf("create user %s: %v", name, err)
	}
	if mapID == "" {
		return
	}
	p := domain.NewPresence(u, domain.Spawn{MapID: mapID, Position: spawnPos})
	if err := h.store.CreatePresence(context.Background(), p); err != nil {
		h.t.Fatalf("create presence %s: %v", name, err)
	}
}

func (h *harness) token(uid domain.UserID) string {
	h.t.Helper()
	tok, err := h.tokens.Issue(uid)
	if err != nil {
		h.t.Fatalf("issue token: %v", err)
	}
	return tok
}

// authenticate binds a fresh connection for uid without joining.
func (h *harness) authenticate(uid domain.UserID) *client {
	h.t.Helper()
	h.seq++
	c := &client{
		cid:  core.ConnectionID(fmt.Sprintf("%s-conn-%d", uid, h.seq)),
		conn: &recordingConn{},
	}
	if _, err := h.orch.Authenticate(context.Background(), c.cid, h.token(uid), c.conn, func() { c.canceled = true }); err != nil {
		h.t.Fatalf("authenticate %s: %v", uid, err)
	}
	return c
}

// connect authenticates and joins uid.
func (h *harness) connect(uid domain.UserID) *client {
	h.t.Helper()
	c := h.authenticate(uid)
	if err := h.orch.Join(context.Background(), c.cid); err != nil {
		h.t.Fatalf("join %s: %v", uid, err)
	}
	return c
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *harness) presence(uid domain.UserID) *domain.Presence {
	h.t.Helper()
	p, err := h.store.FindPresence(context.Background(), uid)
	if err != nil {
		h.t.Fatalf("find presence %s: %v", uid, err)
	}
	return p
}
