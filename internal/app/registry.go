package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
)

// NewConnectionID returns a sortable process-unique connection id.
func NewConnectionID() core.ConnectionID {
	return core.ConnectionID(ksuid.New().String())
}

// Registry is the session directory: live connection -> identity.
// It is rebuilt from scratch on every process start.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnectionID]*core.Session
	byUser   map[domain.UserID]core.ConnectionID
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.ConnectionID]*core.Session),
		byUser:   make(map[domain.UserID]core.ConnectionID),
	}
}

// Bind registers a connection. It returns the connection previously bound
// to the same user, if any, so the caller can supersede it.
func (r *Registry) Bind(
	cid core.ConnectionID,
	id domain.Identity,
	conn core.SignalConnection,
	cancel context.CancelFunc,
) (core.ConnectionID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had := r.byUser[id.UserID]
	r.sessions[cid] = &core.Session{
		ID:       cid,
		Identity: id,
		Signal:   conn,
		State:    core.StateAuthenticating,
		Cancel:   cancel,
	}
	r.byUser[id.UserID] = cid
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("user", string(id.UserID)).Msg("bound session")
	return prev, had && prev != cid
}

func (r *Registry) Resolve(cid core.ConnectionID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[cid]; ok {
		return s.Identity, true
	}
	return domain.Identity{}, false
}

// ConnectionOf returns the live connection currently bound to the user.
func (r *Registry) ConnectionOf(uid domain.UserID) (core.ConnectionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cid, ok := r.byUser[uid]
	return cid, ok
}

func (r *Registry) Signal(cid core.ConnectionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[cid]; ok {
		return s.Signal, true
	}
	return nil, false
}

func (r *Registry) State(cid core.ConnectionID) core.ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[cid]; ok {
		return s.State
	}
	return core.StateDisconnected
}

func (r *Registry) SetState(cid core.ConnectionID, st core.ConnState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[cid]
	if !ok {
		return false
	}
	s.State = st
	log.Debug().Str("module", "app.registry").Str("conn", string(cid)).Str("state", st.String()).Msg("state changed")
	return true
}

// Unbind removes the connection and reports what was bound.
// Only the first call for a connection gets ok == true.
func (r *Registry) Unbind(cid core.ConnectionID) (core.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[cid]
	if !ok {
		return core.Session{}, false
	}
	delete(r.sessions, cid)
	if r.byUser[s.Identity.UserID] == cid {
		delete(r.byUser, s.Identity.UserID)
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("unbind session")
	return *s, true
}

// Cancel stops the connection's pumps; the adapter then tears it down.
func (r *Registry) Cancel(cid core.ConnectionID) bool {
	r.mu.RLock()
	s, ok := r.sessions[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if s.Cancel != nil {
		s.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("canceled session")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
