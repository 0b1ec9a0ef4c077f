// Package memory is a process-local Store, used by tests and the "memory" driver.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
)

// Store keeps every collection behind one mutex so each call is atomic.
type Store struct {
	mu       sync.RWMutex
	users    map[domain.UserID]domain.User
	presence map[domain.UserID]domain.Presence
	maps     map[domain.MapID]domain.Map
	now      func() time.Time
	// fail, when set, is returned by every call; tests use it to simulate outages.
	fail error
}

var _ core.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[domain.UserID]domain.User),
		presence: make(map[domain.UserID]domain.Presence),
		maps:     make(map[domain.MapID]domain.Map),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FailWith makes every subsequent call return err (nil restores).
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *Store) Close() error { return nil }

func (s *Store) FindPresence(ctx context.Context, userID domain.UserID) (*domain.Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	p, ok := s.presence[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListOnline(ctx context.Context, mapID domain.MapID) ([]domain.Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Presence, 0)
	for _, p := range s.presence {
		if p.Online && p.MapID == mapID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) CreatePresence(ctx context.Context, p *domain.Presence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.presence[p.UserID]; ok {
		return domain.ErrConflict
	}
	rec := *p
	rec.LastUpdate = s.now()
	s.presence[p.UserID] = rec
	return nil
}

func (s *Store) SetOnline(ctx context.Context, userID domain.UserID, connID core.ConnectionID) (*domain.Presence, error) {
	return s.mutate(ctx, userID, func(p *domain.Presence) bool {
		p.Online = true
		p.ConnectionID = string(connID)
		return true
	})
}

func (s *Store) SetOffline(ctx context.Context, userID domain.UserID, connID core.ConnectionID) (*domain.Presence, bool, error) {
	changed := false
	p, err := s.mutate(ctx, userID, func(p *domain.Presence) bool {
		if p.ConnectionID != string(connID) {
			return false
		}
		p.Online = false
		p.ConnectionID = ""
		changed = true
		return true
	})
	return p, changed, err
}

func (s *Store) UpdatePosition(
	ctx context.Context,
	userID domain.UserID,
	mapID domain.MapID,
	pos domain.GridPosition,
	dir domain.Direction,
) (*domain.Presence, error) {
	return s.mutate(ctx, userID, func(p *domain.Presence) bool {
		p.MapID = mapID
		p.Position = pos
		p.Direction = dir
		return true
	})
}

func (s *Store) ResetOnline(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var n int64
	for id, p := range s.presence {
		if !p.Online && p.ConnectionID == "" {
			continue
		}
		p.Online = false
		p.ConnectionID = ""
		p.LastUpdate = s.now()
		s.presence[id] = p
		n++
	}
	return n, nil
}

func (s *Store) RelocateAll(ctx context.Context, from domain.MapID, to domain.Spawn) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var n int64
	for id, p := range s.presence {
		if p.MapID != from {
			continue
		}
		p.MapID = to.MapID
		p.Position = to.Position
		p.Direction = domain.DirIdle
		p.LastUpdate = s.now()
		s.presence[id] = p
		n++
	}
	return n, nil
}

func (s *Store) mutate(ctx context.Context, userID domain.UserID, fn func(*domain.Presence) bool) (*domain.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	p, ok := s.presence[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if fn(&p) {
		p.LastUpdate = s.now()
		s.presence[userID] = p
	}
	return &p, nil
}

func (s *Store) FindMap(ctx context.Context, id domain.MapID) (*domain.Map, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	m, ok := s.maps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (s *Store) FindDefaultSpawn(ctx context.Context) (*domain.Map, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	for _, m := range s.maps {
		if m.IsDefaultSpawn {
			return &m, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListMaps(ctx context.Context, publishedOnly bool) ([]domain.Map, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Map, 0, len(s.maps))
	for _, m := range s.maps {
		if publishedOnly && !m.IsPublished {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateMap(ctx context.Context, m *domain.Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.maps[m.ID]; ok {
		return domain.ErrConflict
	}
	now := s.now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.IsDefaultSpawn {
		s.clearDefaultLocked(m.ID)
	}
	s.maps[m.ID] = *m
	return nil
}

func (s *Store) SetPublished(ctx context.Context, id domain.MapID, published bool) (*domain.Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	m, ok := s.maps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	m.IsPublished = published
	m.UpdatedAt = s.now()
	s.maps[id] = m
	return &m, nil
}

func (s *Store) SetDefaultSpawn(ctx context.Context, id domain.MapID) (*domain.Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	m, ok := s.maps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s.clearDefaultLocked(id)
	m.IsDefaultSpawn = true
	m.UpdatedAt = s.now()
	s.maps[id] = m
	return &m, nil
}

func (s *Store) UpdateMap(ctx context.Context, m *domain.Map) (*domain.Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	cur, ok := s.maps[m.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cur.Name = m.Name
	cur.Slug = m.Slug
	cur.Width = m.Width
	cur.Height = m.Height
	cur.Tiles = m.Tiles
	cur.IsPublished = m.IsPublished
	cur.IsDefaultSpawn = m.IsDefaultSpawn
	cur.UpdatedAt = s.now()
	if cur.IsDefaultSpawn {
		s.clearDefaultLocked(cur.ID)
	}
	s.maps[cur.ID] = cur
	return &cur, nil
}

func (s *Store) DeleteMap(ctx context.Context, id domain.MapID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.maps[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.maps, id)
	return nil
}

func (s *Store) clearDefaultLocked(except domain.MapID) {
	for id, other := range s.maps {
		if id != except && other.IsDefaultSpawn {
			other.IsDefaultSpawn = false
			s.maps[id] = other
		}
	}
}

func (s *Store) FindUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (s *Store) FindUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if u.Username == login || strings.EqualFold(u.Email, login) {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	for _, other := range s.users {
		if other.ID == u.ID || other.Username == u.Username || strings.EqualFold(other.Email, u.Email) {
			return domain.ErrConflict
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) TouchLogin(ctx context.Context, id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.LastLogin = s.now()
	s.users[id] = u
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if s.fail != nil {
		return s.fail
	}
	if err := ctx.Err(); err != nil {
		return domain.ErrStoreUnavailable
	}
	return nil
}
