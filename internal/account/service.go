// Package account handles registration, password login and profile lookup.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/tileworld/internal/auth"
	"github.com/dkeye/tileworld/internal/core"
	"github.com/dkeye/tileworld/internal/domain"
)

const MinPasswordLen = 6

var (
	ErrBadCredentials   = errors.New("invalid credentials")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLen)
)

// TokenIssuer mints the bearer token handed back after register/login.
type TokenIssuer interface {
	Issue(userID domain.UserID) (string, error)
}

// SpawnResolver provides the map new players start on.
type SpawnResolver interface {
	DefaultSpawn(ctx context.Context) (domain.Spawn, error)
}

// PlayerState is the caller's own presence as shown by the REST API.
type PlayerState struct {
	CurrentMap domain.MapID        `json:"currentMap"`
	Position   domain.GridPosition `json:"position"`
	Direction  domain.Direction    `json:"direction"`
	IsOnline   bool                `json:"isOnline"`
}

type Session struct {
	Token  string       `json:"token,omitempty"`
	User   *domain.User `json:"user"`
	Player PlayerState  `json:"playerState"`
}

type Service struct {
	Users    core.UserStore
	Presence core.PresenceStore
	Spawns   SpawnResolver
	Hasher   auth.PasswordHasher
	Tokens   TokenIssuer
}

// Register creates the account and its presence record at the default spawn.
// Nothing is written when no default spawn map exists.
func (s *Service) Register(ctx context.Context, username, email, password string) (*Session, error) {
	user, err := domain.NewUser(strings.TrimSpace(username), email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLen {
		return nil, ErrPasswordTooShort
	}
	spawn, err := s.Spawns.DefaultSpawn(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	if err := s.Users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	p := domain.NewPresence(user, spawn)
	if err := s.Presence.CreatePresence(ctx, p); err != nil {
		return nil, fmt.Errorf("create presence: %w", err)
	}
	log.Info().Str("module", "account").Str("user", string(user.ID)).Str("map", string(spawn.MapID)).Msg("registered")
	return s.session(user, p)
}

// Login accepts a username or an email. Unknown users and wrong passwords
// are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, login, password string) (*Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrBadCredentials
	}
	user, err := s.Users.FindUserByLogin(ctx, login)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.Hasher.Verify(user.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if err := s.Users.TouchLogin(ctx, user.ID); err != nil {
		log.Warn().Err(err).Str("module", "account").Str("user", string(user.ID)).Msg("touch last login")
	}
	p, err := s.Presence.FindPresence(ctx, user.ID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Error().Str("module", "account").Str("user", string(user.ID)).Msg("no presence record for user")
		return nil, domain.ErrPresenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.session(user, p)
}

// Me returns the profile of an authenticated user, without a new token.
func (s *Service) Me(ctx context.Context, uid domain.UserID) (*Session, error) {
	user, err := s.Users.FindUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	p, err := s.Presence.FindPresence(ctx, uid)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrPresenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Player: playerState(p)}, nil
}

func (s *Service) session(user *domain.User, p *domain.Presence) (*Session, error) {
	token, err := s.Tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user, Player: playerState(p)}, nil
}

func playerState(p *domain.Presence) PlayerState {
	return PlayerState{
		CurrentMap: p.MapID,
		Position:   p.Position,
		Direction:  p.Direction,
		IsOnline:   p.Online,
	}
}
