package core

import (
	"context"

	"github.com/dkeye/tileworld/internal/domain"
)

// TokenVerifier resolves a bearer token to the user it was issued for.
type TokenVerifier interface {
	Verify(token string) (domain.UserID, error)
}

// ConnState is the lifecycle state of one connection.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateAuthenticating
	StateJoined
	StateFailed
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoined:
		return "joined"
	case StateFailed:
		return "failed"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Session is what the directory keeps per connection.
type Session struct {
	ID       ConnectionID
	Identity domain.Identity
	Signal   SignalConnection
	State    ConnState
	Cancel   context.CancelFunc
}
