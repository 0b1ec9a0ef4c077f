package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("already exists")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrPresenceNotFound    = errors.New("presence record not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrServerMisconfigured = errors.New("no default spawn map configured")
	ErrThrottled           = errors.New("throttled")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrMoveRejected        = errors.New("move rejected")
)
