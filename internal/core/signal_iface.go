package core

//go:generate mockgen -source=signal_iface.go -destination=mocks/signal_connection.go -package=mocks

// Frame is a raw encoded message ready for the wire.
type Frame []byte

// ConnectionID identifies one live signal connection inside this process.
type ConnectionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
