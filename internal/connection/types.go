package connection

import (
	"errors"
	"time"

	"github.com/artlane/realtime/internal/protocol"
)

// Errors
var (
	ErrNotConnected   = errors.New("not connected")
	ErrEmptyPrincipal = errors.New("principal id is required")
	ErrAlreadyClosed  = errors.New("transport already closed")
)

// State is the connection lifecycle state. Exactly one is active at any time.
type State int

const (
	// Disconnected is the initial state, and terminal after an explicit
	// disconnect or reconnect-cap exhaustion.
	Disconnected State = iota

	// Connecting means a transport dial is in flight.
	Connecting

	// Connected means the transport is open and messages flow.
	Connected

	// Reconnecting means a backoff delay is running before the next dial.
	Reconnecting

	// StateError is transient: a transport failure was observed and the
	// reconnection policy decides the next transition immediately.
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Info is a read-only snapshot of the connection. The manager owns the
// mutable state; observers only ever see copies.
type Info struct {
	State State

	// LastConnectedAt is set on every successful open and never cleared.
	// Zero means the connection has never been established.
	LastConnectedAt time.Time

	// ReconnectAttempts counts scheduled reconnects since the last
	// successful open. Reset to 0 on open and on a fresh Connect.
	ReconnectAttempts int

	// ConnectionID is the server-assigned id from the connection_ack,
	// used for diagnostics only.
	ConnectionID string

	// LastError holds the most recent transport failure, cleared on a
	// successful open. Retained when the reconnect cap is exhausted so the
	// host can surface it.
	LastError string
}

// Config holds connection manager settings.
type Config struct {
	// Endpoint is the WebSocket URL (e.g., wss://realtime.example.com/ws).
	// The principal id and optional auth token are appended as query
	// parameters on dial.
	Endpoint string

	// ReconnectBaseDelay is the backoff base for attempt 0.
	ReconnectBaseDelay time.Duration

	// MaxReconnectAttempts caps scheduled reconnects. 0 means unlimited.
	MaxReconnectAttempts int

	// HeartbeatInterval is the time between liveness probes while connected.
	HeartbeatInterval time.Duration

	// QueueCapacity bounds the outbound queue.
	QueueCapacity int

	// WriteTimeout is the write deadline for transport sends.
	WriteTimeout time.Duration

	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectBaseDelay:   1 * time.Second,
		MaxReconnectAttempts: 0,
		HeartbeatInterval:    30 * time.Second,
		QueueCapacity:        100,
		WriteTimeout:         5 * time.Second,
		HandshakeTimeout:     10 * time.Second,
	}
}

// Handler receives inbound messages for one tag category. Registering zero
// handlers for a tag is valid; frames for it are logged and ignored.
type Handler func(protocol.Message)

// StateHandler observes connection state changes.
type StateHandler func(Info)

// ErrorHandler observes transport failures before the policy decision.
type ErrorHandler func(error)
