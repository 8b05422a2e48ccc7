package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is an inbound wire frame with its receive timestamp.
type Frame struct {
	Data       []byte
	ReceivedAt time.Time
}

// CloseEvent reports the terminal failure or closure of a transport.
type CloseEvent struct {
	// Code is the WebSocket close code when one was received;
	// websocket.CloseNormalClosure (1000) marks a deliberate close. 0 means
	// the transport failed without a close handshake (dial error, dead TCP).
	Code int
	Err  error
}

// Normal reports whether the close was a deliberate, clean closure.
func (e CloseEvent) Normal() bool {
	return e.Code == websocket.CloseNormalClosure
}

// Transport is a single full-duplex channel to the server. The manager
// creates a fresh transport for every dial; a transport is never reused
// after it closes.
type Transport interface {
	// Connect opens the channel. Blocks until the handshake completes.
	Connect(ctx context.Context, url string) error

	// Send writes one frame. Never blocks beyond the write deadline.
	Send(data []byte) error

	// Close performs a normal closure (code 1000). Safe to call twice.
	Close() error

	// Frames returns the inbound frame channel.
	Frames() <-chan Frame

	// Closed delivers exactly one event when the transport terminates for
	// any reason other than a local Close call.
	Closed() <-chan CloseEvent
}

// TransportFactory builds a fresh transport for one dial attempt.
type TransportFactory func(logger *slog.Logger) Transport

// wsTransport implements Transport over gorilla/websocket.
type wsTransport struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	frames chan Frame
	closed chan CloseEvent
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu        sync.RWMutex
	connected bool
	shutdown  bool
}

// newWebSocketTransport creates the production transport.
func newWebSocketTransport(cfg Config, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &wsTransport{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, 64),
		closed: make(chan CloseEvent, 1),
		done:   make(chan struct{}),
	}
}

func (t *wsTransport) Connect(ctx context.Context, url string) error {
	t.mu.Lock()
	if t.shutdown {
		t.mu.Unlock()
		return ErrAlreadyClosed
	}
	t.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}

	t.mu.Lock()
	// Close may have run while the dial was in flight; the late socket must
	// not outlive it.
	if t.shutdown {
		t.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	t.conn = conn
	t.connected = true
	t.mu.Unlock()

	// Answer transport-level pings so intermediaries keep the socket alive.
	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	go t.readLoop()

	t.logger.Debug("websocket connected", "url", url)
	return nil
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.RLock()
	if !t.connected {
		t.mu.RUnlock()
		return ErrNotConnected
	}
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.cfg.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.shutdown {
		t.mu.Unlock()
		return nil
	}
	t.shutdown = true
	t.connected = false
	t.mu.Unlock()

	close(t.done)

	if t.conn != nil {
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return t.conn.Close()
	}
	return nil
}

func (t *wsTransport) Frames() <-chan Frame {
	return t.frames
}

func (t *wsTransport) Closed() <-chan CloseEvent {
	return t.closed
}

// readLoop reads frames until the connection dies. Errors after a local
// Close are suppressed; everything else is surfaced as a single CloseEvent.
func (t *wsTransport) readLoop() {
	defer func() {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	}()

	for {
		select {
		case <-t.done:
			return
		default:
		}

		_, data, err := t.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}

			ev := CloseEvent{Err: err}
			if ce, ok := err.(*websocket.CloseError); ok {
				ev.Code = ce.Code
			}
			select {
			case t.closed <- ev:
			default:
			}
			return
		}

		select {
		case t.frames <- Frame{Data: data, ReceivedAt: receivedAt}:
		case <-t.done:
			return
		default:
			t.logger.Warn("frame buffer full, dropping frame")
		}
	}
}
