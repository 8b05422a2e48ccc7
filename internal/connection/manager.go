package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/artlane/realtime/internal/backoff"
	"github.com/artlane/realtime/internal/heartbeat"
	"github.com/artlane/realtime/internal/protocol"
	"github.com/artlane/realtime/internal/queue"
)

// Manager maintains the logical connection for one principal.
type Manager interface {
	// Connect opens the connection for the given principal. The optional
	// auth token is passed to the server as a query parameter. Idempotent
	// while connected. The principal id is stored for reconnection, so the
	// caller never resupplies it.
	Connect(principalID, token string) error

	// Disconnect tears the connection down. Safe from any state; after it
	// returns no heartbeat probe or reconnect attempt will fire.
	Disconnect()

	// Send constructs a message from the stored principal id and writes it
	// if connected. Messages that cannot be written immediately are queued
	// and false is returned; true means an immediate write succeeded.
	Send(t protocol.Type, payload any) bool

	// Info returns an immutable snapshot of the connection state.
	Info() Info

	// QueueStats returns outbound queue counters.
	QueueStats() queue.Stats

	// Handle registers the handler for an inbound tag. At most one handler
	// per tag; registering nil removes it.
	Handle(t protocol.Type, h Handler)

	// OnProgress registers the progress_update handler.
	OnProgress(h Handler)

	// OnCollectionUpdate registers the collection_update handler.
	OnCollectionUpdate(h Handler)

	// OnNotification registers the notification handler.
	OnNotification(h Handler)

	// OnPresence registers the presence_update handler.
	OnPresence(h Handler)

	// OnStatus registers the status_update handler.
	OnStatus(h Handler)

	// OnStateChange registers the connection-state observer.
	OnStateChange(h StateHandler)

	// OnError registers the transport failure observer.
	OnError(h ErrorHandler)
}

// manager implements the Manager interface.
type manager struct {
	cfg          Config
	policy       backoff.Policy
	logger       *slog.Logger
	newTransport TransportFactory

	// Outbound queue. Owns its own lock so flushes never contend with
	// state transitions.
	out *queue.Queue

	mu        sync.Mutex
	state     State
	info      Info
	principal string
	token     string

	// gen identifies the current session. Bumped on every Connect and
	// Disconnect; scheduled closures capture it and no-op when stale.
	gen uint64

	transport      Transport
	hb             *heartbeat.Scheduler
	reconnectTimer *time.Timer

	// sessionDone unblocks the session event loop on Disconnect, which
	// produces no transport close event of its own.
	sessionDone chan struct{}

	handlers map[protocol.Type]Handler
	onState  StateHandler
	onError  ErrorHandler
}

// NewManager creates a Connection Manager speaking WebSocket to
// cfg.Endpoint.
func NewManager(cfg Config, logger *slog.Logger) Manager {
	return newManager(cfg, nil, logger)
}

// newManager allows tests to inject a transport factory.
func newManager(cfg Config, factory TransportFactory, logger *slog.Logger) *manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if factory == nil {
		factory = func(l *slog.Logger) Transport {
			return newWebSocketTransport(cfg, l)
		}
	}

	return &manager{
		cfg:          cfg,
		policy:       backoff.New(cfg.ReconnectBaseDelay, cfg.MaxReconnectAttempts),
		logger:       logger,
		newTransport: factory,
		out:          queue.New(cfg.QueueCapacity),
		handlers:     make(map[protocol.Type]Handler),
	}
}

// Connect opens the connection. No-op (log only) if already connected.
func (m *manager) Connect(principalID, token string) error {
	if principalID == "" {
		return ErrEmptyPrincipal
	}

	m.mu.Lock()
	if m.state == Connected {
		m.mu.Unlock()
		m.logger.Info("connect ignored, already connected", "user_id", principalID)
		return nil
	}

	// A fresh connect supersedes any session still winding down.
	m.gen++
	gen := m.gen
	m.cancelReconnectLocked()

	m.principal = principalID
	m.token = token
	m.info.ReconnectAttempts = 0
	m.state = Connecting
	m.info.State = Connecting

	t := m.newTransport(m.logger)
	m.transport = t
	target := m.dialURLLocked()
	notify := m.stateNotificationLocked()
	m.mu.Unlock()

	notify()

	m.logger.Info("connecting", "user_id", principalID, "endpoint", m.cfg.Endpoint)
	go m.dial(gen, t, target)
	return nil
}

// Disconnect closes the connection and cancels all pending timers. After it
// returns, no probe or reconnect from this session can fire.
func (m *manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.cancelReconnectLocked()

	hb := m.hb
	m.hb = nil
	t := m.transport
	m.transport = nil
	done := m.sessionDone
	m.sessionDone = nil

	already := m.state == Disconnected
	m.state = Disconnected
	m.info.State = Disconnected
	m.info.ConnectionID = ""
	notify := m.stateNotificationLocked()
	m.mu.Unlock()

	if hb != nil {
		hb.Stop()
	}
	if done != nil {
		close(done)
	}
	if t != nil {
		t.Close()
	}
	m.out.Clear()

	if !already {
		m.logger.Info("disconnected")
		notify()
	}
}

// Send writes a message immediately when connected, otherwise queues it.
func (m *manager) Send(t protocol.Type, payload any) bool {
	m.mu.Lock()
	principal := m.principal
	state := m.state
	tr := m.transport
	m.mu.Unlock()

	if principal == "" {
		m.logger.Warn("send before connect, dropping message", "type", t)
		return false
	}

	msg, err := protocol.New(t, principal, payload)
	if err != nil {
		m.logger.Warn("dropping unencodable message", "type", t, "error", err)
		return false
	}

	if state != Connected || tr == nil {
		m.enqueue(msg)
		return false
	}

	data, err := msg.Encode()
	if err != nil {
		m.enqueue(msg)
		return false
	}
	if err := tr.Send(data); err != nil {
		m.logger.Warn("send failed, message queued", "type", t, "error", err)
		m.enqueue(msg)
		return false
	}
	return true
}

// Info returns a snapshot copy.
func (m *manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// QueueStats returns outbound queue counters.
func (m *manager) QueueStats() queue.Stats {
	return m.out.Stats()
}

// Handle registers the handler for a tag.
func (m *manager) Handle(t protocol.Type, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		delete(m.handlers, t)
		return
	}
	m.handlers[t] = h
}

func (m *manager) OnProgress(h Handler)         { m.Handle(protocol.TypeProgressUpdate, h) }
func (m *manager) OnCollectionUpdate(h Handler) { m.Handle(protocol.TypeCollectionUpdate, h) }
func (m *manager) OnNotification(h Handler)     { m.Handle(protocol.TypeNotification, h) }
func (m *manager) OnPresence(h Handler)         { m.Handle(protocol.TypePresenceUpdate, h) }
func (m *manager) OnStatus(h Handler)           { m.Handle(protocol.TypeStatusUpdate, h) }

// OnStateChange registers the connection-state observer.
func (m *manager) OnStateChange(h StateHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = h
}

// OnError registers the transport failure observer.
func (m *manager) OnError(h ErrorHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = h
}

// enqueue queues a message, logging when the oldest entry is evicted.
func (m *manager) enqueue(msg protocol.Message) {
	if evicted := m.out.Enqueue(msg); evicted {
		m.logger.Warn("outbound queue full, dropped oldest message", "type", msg.Type)
	}
}

// dialURLLocked builds the connection URL with userId and optional token
// query parameters. Caller holds m.mu.
func (m *manager) dialURLLocked() string {
	u, err := url.Parse(m.cfg.Endpoint)
	if err != nil {
		// Let the dial surface the parse failure.
		return m.cfg.Endpoint
	}
	q := u.Query()
	q.Set("userId", m.principal)
	if m.token != "" {
		q.Set("token", m.token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// stateNotificationLocked snapshots the observer and info under m.mu and
// returns a closure to invoke after unlocking. Handlers never run under the
// manager lock.
func (m *manager) stateNotificationLocked() func() {
	h := m.onState
	info := m.info
	if h == nil {
		return func() {}
	}
	return func() { h(info) }
}

// dial connects the transport and hands off to the session event loop.
func (m *manager) dial(gen uint64, t Transport, target string) {
	ctx := context.Background()
	if m.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
		defer cancel()
	}

	if err := t.Connect(ctx, target); err != nil {
		m.connectionLost(gen, CloseEvent{Err: err})
		return
	}
	m.opened(gen, t)
}

// opened handles a successful transport open: connected state, heartbeat
// start, queue flush, event loop start.
func (m *manager) opened(gen uint64, t Transport) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		t.Close()
		return
	}

	m.state = Connected
	m.info.State = Connected
	m.info.LastConnectedAt = time.Now()
	m.info.ReconnectAttempts = 0
	m.info.LastError = ""

	hb := heartbeat.New(m.cfg.HeartbeatInterval, func() { m.probe(gen) }, m.logger)
	m.hb = hb
	done := make(chan struct{})
	m.sessionDone = done
	notify := m.stateNotificationLocked()
	m.mu.Unlock()

	m.logger.Info("connected")
	notify()

	hb.Start()

	// Flush queued messages in FIFO order. A mid-flush failure leaves the
	// rest queued; the close event will arrive through the event loop.
	sent, err := m.out.Flush(func(msg protocol.Message) error {
		data, encErr := msg.Encode()
		if encErr != nil {
			return encErr
		}
		return t.Send(data)
	})
	if sent > 0 {
		m.logger.Info("flushed outbound queue", "sent", sent)
	}
	if err != nil {
		m.logger.Warn("outbound flush interrupted", "sent", sent, "error", err)
	}

	go m.eventLoop(gen, t, done)
}

// eventLoop pumps transport events for one session. It exits on a close
// event or when Disconnect closes the session's done channel.
func (m *manager) eventLoop(gen uint64, t Transport, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case f, ok := <-t.Frames():
			if !ok {
				return
			}
			m.dispatch(gen, t, f)
		case ev := <-t.Closed():
			m.connectionLost(gen, ev)
			return
		}
	}
}

// dispatch routes one inbound frame. Malformed frames are logged and
// discarded; they never tear the connection down.
func (m *manager) dispatch(gen uint64, t Transport, f Frame) {
	msg, err := protocol.Decode(f.Data)
	if err != nil {
		m.logger.Warn("discarding malformed frame", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		m.mu.Lock()
		stale := gen != m.gen
		sender := m.principal
		m.mu.Unlock()
		if stale {
			return
		}
		// Echo the probe timestamp so the peer can measure round trip.
		data, err := protocol.Pong(msg, sender).Encode()
		if err == nil {
			if err := t.Send(data); err != nil {
				m.logger.Warn("failed to answer liveness probe", "error", err)
			}
		}

	case protocol.TypePong:
		m.logger.Debug("liveness probe answered",
			"rtt_ms", time.Now().UnixMilli()-msg.Timestamp,
		)

	case protocol.TypeConnectionAck:
		var ack protocol.AckPayload
		if err := json.Unmarshal(msg.Payload, &ack); err != nil {
			m.logger.Warn("malformed connection ack", "error", err)
			return
		}
		m.mu.Lock()
		if gen == m.gen {
			m.info.ConnectionID = ack.ConnectionID
		}
		m.mu.Unlock()
		m.logger.Info("connection acknowledged", "connection_id", ack.ConnectionID)

	default:
		m.mu.Lock()
		h := m.handlers[msg.Type]
		m.mu.Unlock()
		if h == nil {
			m.logger.Debug("no handler for message type", "type", msg.Type)
			return
		}
		h(msg)
	}
}

// probe sends one liveness probe. No-ops if the session is stale or no
// longer connected, so a probe racing Disconnect loses.
func (m *manager) probe(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != Connected || m.transport == nil {
		m.mu.Unlock()
		return
	}
	t := m.transport
	sender := m.principal
	m.mu.Unlock()

	msg, err := protocol.New(protocol.TypePing, sender, nil)
	if err != nil {
		return
	}
	data, err := msg.Encode()
	if err != nil {
		return
	}
	if err := t.Send(data); err != nil {
		m.logger.Warn("heartbeat probe failed", "error", err)
	}
}

// connectionLost handles dial failures and abnormal closes: error state,
// error handler, then the policy decision. A normal closure initiated by
// the peer ends the session cleanly instead.
func (m *manager) connectionLost(gen uint64, ev CloseEvent) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	hb := m.hb
	m.hb = nil
	m.transport = nil

	var notifications []func()

	if ev.Normal() {
		m.logger.Info("server closed connection")
		m.state = Disconnected
		m.info.State = Disconnected
		notifications = append(notifications, m.stateNotificationLocked())
	} else {
		errMsg := "connection closed"
		if ev.Err != nil {
			errMsg = ev.Err.Error()
		}
		m.state = StateError
		m.info.State = StateError
		m.info.LastError = errMsg
		notifications = append(notifications, m.stateNotificationLocked())
		if h := m.onError; h != nil && ev.Err != nil {
			err := ev.Err
			notifications = append(notifications, func() { h(err) })
		}

		// Policy decision follows immediately: schedule a reconnect or give
		// up with the last error retained for display.
		if m.policy.Allow(m.info.ReconnectAttempts) {
			delay := m.policy.Delay(m.info.ReconnectAttempts)
			// Counted when the timer is armed, not when it fires, so a
			// manually triggered reconnect mid-wait cannot under-count.
			m.info.ReconnectAttempts++
			attempt := m.info.ReconnectAttempts

			m.state = Reconnecting
			m.info.State = Reconnecting
			m.reconnectTimer = time.AfterFunc(delay, func() { m.redial(gen) })
			notifications = append(notifications, m.stateNotificationLocked())

			m.logger.Warn("connection lost, reconnecting",
				"error", errMsg,
				"attempt", attempt,
				"delay", delay,
			)
		} else {
			m.state = Disconnected
			m.info.State = Disconnected
			notifications = append(notifications, m.stateNotificationLocked())

			m.logger.Error("reconnect attempts exhausted",
				"error", errMsg,
				"attempts", m.info.ReconnectAttempts,
			)
		}
	}
	m.mu.Unlock()

	if hb != nil {
		hb.Stop()
	}
	for _, n := range notifications {
		n()
	}
}

// redial runs when the backoff delay elapses.
func (m *manager) redial(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != Reconnecting {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil

	m.state = Connecting
	m.info.State = Connecting
	t := m.newTransport(m.logger)
	m.transport = t
	target := m.dialURLLocked()
	attempt := m.info.ReconnectAttempts
	notify := m.stateNotificationLocked()
	m.mu.Unlock()

	notify()

	m.logger.Info("reconnecting", "attempt", attempt)
	m.dial(gen, t, target)
}

// cancelReconnectLocked stops a pending reconnect timer. Caller holds m.mu.
func (m *manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}
