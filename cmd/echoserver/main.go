// echoserver is a small development server for exercising realtime clients
// locally. It acks every connection, answers ping probes, and emits sample
// events on a timer. Not intended for production use.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/artlane/realtime/internal/protocol"
	"github.com/artlane/realtime/internal/version"
)

const serverID = "echoserver"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	emitEvery := flag.Duration("emit", 5*time.Second, "sample event interval (0 disables)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting echoserver",
		"version", version.Version,
		"addr", *addr,
		"emit_interval", *emitEvery,
	)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveClient(w, r, *emitEvery, logger)
	})

	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func serveClient(w http.ResponseWriter, r *http.Request, emitEvery time.Duration, logger *slog.Logger) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}
	token := r.URL.Query().Get("token")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	logger.Info("client connected",
		"user_id", userID,
		"connection_id", connID,
		"authenticated", token != "",
	)

	c := &client{
		conn:   conn,
		userID: userID,
		connID: connID,
		logger: logger.With("connection_id", connID),
	}
	c.run(emitEvery)
}

// client is one connected realtime client.
type client struct {
	conn   *websocket.Conn
	userID string
	connID string
	logger *slog.Logger

	writeMu sync.Mutex
}

func (c *client) run(emitEvery time.Duration) {
	defer c.conn.Close()

	if err := c.send(protocol.TypeConnectionAck, protocol.AckPayload{ConnectionID: c.connID}); err != nil {
		c.logger.Error("ack failed", "error", err)
		return
	}

	done := make(chan struct{})
	defer close(done)
	if emitEvery > 0 {
		go c.emitLoop(emitEvery, done)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Info("client disconnected")
			} else {
				c.logger.Warn("read failed", "error", err)
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("malformed message", "error", err)
			continue
		}

		switch msg.Type {
		case protocol.TypePing:
			// Echo the probe timestamp back so the client can measure RTT
			if err := c.sendMessage(protocol.Pong(msg, serverID)); err != nil {
				c.logger.Warn("pong failed", "error", err)
				return
			}
		default:
			// Echo everything else back to the sender
			c.logger.Debug("echoing message", "type", msg.Type)
			if err := c.sendMessage(msg); err != nil {
				c.logger.Warn("echo failed", "error", err)
				return
			}
		}
	}
}

// emitLoop sends rotating sample events until the connection ends.
func (c *client) emitLoop(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	samples := []struct {
		t       protocol.Type
		payload any
	}{
		{protocol.TypeNotification, map[string]string{"text": "sample notification"}},
		{protocol.TypeProgressUpdate, map[string]any{"taskId": "task-1", "percent": 42}},
		{protocol.TypePresenceUpdate, map[string]any{"userId": c.userID, "online": true}},
		{protocol.TypeStatusUpdate, map[string]string{"status": "ok"}},
	}

	for i := 0; ; i++ {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		s := samples[i%len(samples)]
		if err := c.send(s.t, s.payload); err != nil {
			c.logger.Debug("emit failed", "error", err)
			return
		}
	}
}

func (c *client) send(t protocol.Type, payload any) error {
	msg, err := protocol.New(t, serverID, payload)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}
	return c.sendMessage(msg)
}

func (c *client) sendMessage(msg protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
