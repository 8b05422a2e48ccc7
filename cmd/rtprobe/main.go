// rtprobe connects to a realtime server as a given user and logs every
// event it receives. It is the main manual testing tool for the client.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/artlane/realtime/internal/auth"
	"github.com/artlane/realtime/internal/config"
	"github.com/artlane/realtime/internal/connection"
	"github.com/artlane/realtime/internal/journal"
	"github.com/artlane/realtime/internal/protocol"
	"github.com/artlane/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/client.local.yaml", "path to config file")
	userID := flag.String("user", "", "user id to connect as (required)")
	flag.Parse()

	if *userID == "" {
		slog.Error("missing required -user flag")
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting rtprobe",
		"version", version.Version,
		"commit", version.Commit,
		"endpoint", cfg.Realtime.Endpoint,
		"user_id", *userID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Resolve the auth token
	token, err := tokenSource(cfg.Auth).Token(ctx)
	if err != nil {
		logger.Error("failed to resolve auth token", "error", err)
		os.Exit(1)
	}

	mgr := connection.NewManager(managerConfig(cfg.Realtime), logger)

	// Optional event journal
	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Journal.Postgres.Host,
			"database", cfg.Journal.Postgres.Name,
		)
		pool, err := journal.Connect(ctx, cfg.Journal.Postgres)
		if err != nil {
			logger.Error("failed to connect to journal database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		jnl = journal.New(cfg.Journal, pool, logger)
		if err := jnl.Start(ctx); err != nil {
			logger.Error("failed to start journal", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			jnl.Stop(stopCtx)
		}()
	}

	registerHandlers(mgr, jnl, logger)

	mgr.OnStateChange(func(info connection.Info) {
		logger.Info("connection state changed",
			"state", info.State,
			"attempts", info.ReconnectAttempts,
			"connection_id", info.ConnectionID,
		)
	})
	mgr.OnError(func(err error) {
		logger.Warn("connection error", "error", err)
	})

	if err := mgr.Connect(*userID, token); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	go announcePresence(ctx, mgr, *userID, logger)

	logger.Info("rtprobe running")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	mgr.Disconnect()
	logger.Info("rtprobe stopped")
}

// newLogger builds the process logger from config. Disabled logging sends
// everything to io.Discard rather than changing call sites.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	if !cfg.LoggingEnabled() {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// tokenSource picks the token source from config. An inline token wins over
// a token file; with neither set we fall back to the REALTIME_TOKEN variable.
func tokenSource(cfg config.AuthConfig) auth.TokenSource {
	if cfg.Token != "" {
		return auth.Static(cfg.Token)
	}
	if cfg.TokenPath != "" {
		return auth.FileSource{Path: cfg.TokenPath}
	}
	return auth.EnvSource("REALTIME_TOKEN")
}

func managerConfig(cfg config.RealtimeConfig) connection.Config {
	return connection.Config{
		Endpoint:             cfg.Endpoint,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		HeartbeatInterval:    cfg.HeartbeatInterval,
		QueueCapacity:        cfg.QueueCapacity,
		WriteTimeout:         cfg.WriteTimeout,
		HandshakeTimeout:     cfg.HandshakeTimeout,
	}
}

// announcePresence periodically reports this session as online. Updates
// produced while the connection is down are queued and flushed on reconnect.
func announcePresence(ctx context.Context, mgr connection.Manager, userID string, logger *slog.Logger) {
	sessionID := uuid.NewString()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sent := mgr.Send(protocol.TypePresenceUpdate, map[string]any{
			"userId":    userID,
			"sessionId": sessionID,
			"online":    true,
		})
		if !sent {
			logger.Debug("presence update queued", "session_id", sessionID)
		}
	}
}

// registerHandlers logs every event type and feeds the journal when enabled.
func registerHandlers(mgr connection.Manager, jnl *journal.Journal, logger *slog.Logger) {
	record := func(name string) connection.Handler {
		return func(msg protocol.Message) {
			logger.Info("event received",
				"kind", name,
				"sender_id", msg.SenderID,
				"payload_bytes", len(msg.Payload),
			)
			if jnl != nil {
				jnl.Record(msg, time.Now())
			}
		}
	}

	mgr.OnProgress(record("progress"))
	mgr.OnCollectionUpdate(record("collection"))
	mgr.OnNotification(record("notification"))
	mgr.OnPresence(record("presence"))
	mgr.OnStatus(record("status"))
}
