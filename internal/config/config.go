// Package config loads and validates the YAML configuration for realtime
// clients. Values support ${VAR} environment expansion.
package config

import "time"

// ClientConfig is the root configuration for a realtime client instance.
type ClientConfig struct {
	Realtime RealtimeConfig `yaml:"realtime"`
	Auth     AuthConfig     `yaml:"auth"`
	Journal  JournalConfig  `yaml:"journal"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RealtimeConfig holds connection manager settings.
type RealtimeConfig struct {
	// Endpoint is the WebSocket URL of the realtime server.
	Endpoint string `yaml:"endpoint"`

	// ReconnectBaseDelay is the backoff base; the delay doubles per attempt
	// up to the 30s cap.
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`

	// MaxReconnectAttempts caps scheduled reconnects. 0 means unlimited.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	// HeartbeatInterval is the time between liveness probes.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// QueueCapacity bounds the outbound queue.
	QueueCapacity int `yaml:"queue_capacity"`

	WriteTimeout     time.Duration `yaml:"write_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// AuthConfig tells the client where to obtain its auth token. Token wins
// over TokenPath when both are set; both empty means connect unauthenticated.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenPath string `yaml:"token_path"`
}

// JournalConfig holds the optional inbound event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Postgres      DBConfig      `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Enabled switches client logging on. Defaults to true; set `enabled:
	// false` explicitly to silence the client.
	Enabled *bool  `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// LoggingEnabled resolves the tri-state Enabled flag.
func (l LoggingConfig) LoggingEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}
