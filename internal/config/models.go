package config

import "time"

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Presence  PresenceConfig
	Ledger    LedgerConfig
	Events    EventsConfig
	Discovery DiscoveryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Origin hosts accepted on websocket upgrades, "*" for any
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type WebSocketConfig struct {
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type RateLimitConfig struct {
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	MessageBurst      int     `mapstructure:"message_burst"`
	MaxViolations     int     `mapstructure:"max_violations"`
	UpgradesPerSecond float64 `mapstructure:"upgrades_per_second"`
	UpgradeBurst      int     `mapstructure:"upgrade_burst"`
}

type PresenceConfig struct {
	// Zero keeps offline identities until their room closes.
	OfflineRetention time.Duration `mapstructure:"offline_retention"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

type LedgerConfig struct {
	DSN            string        `mapstructure:"dsn"`
	EventRetention time.Duration `mapstructure:"event_retention"`
}

type EventsConfig struct {
	BufferSize    int    `mapstructure:"buffer_size"`
	NATSURL       string `mapstructure:"nats_url"` // empty disables NATS
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type DiscoveryConfig struct {
	Enabled  bool
	Instance string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}
