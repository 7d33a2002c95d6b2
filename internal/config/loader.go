package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.ping_period", "54s")
	v.SetDefault("websocket.max_message_size", 1024*1024)
	v.SetDefault("websocket.send_buffer", 512)

	v.SetDefault("ratelimit.messages_per_second", 100)
	v.SetDefault("ratelimit.message_burst", 200)
	v.SetDefault("ratelimit.max_violations", 1000)
	v.SetDefault("ratelimit.upgrades_per_second", 5)
	v.SetDefault("ratelimit.upgrade_burst", 20)

	v.SetDefault("presence.offline_retention", "0s")
	v.SetDefault("presence.sweep_interval", "1m")

	v.SetDefault("ledger.dsn", ":memory:")
	v.SetDefault("ledger.event_retention", "168h")

	v.SetDefault("events.buffer_size", 1024)
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "scribble")

	v.SetDefault("discovery.enabled", false)
	v.SetDefault("discovery.instance", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from defaults, an optional YAML file named
// fileName and SCRIBBLE_* environment variables, in increasing priority.
// paths defaults to the working directory.
func Load(logger *slog.Logger, fileName string, paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("SCRIBBLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logger.Debug("config file not found, using defaults and environment", "name", fileName)
	} else {
		logger.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// PORT is the conventional platform override
	if port := os.Getenv("PORT"); port != "" {
		if _, set := os.LookupEnv("SCRIBBLE_SERVER_ADDRESS"); !set {
			cfg.Server.Address = ":" + port
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	_, err := c.Port()
	check(err == nil, "server.address %q: %v", c.Server.Address, err)
	check(c.Server.ShutdownTimeout > 0, "server.shutdown_timeout must be positive")

	check(c.WebSocket.WriteWait > 0, "websocket.write_wait must be positive")
	check(c.WebSocket.PongWait > 0, "websocket.pong_wait must be positive")
	check(c.WebSocket.PingPeriod > 0 && c.WebSocket.PingPeriod < c.WebSocket.PongWait,
		"websocket.ping_period must be positive and shorter than pong_wait")
	check(c.WebSocket.MaxMessageSize > 0, "websocket.max_message_size must be positive")
	check(c.WebSocket.SendBuffer > 0, "websocket.send_buffer must be positive")

	check(c.RateLimit.MessagesPerSecond > 0, "ratelimit.messages_per_second must be positive")
	check(c.RateLimit.MessageBurst > 0, "ratelimit.message_burst must be positive")
	check(c.RateLimit.MaxViolations >= 0, "ratelimit.max_violations must not be negative")
	check(c.RateLimit.UpgradesPerSecond > 0, "ratelimit.upgrades_per_second must be positive")
	check(c.RateLimit.UpgradeBurst > 0, "ratelimit.upgrade_burst must be positive")

	check(c.Presence.OfflineRetention >= 0, "presence.offline_retention must not be negative")
	check(c.Presence.SweepInterval > 0, "presence.sweep_interval must be positive")
	check(c.Ledger.DSN != "", "ledger.dsn must be set")
	check(c.Ledger.EventRetention >= 0, "ledger.event_retention must not be negative")
	check(c.Events.BufferSize > 0, "events.buffer_size must be positive")
	check(c.Events.NATSURL == "" || c.Events.SubjectPrefix != "", "events.subject_prefix is required with nats_url")

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// Port returns the numeric port of the listen address.
func (c *Config) Port() (int, error) {
	_, port, err := net.SplitHostPort(c.Server.Address)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return 0, fmt.Errorf("bad port %q", port)
	}
	return n, nil
}
