package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultEventsLimit is the read limit applied when the caller does not
	// supply one.
	DefaultEventsLimit = 50

	// MaxEventsLimit is the hard cap applied to every read regardless of the
	// requested limit.
	MaxEventsLimit = 100
)

type ServerConfig struct {
	Addr         string        `koanf:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Driver      string        `koanf:"driver" mapstructure:"driver"`
	DSN         string        `koanf:"dsn" mapstructure:"dsn"`
	Debug       bool          `koanf:"debug" mapstructure:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
}

// Implements the go-persistence-bun config contract.

func (c DatabaseConfig) GetDebug() bool { return c.Debug }

func (c DatabaseConfig) GetDriver() string { return c.Driver }

func (c DatabaseConfig) GetServer() string { return c.DSN }

func (c DatabaseConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return time.Second
	}
	return c.PingTimeout
}

func (c DatabaseConfig) GetOtelIdentifier() string { return "repowatch" }

type WebhookConfig struct {
	// Secret is the shared webhook secret. An empty secret disables
	// signature verification; this is the documented permissive development
	// default, not an oversight.
	Secret       string `koanf:"secret" mapstructure:"secret"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

type EventsConfig struct {
	DefaultLimit int `koanf:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `koanf:"max_limit" mapstructure:"max_limit"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Server      ServerConfig   `koanf:"server" mapstructure:"server"`
	Database    DatabaseConfig `koanf:"database" mapstructure:"database"`
	Webhook     WebhookConfig  `koanf:"webhook" mapstructure:"webhook"`
	Events      EventsConfig   `koanf:"events" mapstructure:"events"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "repowatch",
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:      "sqlite3",
			DSN:         "file:repowatch.db?_foreign_keys=on",
			PingTimeout: time.Second,
		},
		Webhook: WebhookConfig{
			MaxBodyBytes: 1 << 20,
		},
		Events: EventsConfig{
			DefaultLimit: DefaultEventsLimit,
			MaxLimit:     MaxEventsLimit,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("core: server.addr is required")
	}
	switch strings.TrimSpace(c.Database.Driver) {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("core: unsupported database.driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("core: database.dsn is required")
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		return fmt.Errorf("core: webhook.max_body_bytes must be positive")
	}
	if c.Events.DefaultLimit <= 0 {
		return fmt.Errorf("core: events.default_limit must be positive")
	}
	if c.Events.MaxLimit < c.Events.DefaultLimit {
		return fmt.Errorf("core: events.max_limit must be at least events.default_limit")
	}
	return nil
}
