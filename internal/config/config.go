// Package config loads and validates the relay configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the relay process.
type Config struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Store  StoreConfig  `yaml:"store" json:"store"`
	Relay  RelayConfig  `yaml:"relay" json:"relay"`
	Log    LogConfig    `yaml:"log" json:"log"`
	Trace  TraceConfig  `yaml:"trace" json:"trace"`
}

// ServerConfig configures the HTTP/websocket listener.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig selects and configures the message store driver.
type StoreConfig struct {
	// Driver is one of "postgres", "sqlite", or "memory".
	Driver string `yaml:"driver" json:"driver"`

	// DSN is the postgres connection string. Supports env expansion, e.g.
	// "postgres://relay:${RELAY_DB_PASSWORD}@db:5432/relay".
	DSN string `yaml:"dsn" json:"dsn"`

	// Path is the sqlite database file (":memory:" for ephemeral).
	Path string `yaml:"path" json:"path"`

	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// RelayConfig tunes the fan-out core.
type RelayConfig struct {
	// MaxBatch caps message ids per store round trip on the read-receipt
	// path; larger batches are chunked.
	MaxBatch int `yaml:"max_batch" json:"max_batch"`

	// SendBuffer is the per-connection outbound queue length. A connection
	// that cannot drain this buffer has further deliveries dropped.
	SendBuffer int `yaml:"send_buffer" json:"send_buffer"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// TraceConfig configures OpenTelemetry tracing. Tracing is disabled when
// Endpoint is empty.
type TraceConfig struct {
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	Environment  string  `yaml:"environment" json:"environment"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
	Insecure     bool    `yaml:"insecure" json:"insecure"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Store: StoreConfig{
			Driver:          "memory",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  10 * time.Second,
		},
		Relay: RelayConfig{MaxBatch: 256, SendBuffer: 64},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver must be one of memory, postgres, sqlite; got %q", c.Store.Driver)
	}

	if c.Relay.MaxBatch <= 0 {
		return fmt.Errorf("relay.max_batch must be positive, got %d", c.Relay.MaxBatch)
	}
	if c.Relay.SendBuffer <= 0 {
		return fmt.Errorf("relay.send_buffer must be positive, got %d", c.Relay.SendBuffer)
	}

	if c.Trace.SamplingRate < 0 || c.Trace.SamplingRate > 1 {
		return fmt.Errorf("trace.sampling_rate must be in [0, 1], got %v", c.Trace.SamplingRate)
	}
	return nil
}
