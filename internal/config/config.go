package config

import "time"

// Config is the root configuration for a langlinkd instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Backend   BackendConfig   `yaml:"backend"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Journal   JournalConfig   `yaml:"journal"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// BackendConfig holds language service settings.
type BackendConfig struct {
	URL              string        `yaml:"url"` // e.g. wss://host/xtext-service
	Subprotocol      string        `yaml:"subprotocol"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ConnectOnStart   *bool         `yaml:"connect_on_start"` // Defaults to true
}

// LifecycleConfig holds connection lifecycle timing.
type LifecycleConfig struct {
	OpenTimeout    time.Duration   `yaml:"open_timeout"`
	PingPeriod     time.Duration   `yaml:"ping_period"`
	IdleTimeout    time.Duration   `yaml:"idle_timeout"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	Backoff        []time.Duration `yaml:"backoff"`
	KeepAlive      bool            `yaml:"keep_alive"`
}

// JournalConfig holds the transition journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
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

// MetricsConfig holds Prometheus metrics and control endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ShouldConnectOnStart reports whether CONNECT is issued at startup.
func (b BackendConfig) ShouldConnectOnStart() bool {
	return b.ConnectOnStart == nil || *b.ConnectOnStart
}
