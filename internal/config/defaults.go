package config

import (
	"time"

	"github.com/rickgao/langlink/internal/lifecycle"
)

// Default values for optional configuration fields.
const (
	DefaultInstanceID       = "langlinkd"
	DefaultSubprotocol      = "tools.refinery.language.web.xtext.v1"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultOpenTimeout      = 10 * time.Second
	DefaultPingPeriod       = 10 * time.Second
	DefaultIdleTimeout      = 5 * time.Minute
	DefaultRequestTimeout   = 5 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultBatchSize        = 100
	DefaultFlushInterval    = 1 * time.Second
	DefaultBufferSize       = 1000
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
)

// DefaultBackoff is the retry table used when lifecycle.backoff is unset.
var DefaultBackoff = []time.Duration(lifecycle.DefaultBackoff)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Backend defaults
	if c.Backend.Subprotocol == "" {
		c.Backend.Subprotocol = DefaultSubprotocol
	}
	if c.Backend.HandshakeTimeout == 0 {
		c.Backend.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Backend.WriteTimeout == 0 {
		c.Backend.WriteTimeout = DefaultWriteTimeout
	}

	// Lifecycle defaults
	if c.Lifecycle.OpenTimeout == 0 {
		c.Lifecycle.OpenTimeout = DefaultOpenTimeout
	}
	if c.Lifecycle.PingPeriod == 0 {
		c.Lifecycle.PingPeriod = DefaultPingPeriod
	}
	if c.Lifecycle.IdleTimeout == 0 {
		c.Lifecycle.IdleTimeout = DefaultIdleTimeout
	}
	if c.Lifecycle.RequestTimeout == 0 {
		c.Lifecycle.RequestTimeout = DefaultRequestTimeout
	}
	if len(c.Lifecycle.Backoff) == 0 {
		c.Lifecycle.Backoff = append([]time.Duration(nil), DefaultBackoff...)
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
