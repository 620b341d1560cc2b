package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Backend.URL == "" {
		return errors.New("backend.url is required")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("backend.url scheme must be ws or wss, got %q", u.Scheme)
	}

	if c.Lifecycle.OpenTimeout <= 0 {
		return errors.New("lifecycle.open_timeout must be > 0")
	}
	if c.Lifecycle.PingPeriod <= 0 {
		return errors.New("lifecycle.ping_period must be > 0")
	}
	if c.Lifecycle.IdleTimeout <= 0 {
		return errors.New("lifecycle.idle_timeout must be > 0")
	}
	if c.Lifecycle.RequestTimeout <= 0 {
		return errors.New("lifecycle.request_timeout must be > 0")
	}
	if len(c.Lifecycle.Backoff) == 0 {
		return errors.New("lifecycle.backoff must not be empty")
	}
	for i, d := range c.Lifecycle.Backoff {
		if d < 0 {
			return fmt.Errorf("lifecycle.backoff[%d] must be >= 0, got %s", i, d)
		}
		if i > 0 && d < c.Lifecycle.Backoff[i-1] {
			return fmt.Errorf("lifecycle.backoff[%d] (%s) must not be shorter than backoff[%d] (%s)",
				i, d, i-1, c.Lifecycle.Backoff[i-1])
		}
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
		if c.Journal.FlushInterval <= 0 {
			return errors.New("journal.flush_interval must be > 0")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", level)
	}
}
