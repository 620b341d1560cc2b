package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/langlink/internal/lifecycle"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: editor-1
backend:
  url: wss://language.example.com/xtext-service
  handshake_timeout: 3s
lifecycle:
  ping_period: 15s
  backoff: [100ms, 2s, 1m]
  keep_alive: true
journal:
  enabled: true
  database:
    host: localhost
    port: 5433
    name: langlink
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "editor-1" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "editor-1")
	}
	if cfg.Backend.URL != "wss://language.example.com/xtext-service" {
		t.Errorf("Backend.URL = %q, want %q", cfg.Backend.URL, "wss://language.example.com/xtext-service")
	}
	if cfg.Backend.HandshakeTimeout != 3*time.Second {
		t.Errorf("Backend.HandshakeTimeout = %v, want %v", cfg.Backend.HandshakeTimeout, 3*time.Second)
	}
	if cfg.Lifecycle.PingPeriod != 15*time.Second {
		t.Errorf("Lifecycle.PingPeriod = %v, want %v", cfg.Lifecycle.PingPeriod, 15*time.Second)
	}
	want := []time.Duration{100 * time.Millisecond, 2 * time.Second, time.Minute}
	if len(cfg.Lifecycle.Backoff) != len(want) {
		t.Fatalf("Lifecycle.Backoff = %v, want %v", cfg.Lifecycle.Backoff, want)
	}
	for i := range want {
		if cfg.Lifecycle.Backoff[i] != want[i] {
			t.Errorf("Lifecycle.Backoff[%d] = %v, want %v", i, cfg.Lifecycle.Backoff[i], want[i])
		}
	}
	if !cfg.Lifecycle.KeepAlive {
		t.Error("Lifecycle.KeepAlive = false, want true")
	}
	if cfg.Journal.Database.Port != 5433 {
		t.Errorf("Journal.Database.Port = %d, want %d", cfg.Journal.Database.Port, 5433)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BACKEND_HOST", "lsp.internal:8080")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
backend:
  url: ws://${TEST_BACKEND_HOST}/xtext-service
journal:
  database:
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.URL != "ws://lsp.internal:8080/xtext-service" {
		t.Errorf("Backend.URL = %q, want %q", cfg.Backend.URL, "ws://lsp.internal:8080/xtext-service")
	}
	if cfg.Journal.Database.Password != "secret123" {
		t.Errorf("Journal.Database.Password = %q, want %q", cfg.Journal.Database.Password, "secret123")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.HasPrefix(err.Error(), "read config file") {
		t.Errorf("error = %q, want read config file prefix", err.Error())
	}
	if !strings.Contains(err.Error(), "missing.yaml") {
		t.Errorf("error = %q, want it to name the file", err.Error())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeTempFile(t, "lifecycle:\n  ping_periood: 5s\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.HasPrefix(err.Error(), "parse config file "+path) {
		t.Errorf("error = %q, want parse config file %s prefix", err.Error(), path)
	}
	if !strings.Contains(err.Error(), "ping_periood") {
		t.Errorf("error = %q, want it to name the unknown key", err.Error())
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeTempFile(t, "")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Lifecycle.PingPeriod != DefaultPingPeriod {
		t.Errorf("Lifecycle.PingPeriod = %v, want default %v", cfg.Lifecycle.PingPeriod, DefaultPingPeriod)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
backend:
  url: ws://localhost:1313/xtext-service
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Instance.ID != DefaultInstanceID {
		t.Errorf("Instance.ID = %q, want default %q", cfg.Instance.ID, DefaultInstanceID)
	}
	if cfg.Backend.Subprotocol != DefaultSubprotocol {
		t.Errorf("Backend.Subprotocol = %q, want default %q", cfg.Backend.Subprotocol, DefaultSubprotocol)
	}
	if cfg.Lifecycle.OpenTimeout != DefaultOpenTimeout {
		t.Errorf("Lifecycle.OpenTimeout = %v, want default %v", cfg.Lifecycle.OpenTimeout, DefaultOpenTimeout)
	}
	if cfg.Lifecycle.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("Lifecycle.IdleTimeout = %v, want default %v", cfg.Lifecycle.IdleTimeout, DefaultIdleTimeout)
	}
	if len(cfg.Lifecycle.Backoff) != len(lifecycle.DefaultBackoff) {
		t.Fatalf("Lifecycle.Backoff = %v, want default %v", cfg.Lifecycle.Backoff, lifecycle.DefaultBackoff)
	}
	for i, d := range lifecycle.DefaultBackoff {
		if cfg.Lifecycle.Backoff[i] != d {
			t.Errorf("Lifecycle.Backoff[%d] = %v, want %v", i, cfg.Lifecycle.Backoff[i], d)
		}
	}
	if cfg.Journal.Database.Port != DefaultDBPort {
		t.Errorf("Journal.Database.Port = %d, want default %d", cfg.Journal.Database.Port, DefaultDBPort)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if !cfg.Backend.ShouldConnectOnStart() {
		t.Error("ShouldConnectOnStart = false, want default true")
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "instance:\n  id: x\n")

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	want := "validate config " + path + ": backend.url is required"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func validConfig() Config {
	return Config{
		Instance: InstanceConfig{ID: "test"},
		Backend:  BackendConfig{URL: "ws://localhost:1313/xtext-service"},
		Lifecycle: LifecycleConfig{
			OpenTimeout:    time.Second,
			PingPeriod:     time.Second,
			IdleTimeout:    time.Minute,
			RequestTimeout: time.Second,
			Backoff:        []time.Duration{time.Second},
		},
		Metrics: MetricsConfig{Port: 9090},
		Log:     LogConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing backend url",
			mutate:  func(c *Config) { c.Backend.URL = "" },
			wantErr: "backend.url is required",
		},
		{
			name:    "http backend url",
			mutate:  func(c *Config) { c.Backend.URL = "http://localhost/xtext-service" },
			wantErr: `backend.url scheme must be ws or wss, got "http"`,
		},
		{
			name:    "empty backoff",
			mutate:  func(c *Config) { c.Lifecycle.Backoff = nil },
			wantErr: "lifecycle.backoff must not be empty",
		},
		{
			name:    "decreasing backoff",
			mutate:  func(c *Config) { c.Lifecycle.Backoff = []time.Duration{time.Second, time.Millisecond} },
			wantErr: "lifecycle.backoff[1] (1ms) must not be shorter than backoff[0] (1s)",
		},
		{
			name:    "zero ping period",
			mutate:  func(c *Config) { c.Lifecycle.PingPeriod = 0 },
			wantErr: "lifecycle.ping_period must be > 0",
		},
		{
			name: "journal missing password",
			mutate: func(c *Config) {
				c.Journal = JournalConfig{
					Enabled:  true,
					Database: DBConfig{Host: "localhost", Name: "db", User: "user"},
				}
			},
			wantErr: "journal.database.password is required",
		},
		{
			name: "journal min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Journal = JournalConfig{
					Enabled:   true,
					Database:  DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 2, MinConns: 5},
					BatchSize: 10, BufferSize: 10,
				}
			},
			wantErr: "journal.database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name: "journal negative flush interval",
			mutate: func(c *Config) {
				c.Journal = JournalConfig{
					Enabled:       true,
					Database:      DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 2, MinConns: 1},
					BatchSize:     10,
					BufferSize:    10,
					FlushInterval: -time.Second,
				}
			},
			wantErr: "journal.flush_interval must be > 0",
		},
		{
			name:    "journal disabled skips database checks",
			mutate:  func(c *Config) { c.Journal = JournalConfig{Enabled: false} },
			wantErr: "",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: `log.level must be one of debug, info, warn, error, got "verbose"`,
		},
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
