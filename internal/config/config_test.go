package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validEnv sets the minimum required env vars for a valid config.
func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "postgres://u:p@localhost:5432/testdb")
	t.Setenv("AUTH_JWT_SECRET", "this-is-a-very-long-jwt-secret-for-testing-32+")
}

func writeYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

const validYAML = `
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: "5s"

database:
  dsn: "postgres://u:p@localhost:5432/testdb"
  max_conns: 10
  min_conns: 2

redis:
  addr: "redis:6380"
  inflight_ttl: "2m"

auth:
  jwt_secret: "this-is-a-very-long-jwt-secret-for-testing-32+"
  jwt_issuer: "coursekit-test"

engine:
  workers: 8
  max_attempts: 3
  base_backoff: "500ms"
  max_backoff: "30s"

providers:
  deepgram:
    api_key: "dg-key"
    callback_url: "https://api.example.com/webhooks/transcription"
  slack:
    ops_channel: "#content-ops"
`

// -----------------------------------------------------------------------------
// Load
// -----------------------------------------------------------------------------

func TestLoad_EnvOnly_Defaults(t *testing.T) {
	validEnv(t)
	t.Setenv("CONFIG_PATH", "") // no file: fall back to env + defaults

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Database.MaxConns != 25 {
		t.Errorf("Database.MaxConns = %d, want default 25", cfg.Database.MaxConns)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want default localhost:6379", cfg.Redis.Addr)
	}
	if cfg.Redis.InflightTTL != 5*time.Minute {
		t.Errorf("Redis.InflightTTL = %v, want 5m", cfg.Redis.InflightTTL)
	}
	if cfg.Auth.JWTIssuer != "coursekit" {
		t.Errorf("Auth.JWTIssuer = %q, want default coursekit", cfg.Auth.JWTIssuer)
	}
	if cfg.Engine.Workers != 4 {
		t.Errorf("Engine.Workers = %d, want default 4", cfg.Engine.Workers)
	}
	if cfg.Engine.MaxAttempts != 5 {
		t.Errorf("Engine.MaxAttempts = %d, want default 5", cfg.Engine.MaxAttempts)
	}
	if cfg.Engine.HandlerDeadline != 30*time.Second {
		t.Errorf("Engine.HandlerDeadline = %v, want 30s", cfg.Engine.HandlerDeadline)
	}
	if cfg.Providers.Slack.OpsChannel != "#ops" {
		t.Errorf("Providers.Slack.OpsChannel = %q, want default #ops", cfg.Providers.Slack.OpsChannel)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want info/json defaults", cfg.Log)
	}
}

func TestLoad_FromYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), validYAML)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Errorf("Server = %s:%d, want 127.0.0.1:9090", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Errorf("Redis.Addr = %q, want redis:6380", cfg.Redis.Addr)
	}
	if cfg.Engine.Workers != 8 || cfg.Engine.MaxAttempts != 3 {
		t.Errorf("Engine = %+v, want workers 8 attempts 3", cfg.Engine)
	}
	if cfg.Engine.BaseBackoff != 500*time.Millisecond {
		t.Errorf("Engine.BaseBackoff = %v, want 500ms", cfg.Engine.BaseBackoff)
	}
	if cfg.Providers.Deepgram.APIKey != "dg-key" {
		t.Errorf("Deepgram.APIKey = %q, want dg-key", cfg.Providers.Deepgram.APIKey)
	}
	if cfg.Providers.Slack.OpsChannel != "#content-ops" {
		t.Errorf("Slack.OpsChannel = %q, want #content-ops", cfg.Providers.Slack.OpsChannel)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), validYAML)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("ENGINE_WORKERS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Engine.Workers != 2 {
		t.Errorf("Engine.Workers = %d, want env override 2", cfg.Engine.Workers)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	validEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("Load() with missing explicit CONFIG_PATH should fail")
	}
}

func TestLoad_MissingDSN(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("AUTH_JWT_SECRET", "this-is-a-very-long-jwt-secret-for-testing-32+")

	if _, err := Load(); err == nil {
		t.Fatal("Load() without DATABASE_DSN should fail")
	}
}

// -----------------------------------------------------------------------------
// Validate
// -----------------------------------------------------------------------------

func baseConfig() Config {
	return Config{
		Auth: AuthConfig{JWTSecret: strings.Repeat("s", 32)},
		Engine: EngineConfig{
			Workers:         4,
			QueueSize:       256,
			MaxAttempts:     5,
			BaseBackoff:     time.Second,
			MaxBackoff:      time.Minute,
			HandlerDeadline: 30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "short" },
			wantErr: "jwt_secret",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Engine.Workers = 0 },
			wantErr: "workers",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Engine.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name:    "backoff inverted",
			mutate:  func(c *Config) { c.Engine.MaxBackoff = 100 * time.Millisecond },
			wantErr: "max_backoff",
		},
		{
			name:    "zero deadline",
			mutate:  func(c *Config) { c.Engine.HandlerDeadline = 0 },
			wantErr: "handler_deadline",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "log.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := baseConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
