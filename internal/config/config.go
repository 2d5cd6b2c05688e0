package config

import (
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Engine    EngineConfig    `yaml:"engine"`
	Providers ProvidersConfig `yaml:"providers"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// RedisConfig holds Redis connection settings. Redis backs the in-flight
// locks held around asynchronous provider round-trips.
type RedisConfig struct {
	Addr        string        `yaml:"addr"         env:"REDIS_ADDR"         env-default:"localhost:6379"`
	Password    string        `yaml:"password"     env:"REDIS_PASSWORD"`
	DB          int           `yaml:"db"           env:"REDIS_DB"           env-default:"0"`
	InflightTTL time.Duration `yaml:"inflight_ttl" env:"REDIS_INFLIGHT_TTL" env-default:"5m"`
}

// AuthConfig holds settings for verifying bearer tokens on the ingest API.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET" env-required:"true"`
	JWTIssuer string `yaml:"jwt_issuer" env:"AUTH_JWT_ISSUER" env-default:"coursekit"`
}

// EngineConfig holds workflow engine tuning parameters.
type EngineConfig struct {
	Workers         int           `yaml:"workers"          env:"ENGINE_WORKERS"          env-default:"4"`
	QueueSize       int           `yaml:"queue_size"       env:"ENGINE_QUEUE_SIZE"       env-default:"256"`
	MaxAttempts     int           `yaml:"max_attempts"     env:"ENGINE_MAX_ATTEMPTS"     env-default:"5"`
	BaseBackoff     time.Duration `yaml:"base_backoff"     env:"ENGINE_BASE_BACKOFF"     env-default:"1s"`
	MaxBackoff      time.Duration `yaml:"max_backoff"      env:"ENGINE_MAX_BACKOFF"      env-default:"1m"`
	HandlerDeadline time.Duration `yaml:"handler_deadline" env:"ENGINE_HANDLER_DEADLINE" env-default:"30s"`
}

// ProvidersConfig groups credentials for the external vendors the
// workflow handlers call out to. A provider with no credentials is
// simply not wired; the handlers that need it are not registered.
type ProvidersConfig struct {
	Deepgram   DeepgramConfig   `yaml:"deepgram"`
	ConvertKit ConvertKitConfig `yaml:"convertkit"`
	Claude     ClaudeConfig     `yaml:"claude"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Slack      SlackConfig      `yaml:"slack"`
}

// DeepgramConfig holds transcription provider settings. CallbackURL is
// the publicly reachable endpoint the vendor posts finished transcripts to.
type DeepgramConfig struct {
	APIKey      string `yaml:"api_key"      env:"DEEPGRAM_API_KEY"`
	CallbackURL string `yaml:"callback_url" env:"DEEPGRAM_CALLBACK_URL"`
}

// ConvertKitConfig holds email list provider settings.
type ConvertKitConfig struct {
	APIKey string `yaml:"api_key" env:"CONVERTKIT_API_KEY"`
}

// ClaudeConfig holds chat completion provider settings.
type ClaudeConfig struct {
	APIKey string `yaml:"api_key" env:"CLAUDE_API_KEY"`
	Model  string `yaml:"model"   env:"CLAUDE_MODEL"`
}

// StripeConfig holds merchant provider settings.
type StripeConfig struct {
	APIKey string `yaml:"api_key" env:"STRIPE_API_KEY"`
}

// SlackConfig holds ops messaging settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" env:"SLACK_WEBHOOK_URL"`
	OpsChannel string `yaml:"ops_channel" env:"SLACK_OPS_CHANNEL" env-default:"#ops"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
