package config

import (
	"fmt"
	"slices"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
	}

	if err := c.Engine.validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", c.Log.Level)
	}
	if !slices.Contains([]string{"json", "text"}, strings.ToLower(c.Log.Format)) {
		return fmt.Errorf("log.format must be json or text (got %q)", c.Log.Format)
	}

	return nil
}

func (e *EngineConfig) validate() error {
	if e.Workers < 1 {
		return fmt.Errorf("workers must be >= 1 (got %d)", e.Workers)
	}
	if e.QueueSize < 1 {
		return fmt.Errorf("queue_size must be >= 1 (got %d)", e.QueueSize)
	}
	if e.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1 (got %d)", e.MaxAttempts)
	}
	if e.BaseBackoff <= 0 {
		return fmt.Errorf("base_backoff must be > 0 (got %v)", e.BaseBackoff)
	}
	if e.MaxBackoff < e.BaseBackoff {
		return fmt.Errorf("max_backoff must be >= base_backoff (got %v < %v)", e.MaxBackoff, e.BaseBackoff)
	}
	if e.HandlerDeadline <= 0 {
		return fmt.Errorf("handler_deadline must be > 0 (got %v)", e.HandlerDeadline)
	}
	return nil
}
