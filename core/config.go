package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultRetryBudget     = 1
	DefaultCooldownSeconds = 10
	DefaultLockTTLSeconds  = 30
)

type RefreshConfig struct {
	// RetryBudget bounds how many refresh-and-retry cycles one dispatch may run.
	RetryBudget     int `koanf:"retry_budget" mapstructure:"retry_budget"`
	CooldownSeconds int `koanf:"cooldown_seconds" mapstructure:"cooldown_seconds"`
	LockTTLSeconds  int `koanf:"lock_ttl_seconds" mapstructure:"lock_ttl_seconds"`
}

func (c RefreshConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func (c RefreshConfig) LockTTL() time.Duration {
	if c.LockTTLSeconds <= 0 {
		return DefaultLockTTLSeconds * time.Second
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	Refresh     RefreshConfig `koanf:"refresh" mapstructure:"refresh"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "integrations",
		Refresh: RefreshConfig{
			RetryBudget:     DefaultRetryBudget,
			CooldownSeconds: DefaultCooldownSeconds,
			LockTTLSeconds:  DefaultLockTTLSeconds,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Refresh.RetryBudget < 1 {
		return fmt.Errorf("core: refresh.retry_budget must be at least 1")
	}
	if c.Refresh.CooldownSeconds < 0 {
		return fmt.Errorf("core: refresh.cooldown_seconds must not be negative")
	}
	if c.Refresh.LockTTLSeconds < 0 {
		return fmt.Errorf("core: refresh.lock_ttl_seconds must not be negative")
	}
	return nil
}
