package config

import (
	"fmt"
	"time"
)

// Config represents the daemon configuration
type Config struct {
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Pool     PoolConfig     `json:"pool" mapstructure:"pool"`
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`
	Gateway  GatewayConfig  `json:"gateway" mapstructure:"gateway"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`

	Schedules []ScheduleConfig `json:"schedules" mapstructure:"schedules"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	Console    bool   `json:"console" mapstructure:"console"`
	Pretty     bool   `json:"pretty" mapstructure:"pretty"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// PoolConfig holds session pool configuration
type PoolConfig struct {
	IdleThreshold time.Duration `json:"idle_threshold" mapstructure:"idle_threshold"`
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval"`
}

// ProviderConfig selects and configures the model backend
type ProviderConfig struct {
	Name        string   `json:"name" mapstructure:"name"` // claude, openai
	APIKeyEnv   string   `json:"api_key_env" mapstructure:"api_key_env"`
	Model       string   `json:"model" mapstructure:"model"`
	Temperature float64  `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int      `json:"max_tokens" mapstructure:"max_tokens"`
	System      string   `json:"system" mapstructure:"system"`
	GatedTools  []string `json:"gated_tools" mapstructure:"gated_tools"`
	PlanMode    bool     `json:"plan_mode" mapstructure:"plan_mode"`
}

// GatewayConfig holds the websocket gateway configuration
type GatewayConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// MetricsConfig holds the metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// ScheduleConfig is one cron-driven prompt delivery
type ScheduleConfig struct {
	Spec     string `json:"spec" mapstructure:"spec"`
	ThreadID string `json:"thread_id" mapstructure:"thread_id"`
	Prompt   string `json:"prompt" mapstructure:"prompt"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		Pool: PoolConfig{
			IdleThreshold: 30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Provider: ProviderConfig{
			Name:      "claude",
			APIKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens: 4096,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8790",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9290",
		},
	}
}

// Validate checks configuration values
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "claude", "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider.Name)
	}

	if c.Pool.IdleThreshold <= 0 {
		return fmt.Errorf("pool idle threshold must be positive")
	}
	if c.Pool.SweepInterval <= 0 {
		return fmt.Errorf("pool sweep interval must be positive")
	}
	if c.Gateway.Enabled && c.Gateway.Addr == "" {
		return fmt.Errorf("gateway addr is required when gateway is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics addr is required when metrics are enabled")
	}

	for i, s := range c.Schedules {
		if s.Spec == "" {
			return fmt.Errorf("schedule %d: cron spec is required", i)
		}
		if s.ThreadID == "" {
			return fmt.Errorf("schedule %d: thread id is required", i)
		}
		if s.Prompt == "" {
			return fmt.Errorf("schedule %d: prompt is required", i)
		}
	}

	return nil
}
