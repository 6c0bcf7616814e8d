package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tokenflow TokenflowConfig `yaml:"tokenflow"`
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Stream    StreamConfig    `yaml:"stream"`
	Sources   SourcesConfig   `yaml:"sources"`
	Socket    SocketConfig    `yaml:"socket"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type TokenflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Addr              string `yaml:"addr"`
	ReadTimeoutMs     int    `yaml:"read_timeout_ms"`
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms"`
	DefaultLimit      int    `yaml:"default_limit"`
	MaxLimit          int    `yaml:"max_limit"`
}

type CacheConfig struct {
	TTLSeconds       int `yaml:"ttl_seconds"`
	RefreshTimeoutMs int `yaml:"refresh_timeout_ms"`
}

type StreamConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`
	MaxClients     int `yaml:"max_clients"`
}

type SourcesConfig struct {
	Pumpfun     ProviderConfig `yaml:"pumpfun"`
	Dexscreener ProviderConfig `yaml:"dexscreener"`
	Birdeye     ProviderConfig `yaml:"birdeye"`
}

// ProviderConfig describes one REST upstream. APIKey may be overridden from
// the environment; an enabled provider with a missing required key degrades
// to always-empty instead of failing startup.
type ProviderConfig struct {
	Enabled   bool            `yaml:"enabled"`
	BaseURL   string          `yaml:"base_url"`
	APIKey    string          `yaml:"api_key"`
	TimeoutMs int             `yaml:"timeout_ms"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type SocketConfig struct {
	Enabled            bool                `yaml:"enabled"`
	URL                string              `yaml:"url"`
	LiveMapCapacity    int                 `yaml:"live_map_capacity"`
	HandshakeTimeoutMs int                 `yaml:"handshake_timeout_ms"`
	Backoff            SocketBackoffConfig `yaml:"backoff"`
}

// SocketBackoffConfig bounds reconnect behaviour. The base/max/attempts
// budget applies after at least one successful handshake; the initial budget
// applies when the socket has never connected and retries flatter and less
// often.
type SocketBackoffConfig struct {
	BaseDelayMs        int `yaml:"base_delay_ms"`
	MaxDelayMs         int `yaml:"max_delay_ms"`
	MaxAttempts        int `yaml:"max_attempts"`
	InitialDelayMs     int `yaml:"initial_delay_ms"`
	InitialMaxAttempts int `yaml:"initial_max_attempts"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	DashboardName string                 `yaml:"dashboard_name"`
}

// Duration helpers so callers do not repeat millisecond conversions.

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutMs) * time.Millisecond
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c CacheConfig) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutMs) * time.Millisecond
}

func (s StreamConfig) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMs) * time.Millisecond
}

func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

func (s SocketConfig) HandshakeTimeout() time.Duration {
	return time.Duration(s.HandshakeTimeoutMs) * time.Millisecond
}

func (b SocketBackoffConfig) BaseDelay() time.Duration {
	return time.Duration(b.BaseDelayMs) * time.Millisecond
}

func (b SocketBackoffConfig) MaxDelay() time.Duration {
	return time.Duration(b.MaxDelayMs) * time.Millisecond
}

func (b SocketBackoffConfig) InitialDelay() time.Duration {
	return time.Duration(b.InitialDelayMs) * time.Millisecond
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ShutdownTimeoutMs: 10000,
			DefaultLimit:      50,
			MaxLimit:          100,
		},
		Cache: CacheConfig{
			TTLSeconds:       30,
			RefreshTimeoutMs: 15000,
		},
		Stream: StreamConfig{
			TickIntervalMs: 1000,
			MaxClients:     256,
		},
		Socket: SocketConfig{
			LiveMapCapacity:    25,
			HandshakeTimeoutMs: 10000,
			Backoff: SocketBackoffConfig{
				BaseDelayMs:        500,
				MaxDelayMs:         30000,
				MaxAttempts:        8,
				InitialDelayMs:     5000,
				InitialMaxAttempts: 3,
			},
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override provider secrets from environment variables if available
	if v := os.Getenv("BIRDEYE_API_KEY"); v != "" {
		config.Sources.Birdeye.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("PUMPPORTAL_WS_URL"); v != "" {
		config.Socket.URL = strings.TrimSpace(v)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Tokenflow.Name == "" {
		return fmt.Errorf("tokenflow.name is required")
	}

	if cfg.Tokenflow.Version == "" {
		return fmt.Errorf("tokenflow.version is required")
	}

	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.Server.DefaultLimit <= 0 || cfg.Server.MaxLimit <= 0 {
		return fmt.Errorf("server.default_limit and server.max_limit must be greater than 0")
	}
	if cfg.Server.DefaultLimit > cfg.Server.MaxLimit {
		return fmt.Errorf("server.default_limit must not exceed server.max_limit")
	}

	if cfg.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be greater than 0")
	}
	if cfg.Cache.RefreshTimeoutMs <= 0 {
		return fmt.Errorf("cache.refresh_timeout_ms must be greater than 0")
	}

	if cfg.Stream.TickIntervalMs <= 0 {
		return fmt.Errorf("stream.tick_interval_ms must be greater than 0")
	}
	if cfg.Stream.MaxClients <= 0 {
		return fmt.Errorf("stream.max_clients must be greater than 0")
	}

	providers := map[string]ProviderConfig{
		"pumpfun":     cfg.Sources.Pumpfun,
		"dexscreener": cfg.Sources.Dexscreener,
		"birdeye":     cfg.Sources.Birdeye,
	}
	for name, p := range providers {
		if !p.Enabled {
			continue
		}
		if p.BaseURL == "" {
			return fmt.Errorf("sources.%s.base_url is required when the provider is enabled", name)
		}
		if p.TimeoutMs <= 0 {
			return fmt.Errorf("sources.%s.timeout_ms must be greater than 0", name)
		}
	}

	if cfg.Socket.Enabled {
		if cfg.Socket.URL == "" {
			return fmt.Errorf("socket.url is required when the socket feed is enabled")
		}
		if cfg.Socket.LiveMapCapacity <= 0 {
			return fmt.Errorf("socket.live_map_capacity must be greater than 0")
		}
		b := cfg.Socket.Backoff
		if b.BaseDelayMs <= 0 || b.MaxDelayMs < b.BaseDelayMs {
			return fmt.Errorf("socket.backoff delays are invalid")
		}
		if b.MaxAttempts <= 0 || b.InitialMaxAttempts <= 0 {
			return fmt.Errorf("socket.backoff attempt budgets must be greater than 0")
		}
	}

	return nil
}
