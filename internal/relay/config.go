// Package relay provides configuration helpers that define runtime
// defaults, validation, and rate-limiting parameters for the relay.
package relay

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines per-connection inbound frame throttling.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay's runtime settings. It is constructed once in
// main and passed explicitly to every component that needs it.
type Config struct {
	Addr           string
	AllowedOrigins []string
	MaxMessageSize int64
	TickInterval   time.Duration
	RateLimit      RateLimitConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: 4096,
		TickInterval:   time.Second,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
	}
}

// Sanitize clamps invalid values back to their defaults, favoring a
// running relay over startup failure on a bad knob.
func (c Config) Sanitize() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	return c
}

// FromEnv overlays environment variables onto the defaults, falling back
// to the default on anything unset or unparsable.
func FromEnv() Config {
	cfg := DefaultConfig()

	if addr := os.Getenv("RELAY_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.AllowedOrigins = parts
	}
	if size := os.Getenv("MAX_MESSAGE_SIZE"); size != "" {
		if parsed, err := strconv.ParseInt(size, 10, 64); err == nil && parsed > 0 {
			cfg.MaxMessageSize = parsed
		}
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		if parsed, err := strconv.Atoi(burst); err == nil && parsed > 0 {
			cfg.RateLimit.Burst = parsed
		}
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		if seconds, err := strconv.Atoi(interval); err == nil && seconds > 0 {
			cfg.RateLimit.RefillInterval = time.Duration(seconds) * time.Second
		}
	}

	return cfg.Sanitize()
}

// fileConfig mirrors the YAML layout; durations are strings in Go
// duration syntax ("1s", "500ms") so they parse explicitly.
type fileConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxMessageSize int64    `yaml:"max_message_size"`
	TickInterval   string   `yaml:"tick_interval"`
	RateLimit      struct {
		Burst          int    `yaml:"burst"`
		RefillInterval string `yaml:"refill_interval"`
	} `yaml:"rate_limit"`
}

// LoadFile overlays a YAML config file onto cfg. Fields absent from the
// file keep their incoming values.
func LoadFile(path string, cfg Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("relay config: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("relay config: %w", err)
	}

	if file.Addr != "" {
		cfg.Addr = file.Addr
	}
	if len(file.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = file.AllowedOrigins
	}
	if file.MaxMessageSize > 0 {
		cfg.MaxMessageSize = file.MaxMessageSize
	}
	if file.TickInterval != "" {
		interval, err := time.ParseDuration(file.TickInterval)
		if err != nil {
			return cfg, fmt.Errorf("relay config: tick_interval: %w", err)
		}
		cfg.TickInterval = interval
	}
	if file.RateLimit.Burst > 0 {
		cfg.RateLimit.Burst = file.RateLimit.Burst
	}
	if file.RateLimit.RefillInterval != "" {
		interval, err := time.ParseDuration(file.RateLimit.RefillInterval)
		if err != nil {
			return cfg, fmt.Errorf("relay config: rate_limit.refill_interval: %w", err)
		}
		cfg.RateLimit.RefillInterval = interval
	}

	return cfg.Sanitize(), nil
}
