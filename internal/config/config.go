/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	APIURL      string // Base URL client commands talk to

	// Shutdown execution
	DryRun          bool
	ShutdownCommand []string // Overrides the platform default when set
	ExecTimeout     time.Duration

	PollInterval       time.Duration // Countdown refresh for the CLI and status stream
	RateLimitPerMinute int           // Mutating API requests per client IP, 0 disables

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	InstanceID    string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"POWERDOWN_ENV", "PD_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"POWERDOWN_HTTP_BIND", "PD_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:    getEnvIntAny([]string{"POWERDOWN_HTTP_PORT", "PD_HTTP_PORT"}, 8765),

		DryRun:          getEnvBoolAny([]string{"POWERDOWN_DRY_RUN", "PD_DRY_RUN"}, false),
		ShutdownCommand: strings.Fields(getEnvAny([]string{"POWERDOWN_SHUTDOWN_COMMAND", "PD_SHUTDOWN_COMMAND"}, "")),
		ExecTimeout:     getEnvDurationAny([]string{"POWERDOWN_EXEC_TIMEOUT_SECONDS", "PD_EXEC_TIMEOUT_SECONDS"}, time.Second, 30*time.Second),

		PollInterval:       getEnvDurationAny([]string{"POWERDOWN_POLL_INTERVAL_MS", "PD_POLL_INTERVAL_MS"}, time.Millisecond, time.Second),
		RateLimitPerMinute: getEnvIntAny([]string{"POWERDOWN_RATE_LIMIT_PER_MINUTE", "PD_RATE_LIMIT_PER_MINUTE"}, 60),

		TracingEnabled:    getEnvBoolAny([]string{"POWERDOWN_TRACING_ENABLED", "PD_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"POWERDOWN_OTLP_ENDPOINT", "PD_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"POWERDOWN_TRACING_SAMPLE_RATE", "PD_TRACING_SAMPLE_RATE"}, 1.0),

		RedisEnabled:  getEnvBoolAny([]string{"POWERDOWN_REDIS_ENABLED", "PD_REDIS_ENABLED"}, false),
		RedisAddr:     getEnvAny([]string{"POWERDOWN_REDIS_ADDR", "PD_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"POWERDOWN_REDIS_PASSWORD", "PD_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"POWERDOWN_REDIS_DB", "PD_REDIS_DB"}, 0),
		InstanceID:    getEnvAny([]string{"POWERDOWN_INSTANCE_ID", "PD_INSTANCE_ID"}, ""),
	}

	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("POWERDOWN_HTTP_PORT must be between 1 and 65535, got %d", cfg.HTTPPort)
	}
	if cfg.ExecTimeout <= 0 {
		return nil, fmt.Errorf("POWERDOWN_EXEC_TIMEOUT_SECONDS must be positive")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POWERDOWN_POLL_INTERVAL_MS must be positive")
	}
	if cfg.RateLimitPerMinute < 0 {
		return nil, fmt.Errorf("POWERDOWN_RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("POWERDOWN_TRACING_SAMPLE_RATE must be between 0 and 1, got %v", cfg.TracingSampleRate)
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID()
	}
	cfg.APIURL = getEnvAny([]string{"POWERDOWN_API_URL", "PD_API_URL"}, "http://"+cfg.Addr())
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.HTTPBind, strconv.Itoa(c.HTTPPort))
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()
	}
	return host + "-" + uuid.NewString()[:8]
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"DRY_RUN":          "use POWERDOWN_DRY_RUN",
		"SHUTDOWN_COMMAND": "use POWERDOWN_SHUTDOWN_COMMAND",
		"TRACING_ENABLED":  "use POWERDOWN_TRACING_ENABLED",
		"OTLP_ENDPOINT":    "use POWERDOWN_OTLP_ENDPOINT",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny reads a bare integer as a count of unit, or a Go duration
// string such as "45s".
func getEnvDurationAny(keys []string, unit, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return time.Duration(n) * unit
			}
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
		}
	}
	return def
}
