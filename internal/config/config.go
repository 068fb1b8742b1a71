/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidBackend indicates an unsupported database backend.
	ErrInvalidBackend = errors.New("unsupported database backend")

	// ErrInvalidValue indicates a setting outside its allowed range.
	ErrInvalidValue = errors.New("invalid configuration value")

	// ErrMissingSigningKey indicates no JWT signing key outside development.
	ErrMissingSigningKey = errors.New("jwt signing key must be provided")
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event fan-out selection for multi-process deployments.
type EventBackend string

const (
	EventsLocal EventBackend = "local"
	EventsRedis EventBackend = "redis"
	EventsNATS  EventBackend = "nats"
)

// Config covers process level configuration read from environment variables.
// Every key is read as GRIMNIR_VOICE_<KEY> first, then GRIMNIR_<KEY>.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	NodeID      string

	DBBackend DatabaseBackend
	DBDSN     string

	EventBackend  EventBackend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string

	JWTSigningKey string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Orchestration tuning
	FocusShortLatency   time.Duration
	FocusReleaseLatency time.Duration
	CancelRingCapacity  int
	ContextTimeout      time.Duration

	JournalEnabled   bool
	JournalRetention time.Duration
	LeaderElection   bool
	LogBufferSize    int

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		HTTPBind:    getEnv("HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("HTTP_PORT", 8090),
		NodeID:      getEnv("NODE_ID", ""),

		DBBackend: DatabaseBackend(strings.ToLower(getEnv("DB_BACKEND", string(DatabaseSQLite)))),
		DBDSN:     getEnv("DB_DSN", "file:grimnir_voice.db?_busy_timeout=5000"),

		EventBackend:  EventBackend(strings.ToLower(getEnv("EVENT_BACKEND", string(EventsLocal)))),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		NATSURL:       getEnv("NATS_URL", "nats://127.0.0.1:4222"),

		JWTSigningKey: getEnv("JWT_SIGNING_KEY", ""),

		TracingEnabled:    getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("TRACING_SAMPLE_RATE", 1.0),

		FocusShortLatency:   getEnvDuration("FOCUS_SHORT_LATENCY", 500*time.Millisecond),
		FocusReleaseLatency: getEnvDuration("FOCUS_RELEASE_LATENCY", time.Second),
		CancelRingCapacity:  getEnvInt("CANCEL_RING_CAPACITY", 10),
		ContextTimeout:      getEnvDuration("CONTEXT_TIMEOUT", 500*time.Millisecond),

		JournalEnabled:   getEnvBool("JOURNAL_ENABLED", true),
		JournalRetention: getEnvDuration("JOURNAL_RETENTION", 7*24*time.Hour),
		LeaderElection:   getEnvBool("LEADER_ELECTION", false),
		LogBufferSize:    getEnvInt("LOG_BUFFER_SIZE", 5000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()
	return cfg, nil
}

// Validate checks ranges and required settings.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case DatabasePostgres, DatabaseMySQL, DatabaseSQLite:
	default:
		return fmt.Errorf("%w %q", ErrInvalidBackend, c.DBBackend)
	}
	switch c.EventBackend {
	case EventsLocal, EventsRedis, EventsNATS:
	default:
		return fmt.Errorf("%w: event backend %q", ErrInvalidValue, c.EventBackend)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("%w: GRIMNIR_VOICE_DB_DSN is empty", ErrInvalidValue)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("%w: http port %d", ErrInvalidValue, c.HTTPPort)
	}
	if c.FocusShortLatency <= 0 || c.FocusReleaseLatency <= 0 {
		return fmt.Errorf("%w: focus latencies must be positive", ErrInvalidValue)
	}
	if c.CancelRingCapacity <= 0 {
		return fmt.Errorf("%w: cancel ring capacity %d", ErrInvalidValue, c.CancelRingCapacity)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("%w: tracing sample rate %v", ErrInvalidValue, c.TracingSampleRate)
	}
	if c.JournalRetention < 0 {
		return fmt.Errorf("%w: journal retention %s", ErrInvalidValue, c.JournalRetention)
	}
	if c.LeaderElection && c.EventBackend != EventsRedis {
		return fmt.Errorf("%w: leader election requires the redis event backend", ErrInvalidValue)
	}
	if c.JWTSigningKey == "" && !c.IsDevelopment() {
		return ErrMissingSigningKey
	}
	return nil
}

// IsDevelopment reports whether the process runs in development or test mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development") || strings.EqualFold(c.Environment, "test")
}

// HTTPAddr returns bind:port.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

var keys = []string{
	"ENV", "HTTP_BIND", "HTTP_PORT", "NODE_ID",
	"DB_BACKEND", "DB_DSN",
	"EVENT_BACKEND", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "NATS_URL",
	"JWT_SIGNING_KEY",
	"TRACING_ENABLED", "OTLP_ENDPOINT", "TRACING_SAMPLE_RATE",
	"FOCUS_SHORT_LATENCY", "FOCUS_RELEASE_LATENCY", "CANCEL_RING_CAPACITY", "CONTEXT_TIMEOUT",
	"JOURNAL_ENABLED", "JOURNAL_RETENTION", "LEADER_ELECTION", "LOG_BUFFER_SIZE",
}

// detectLegacyEnvWarnings flags GRIMNIR_<KEY> values that are in effect
// because GRIMNIR_VOICE_<KEY> is unset, and bare keys that are ignored.
func detectLegacyEnvWarnings() []string {
	var warnings []string
	for _, key := range keys {
		if os.Getenv("GRIMNIR_VOICE_"+key) == "" && os.Getenv("GRIMNIR_"+key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key GRIMNIR_%s is set; use GRIMNIR_VOICE_%s", key, key))
		}
	}
	for _, key := range []string{"ENVIRONMENT", "JWT_SIGNING_KEY", "TRACING_ENABLED", "OTLP_ENDPOINT"} {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("env key %s is ignored; use GRIMNIR_VOICE_%s", key, key))
		}
	}
	return warnings
}

// lookup returns the first non-empty value of GRIMNIR_VOICE_<key> or GRIMNIR_<key>.
func lookup(key string) (string, bool) {
	for _, prefix := range []string{"GRIMNIR_VOICE_", "GRIMNIR_"} {
		if v := os.Getenv(prefix + key); v != "" {
			return v, true
		}
	}
	return "", false
}

func getEnv(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := lookup(key); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("750ms") or bare milliseconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
