/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GRIMNIR_VOICE_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.HTTPPort)
	assert.Equal(t, DatabaseSQLite, cfg.DBBackend)
	assert.Equal(t, EventsLocal, cfg.EventBackend)
	assert.Equal(t, 500*time.Millisecond, cfg.FocusShortLatency)
	assert.Equal(t, time.Second, cfg.FocusReleaseLatency)
	assert.Equal(t, 10, cfg.CancelRingCapacity)
	assert.True(t, cfg.JournalEnabled)
	assert.Equal(t, 7*24*time.Hour, cfg.JournalRetention)
	assert.False(t, cfg.LeaderElection)
	assert.Equal(t, "0.0.0.0:8090", cfg.HTTPAddr())
}

func TestLoadPrefersVoicePrefix(t *testing.T) {
	t.Setenv("GRIMNIR_VOICE_ENV", "development")
	t.Setenv("GRIMNIR_HTTP_PORT", "9000")
	t.Setenv("GRIMNIR_VOICE_HTTP_PORT", "9100")
	t.Setenv("GRIMNIR_REDIS_ADDR", "redis:6379")
	t.Setenv("GRIMNIR_VOICE_FOCUS_SHORT_LATENCY", "750ms")
	t.Setenv("GRIMNIR_VOICE_FOCUS_RELEASE_LATENCY", "2000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.HTTPPort)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 750*time.Millisecond, cfg.FocusShortLatency)
	assert.Equal(t, 2*time.Second, cfg.FocusReleaseLatency)
	assert.Contains(t, cfg.LegacyEnvWarnings, "legacy env key GRIMNIR_REDIS_ADDR is set; use GRIMNIR_VOICE_REDIS_ADDR")
	for _, w := range cfg.LegacyEnvWarnings {
		assert.NotContains(t, w, "HTTP_PORT", "the voice key shadows the legacy one")
	}
}

func TestLoadRequiresSigningKeyInProduction(t *testing.T) {
	t.Setenv("GRIMNIR_VOICE_ENV", "production")

	_, err := Load()
	require.ErrorIs(t, err, ErrMissingSigningKey)

	t.Setenv("GRIMNIR_VOICE_JWT_SIGNING_KEY", "supersecret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:         "development",
			HTTPPort:            8090,
			DBBackend:           DatabaseSQLite,
			DBDSN:               "file::memory:",
			EventBackend:        EventsLocal,
			FocusShortLatency:   time.Millisecond,
			FocusReleaseLatency: time.Millisecond,
			CancelRingCapacity:  10,
			TracingSampleRate:   0.5,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"backend", func(c *Config) { c.DBBackend = "oracle" }, ErrInvalidBackend},
		{"event backend", func(c *Config) { c.EventBackend = "kafka" }, ErrInvalidValue},
		{"port", func(c *Config) { c.HTTPPort = 0 }, ErrInvalidValue},
		{"latency", func(c *Config) { c.FocusReleaseLatency = 0 }, ErrInvalidValue},
		{"ring", func(c *Config) { c.CancelRingCapacity = -1 }, ErrInvalidValue},
		{"sample rate", func(c *Config) { c.TracingSampleRate = 1.5 }, ErrInvalidValue},
		{"dsn", func(c *Config) { c.DBDSN = "" }, ErrInvalidValue},
		{"retention", func(c *Config) { c.JournalRetention = -time.Hour }, ErrInvalidValue},
		{"election without redis", func(c *Config) { c.LeaderElection = true }, ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}
