/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferWrapsAround(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		b.Add(LogEntry{Message: msg})
	}

	all := b.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].Message)
	assert.Equal(t, "d", all[2].Message)
}

func TestWriterCapturesZerologLines(t *testing.T) {
	b := New(10)
	var out bytes.Buffer
	logger := zerolog.New(NewWriter(b, &out)).With().Timestamp().Logger()

	logger.Info().Str("component", "directive_scheduler").Str(DialogField, "d1").Msg("handling directive")
	logger.Warn().Str("component", "focus_arbitrator").Str("channel", "media").Msg("focus request ignored")

	entries := b.GetAll()
	require.Len(t, entries, 2)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "directive_scheduler", entries[0].Component)
	assert.Equal(t, "d1", entries[0].DialogRequestID())
	assert.NotContains(t, entries[0].Fields, "message")
	assert.NotEmpty(t, out.String(), "lines are copied to the fallback")
}

func TestQueryFilters(t *testing.T) {
	b := New(10)
	now := time.Now()
	b.Add(LogEntry{Timestamp: now.Add(-time.Hour), Level: "info", Component: "directive_scheduler", Message: "old", Fields: map[string]any{DialogField: "d1"}})
	b.Add(LogEntry{Timestamp: now, Level: "warn", Component: "focus_arbitrator", Message: "focus request ignored", Fields: map[string]any{"channel": "Media"}})
	b.Add(LogEntry{Timestamp: now, Level: "info", Component: "directive_scheduler", Message: "handling directive", Fields: map[string]any{DialogField: "d1"}})

	assert.Len(t, b.Query(QueryParams{Dialog: "d1"}), 2)
	assert.Len(t, b.Query(QueryParams{Level: "warn"}), 1)
	assert.Len(t, b.Query(QueryParams{Search: "media"}), 1)
	assert.Len(t, b.Query(QueryParams{Since: now.Add(-time.Minute)}), 2)

	got := b.Query(QueryParams{Component: "directive_scheduler", Descending: true, Limit: 1})
	require.Len(t, got, 1)
	assert.Equal(t, "handling directive", got[0].Message)
}

func TestStatsForDialog(t *testing.T) {
	b := New(10)
	b.Add(LogEntry{Level: "info", Component: "b", Fields: map[string]any{DialogField: "d1"}})
	b.Add(LogEntry{Level: "warn", Component: "a", Fields: map[string]any{DialogField: "d1"}})
	b.Add(LogEntry{Level: "info", Component: "c"})

	stats := b.StatsForDialog("d1")
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, map[string]int{"info": 1, "warn": 1}, stats.LevelCount)
	assert.Equal(t, []string{"a", "b"}, stats.Components)

	assert.Equal(t, 3, b.Stats().Count)
	b.Clear()
	assert.Equal(t, 0, b.Stats().Count)
}
