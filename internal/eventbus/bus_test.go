/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friendsincode/grimnir_voice/internal/config"
	"github.com/friendsincode/grimnir_voice/internal/events"
)

func TestNewDefaultsToLocal(t *testing.T) {
	local := events.NewBus()
	bus, err := New(&config.Config{EventBackend: config.EventsLocal}, local, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	_, ok := bus.(Local)
	require.True(t, ok, "expected local bus, got %T", bus)

	sub := bus.Subscribe(events.EventFocusChanged)
	bus.Publish(events.EventFocusChanged, events.Payload{"channel": "dialog"})
	assert.Equal(t, "dialog", (<-sub)["channel"])
}

func TestRelaySkipsOwnNode(t *testing.T) {
	local := events.NewBus()
	sub := local.Subscribe(events.EventDirectiveCompleted)

	data, err := marshalMessage(events.EventDirectiveCompleted, events.Payload{"result": "finished"}, "node-a")
	require.NoError(t, err)

	assert.False(t, relay(local, "node-a", data, zerolog.Nop()))
	assert.Len(t, sub, 0)

	assert.True(t, relay(local, "node-b", data, zerolog.Nop()))
	require.Len(t, sub, 1)
	got := <-sub
	assert.Equal(t, "finished", got["result"])
	assert.Equal(t, "node-a", got[events.OriginField])
}

func TestRelayDropsMalformed(t *testing.T) {
	local := events.NewBus()
	assert.False(t, relay(local, "node-a", []byte("not json"), zerolog.Nop()))
	assert.False(t, relay(local, "node-a", []byte(`{"payload":{}}`), zerolog.Nop()))
}

func TestGenerateNodeIDIsUnique(t *testing.T) {
	a, b := GenerateNodeID(), GenerateNodeID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
