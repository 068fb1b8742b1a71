/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friendsincode/grimnir_voice/internal/events"
)

func TestNATSBusFallsBackWhenUnreachable(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond

	nb, err := NewNATSBus(cfg, "node-a", events.NewBus(), zerolog.Nop())
	require.NoError(t, err)
	require.True(t, nb.Degraded())

	sub := nb.Subscribe(events.EventDirectiveBlocked)
	nb.Publish(events.EventDirectiveBlocked, events.Payload{"name": "Speak"})
	assert.Equal(t, "Speak", (<-sub)["name"])

	nb.Unsubscribe(events.EventDirectiveBlocked, sub)
	assert.NoError(t, nb.Close())
}

func TestNATSBusRequiresLocal(t *testing.T) {
	_, err := NewNATSBus(DefaultNATSConfig(), "node-a", nil, zerolog.Nop())
	assert.Error(t, err)
}
