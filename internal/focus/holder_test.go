/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package focus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friendsincode/grimnir_voice/internal/directive"
)

func TestBackgroundHolderYieldsToRealChannels(t *testing.T) {
	a, _, _ := newTestArbitrator(t)
	h := NewBackgroundHolder(a, zerolog.Nop())
	a.Register("media", PriorityMedia, nil)

	h.Hold("event/1")
	assert.Equal(t, HolderChannel, snapshot(t, a).Foreground)

	a.RequestFocus("media")
	got := states(t, a)
	assert.Equal(t, StateBackground, got[HolderChannel])
	assert.Equal(t, StateForeground, got["media"])

	h.Unhold("event/1")
	assert.Equal(t, StateNothing, states(t, a)[HolderChannel])
	require.Eventually(t, func() bool { return h.State() == StateNothing }, time.Second, 5*time.Millisecond)
}

func TestBackgroundHolderReleasesWhenLastHoldDrops(t *testing.T) {
	a, _, _ := newTestArbitrator(t)
	h := NewBackgroundHolder(a, zerolog.Nop())

	h.Hold("a")
	h.Hold("b")
	h.Unhold("a")
	h.Unhold("missing")
	assert.Equal(t, StateForeground, states(t, a)[HolderChannel])
	assert.Equal(t, 1, h.Holding())

	h.Unhold("b")
	assert.Equal(t, StateNothing, states(t, a)[HolderChannel])
}

func TestBackgroundHolderTracksAudioDirectives(t *testing.T) {
	a, _, _ := newTestArbitrator(t)
	h := NewBackgroundHolder(a, zerolog.Nop())

	speak := directive.Directive{Header: directive.Header{Namespace: "TTS", Name: "Speak", MessageID: "m1"}}
	render := directive.Directive{Header: directive.Header{Namespace: "Display", Name: "FullText1", MessageID: "m2"}}

	h.DirectiveWillPrefetch(speak, directive.PolicyAudioBlocking)
	h.DirectiveWillPrefetch(render, directive.PolicyVisual)
	assert.Equal(t, 1, h.Holding())
	assert.Equal(t, StateForeground, states(t, a)[HolderChannel])

	h.DirectiveDidComplete(render, directive.PolicyVisual, directive.Finished())
	assert.Equal(t, 1, h.Holding())

	h.DirectiveDidComplete(speak, directive.PolicyAudioBlocking, directive.Failed("boom"))
	assert.Equal(t, 0, h.Holding())
	assert.Equal(t, StateNothing, states(t, a)[HolderChannel])
}

func TestBackgroundHolderClose(t *testing.T) {
	a, _, _ := newTestArbitrator(t)
	h := NewBackgroundHolder(a, zerolog.Nop())

	h.Close()

	assert.Empty(t, snapshot(t, a).Channels)
}
