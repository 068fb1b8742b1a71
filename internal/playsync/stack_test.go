/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayStackSetRemove(t *testing.T) {
	var s PlayStack
	s.Set(infoDisplay, Info{MessageID: "m1"})
	s.Set(infoSound, Info{MessageID: "m2"})
	s.Set(infoDisplay, Info{MessageID: "m3"})

	require.Len(t, s, 2)
	assert.Equal(t, infoDisplay, s[0].Property)
	assert.Equal(t, "m3", s[0].Info.MessageID)

	info, ok := s.Remove(infoSound)
	assert.True(t, ok)
	assert.Equal(t, "m2", info.MessageID)
	_, ok = s.Remove(infoSound)
	assert.False(t, ok)

	_, ok = s.Get(infoSound)
	assert.False(t, ok)
}

func TestPlayStackMultiLayerSynced(t *testing.T) {
	var s PlayStack
	assert.False(t, s.MultiLayerSynced())

	s.Set(infoDisplay, Info{})
	s.Set(infoSound, Info{})
	assert.False(t, s.MultiLayerSynced())

	s.Set(mediaSound, Info{})
	assert.True(t, s.MultiLayerSynced())
}

func TestParseProperty(t *testing.T) {
	p, err := ParseProperty("media.Display")
	require.NoError(t, err)
	assert.Equal(t, mediaDisplay, p)
	assert.Equal(t, "MEDIA.display", p.String())

	_, err = ParseProperty("VIDEO.display")
	assert.ErrorIs(t, err, ErrUnknownLayer)
	_, err = ParseProperty("INFO.hologram")
	assert.ErrorIs(t, err, ErrUnknownContext)
	_, err = ParseProperty("INFO")
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"short": 7 * time.Second,
		"mid":   15 * time.Second,
		"LONG":  30 * time.Second,
		"":      7 * time.Second,
		"90s":   90 * time.Second,
	}
	for in, want := range tests {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDuration("forever")
	assert.Error(t, err)
}
