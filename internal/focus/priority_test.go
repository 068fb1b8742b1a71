/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package focus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		name string
		want ChannelPriority
	}{
		{"call", ChannelPriority{300, 300}},
		{"user-recognition", ChannelPriority{300, 250}},
		{"DM_Recognition", ChannelPriority{150, 200}},
		{" media ", ChannelPriority{200, 100}},
		{"beep", ChannelPriority{100, 150}},
		{"background", ChannelPriority{0, 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePriority(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParsePriority("karaoke")
	assert.ErrorIs(t, err, ErrUnknownPriority)
}

func TestStateText(t *testing.T) {
	for _, s := range []State{StateNothing, StatePrepare, StateBackground, StateForeground} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back State
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	var s State
	assert.Error(t, s.UnmarshalText([]byte("paused")))
}
