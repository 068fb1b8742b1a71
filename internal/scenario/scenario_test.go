/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scenario

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTestdata(t *testing.T) {
	s, err := Load("testdata/barge_in.yaml")
	require.NoError(t, err)

	assert.Equal(t, "speak then barge in", s.Name)
	assert.Equal(t, 10*time.Millisecond, s.Focus.ShortLatency.Std())
	require.Len(t, s.Handlers, 3)
	assert.Equal(t, 60*time.Millisecond, s.Handlers[0].HandleDelay.Std())
	require.NotNil(t, s.Handlers[0].Play)
	assert.Equal(t, "weather", s.Handlers[0].Play.PlayServiceID)
	require.Len(t, s.Steps, 5)
	assert.Equal(t, "It is sunny.", s.Steps[0].Dispatch.Payload["text"])
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("name: x\nbogus: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad handler type",
			yaml: "handlers:\n  - type: Speak\n",
			want: "want Namespace.Name",
		},
		{
			name: "unknown medium",
			yaml: "handlers:\n  - type: A.B\n    medium: smell\n",
			want: "unknown medium",
		},
		{
			name: "unknown result",
			yaml: "handlers:\n  - type: A.B\n    result: exploded\n",
			want: "unknown result",
		},
		{
			name: "undeclared focus channel",
			yaml: "handlers:\n  - type: A.B\n    focus: dialog\n",
			want: "undeclared channel",
		},
		{
			name: "unknown priority",
			yaml: "channels:\n  - name: dialog\n    priority: urgent\n",
			want: "unknown focus priority",
		},
		{
			name: "reserved channel",
			yaml: "channels:\n  - name: background_holder\n    priority: media\n",
			want: "reserved",
		},
		{
			name: "two actions",
			yaml: "channels:\n  - name: c\n    priority: media\nsteps:\n  - at: 0s\n    cancel: dlg\n    request: c\n",
			want: "exactly one action",
		},
		{
			name: "no action",
			yaml: "steps:\n  - at: 1s\n",
			want: "exactly one action",
		},
		{
			name: "bad property",
			yaml: "steps:\n  - endPlay: INFO\n",
			want: "LAYER.context",
		},
		{
			name: "dispatch without dialog",
			yaml: "steps:\n  - dispatch:\n      type: A.B\n",
			want: "needs a dialog",
		},
		{
			name: "bad duration",
			yaml: "settle: soon\n",
			want: "invalid duration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOrderedStepsIsStable(t *testing.T) {
	s := &Scenario{Steps: []Step{
		{At: Duration(20 * time.Millisecond), Cancel: "b"},
		{At: 0, Cancel: "a1"},
		{At: 0, Cancel: "a2"},
	}}
	steps := s.OrderedSteps()
	assert.Equal(t, []string{"a1", "a2", "b"}, []string{steps[0].Cancel, steps[1].Cancel, steps[2].Cancel})
	assert.Equal(t, "b", s.Steps[0].Cancel, "the scenario itself is untouched")
}
