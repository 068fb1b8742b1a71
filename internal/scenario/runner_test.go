/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scenario

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/friendsincode/grimnir_voice/internal/events"
)

func completions(tl *Timeline) map[string]string {
	out := make(map[string]string)
	for _, e := range tl.Filter(events.EventDirectiveCompleted) {
		id, _ := e.Payload["message_id"].(string)
		result, _ := e.Payload["result"].(string)
		out[id] = result
	}
	return out
}

func indexOf(evts []Event, key, value string) int {
	for i, e := range evts {
		if e.Payload[key] == value {
			return i
		}
	}
	return -1
}

func TestRunnerBargeIn(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, err := Load("testdata/barge_in.yaml")
	require.NoError(t, err)

	tl, err := NewRunner(s, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"msg-1": "finished",
		"msg-2": "finished",
		"msg-3": "finished",
	}, completions(tl))

	completed := tl.Filter(events.EventDirectiveCompleted)
	first := indexOf(completed, "message_id", "msg-1")
	second := indexOf(completed, "message_id", "msg-3")
	require.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first, "the second speak waits for the first")

	blocked := tl.Filter(events.EventDirectiveBlocked)
	assert.GreaterOrEqual(t, indexOf(blocked, "message_id", "msg-3"), 0)

	focusChanges := tl.Filter(events.EventFocusChanged)
	var dialogForeground bool
	for _, e := range focusChanges {
		if e.Payload["channel"] == "dialog" && e.Payload["state"] == "foreground" {
			dialogForeground = true
		}
	}
	assert.True(t, dialogForeground, "the speak handler takes the dialog channel")

	released := tl.Filter(events.EventPlaySyncReleased)
	require.NotEmpty(t, released)
	assert.Equal(t, "stopped", released[len(released)-1].Payload["reason"])
	assert.Equal(t, "INFO.display", released[len(released)-1].Payload["property"])

	var buf bytes.Buffer
	require.NoError(t, tl.WriteText(&buf))
	assert.Contains(t, buf.String(), "# speak then barge in")
	assert.Contains(t, buf.String(), "directive.completed")
}

func TestRunnerCancelAndStoppedCascade(t *testing.T) {
	s, err := Parse([]byte(`
name: cancel
handlers:
  - type: AudioPlayer.Play
    medium: audio
    blocking: true
    handleDelay: 50ms
  - type: AudioPlayer.Stop
    medium: audio
    blocking: true
    handleDelay: 40ms
    result: stopped
steps:
  - dispatch: {type: AudioPlayer.Play, dialog: dlg-1, messageId: a1}
  - at: 5ms
    dispatch: {type: AudioPlayer.Play, dialog: dlg-1, messageId: a2}
  - at: 10ms
    cancel: dlg-1
  - at: 100ms
    dispatch: {type: AudioPlayer.Stop, dialog: dlg-2, messageId: b1}
  - at: 105ms
    dispatch: {type: AudioPlayer.Play, dialog: dlg-2, messageId: b2}
settle: 150ms
`))
	require.NoError(t, err)

	tl, err := NewRunner(s, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"a1": "finished",
		"a2": "canceled",
		"b1": "stopped",
		"b2": "canceled",
	}, completions(tl))
	assert.NotEmpty(t, tl.Filter(events.EventDialogCanceled))
}

func TestRunnerStopsOnContext(t *testing.T) {
	s, err := Parse([]byte(`
name: long
handlers:
  - type: A.B
steps:
  - at: 10s
    dispatch: {type: A.B, dialog: d, messageId: m}
`))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	tl, err := NewRunner(s, zerolog.Nop()).Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, tl)
	assert.Empty(t, completions(tl))
	assert.Less(t, tl.Duration, 5*time.Second)
}
