/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/friendsincode/grimnir_voice/internal/clock"
	"github.com/friendsincode/grimnir_voice/internal/config"
	"github.com/friendsincode/grimnir_voice/internal/directive"
	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/focus"
	"github.com/friendsincode/grimnir_voice/internal/playsync"
)

func newTestCore(t *testing.T) (*Core, *clock.Fake, *events.Bus) {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := events.NewBus()
	c := New(Options{Clock: fake}, bus, zerolog.Nop())
	t.Cleanup(c.Close)
	return c, fake, bus
}

func focusStates(t *testing.T, c *Core) map[string]focus.State {
	t.Helper()
	snap, err := c.Arbitrator.Snapshot(context.Background())
	require.NoError(t, err)
	out := make(map[string]focus.State)
	for _, ch := range snap.Channels {
		out[ch.Name] = ch.State
	}
	return out
}

func TestAudioDirectiveHoldsBackgroundFocus(t *testing.T) {
	c, _, _ := newTestCore(t)

	var (
		mu   sync.Mutex
		done directive.Completion
	)
	c.Scheduler.Register(directive.HandleInfo{
		Namespace: "SpeechSynthesizer",
		Name:      "Speak",
		Policy:    directive.PolicyAudioBlocking,
		Handle: func(_ directive.Directive, d directive.Completion) {
			mu.Lock()
			done = d
			mu.Unlock()
		},
	})
	c.Scheduler.Dispatch(directive.Directive{Header: directive.Header{
		Namespace:       "SpeechSynthesizer",
		Name:            "Speak",
		DialogRequestID: "dlg-1",
		MessageID:       "msg-1",
	}})

	require.Eventually(t, func() bool {
		snap, err := c.Arbitrator.Snapshot(context.Background())
		return err == nil && snap.Foreground == focus.HolderChannel && snap.AudioDirectives == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	finish := done
	mu.Unlock()
	require.NotNil(t, finish)
	finish(directive.Finished())

	require.Eventually(t, func() bool {
		snap, err := c.Arbitrator.Snapshot(context.Background())
		return err == nil && snap.AudioDirectives == 0 && focusStates(t, c)[focus.HolderChannel] == focus.StateNothing
	}, time.Second, 5*time.Millisecond)
}

func TestContextPayloadIncludesEverySubsystem(t *testing.T) {
	c, _, _ := newTestCore(t)

	c.Scheduler.Register(directive.HandleInfo{
		Namespace: "AudioPlayer",
		Name:      "Play",
		Policy:    directive.PolicyAudio,
		Handle:    func(_ directive.Directive, done directive.Completion) { done(directive.Finished()) },
	})
	c.Ledger.StartPlay(
		playsync.Property{Layer: playsync.LayerMedia, Context: playsync.ContextSound},
		playsync.Info{PlayServiceID: "svc-1", DialogRequestID: "dlg-1", MessageID: "msg-1"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	payload, err := c.Contexts.Payload(ctx, "")
	require.NoError(t, err)

	client, ok := payload["client"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"svc-1"}, client[playsync.ContextName])
	assert.Contains(t, client, FocusContext)

	capabilities, ok := payload["supportedInterfaces"].(map[string]any)
	require.True(t, ok)
	directives, ok := capabilities[DirectivesContext].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.0", directives["version"])
	assert.Equal(t, []string{"AudioPlayer.Play"}, directives["handlers"])
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(&config.Config{
		FocusShortLatency:   time.Second,
		FocusReleaseLatency: 2 * time.Second,
		CancelRingCapacity:  4,
		ContextTimeout:      time.Millisecond,
	})
	assert.Equal(t, time.Second, opts.ShortLatency)
	assert.Equal(t, 2*time.Second, opts.ReleaseLatency)
	assert.Equal(t, 4, opts.CancelCapacity)
	assert.Equal(t, time.Millisecond, opts.ContextTimeout)
}

func TestCloseStopsEveryWorker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := New(Options{Clock: clock.NewFake(time.Now())}, nil, zerolog.Nop())
	c.Arbitrator.Register("dialog", focus.PriorityUserRecognition, nil)
	c.Arbitrator.RequestFocus("dialog")
	c.Close()

	_, err := c.Scheduler.Snapshot(context.Background())
	assert.Error(t, err)
}
