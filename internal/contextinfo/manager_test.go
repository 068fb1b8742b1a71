/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package contextinfo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func static(info *Info) Provider {
	return func(context.Context) (*Info, error) { return info, nil }
}

func TestContextsSortedAndSkipsFailures(t *testing.T) {
	m := NewManager(50*time.Millisecond, zerolog.Nop())
	m.AddProvider("tts", static(&Info{ContextType: ContextCapability, Name: "TTS", Payload: map[string]any{"version": "1.3", "ttsActivity": "IDLE"}}))
	m.AddProvider("playStack", static(&Info{ContextType: ContextClient, Name: "playStack", Payload: []string{"svc1"}}))
	m.AddProvider("broken", func(context.Context) (*Info, error) { return nil, errors.New("boom") })
	m.AddProvider("empty", static(nil))
	m.AddProvider("slow", func(ctx context.Context) (*Info, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m.AddProvider("panics", func(context.Context) (*Info, error) { panic("provider bug") })

	infos, err := m.Contexts(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "TTS", infos[0].Name)
	assert.Equal(t, "playStack", infos[1].Name)
}

func TestContextsTrimOtherCapabilities(t *testing.T) {
	m := NewManager(0, zerolog.Nop())
	m.AddProvider("tts", static(&Info{ContextType: ContextCapability, Name: "TTS", Payload: map[string]any{"version": "1.3", "ttsActivity": "IDLE"}}))
	m.AddProvider("asr", static(&Info{ContextType: ContextCapability, Name: "ASR", Payload: map[string]any{"version": "1.6", "state": "IDLE"}}))
	m.AddProvider("playStack", static(&Info{ContextType: ContextClient, Name: "playStack", Payload: []string{"svc1"}}))

	payload, err := m.Payload(context.Background(), "TTS")
	require.NoError(t, err)

	interfaces := payload["supportedInterfaces"].(map[string]any)
	assert.Equal(t, map[string]any{"version": "1.3", "ttsActivity": "IDLE"}, interfaces["TTS"])
	assert.Equal(t, map[string]any{"version": "1.6"}, interfaces["ASR"])
	assert.Equal(t, map[string]any{"playStack": []string{"svc1"}}, payload["client"])
}

func TestRemoveProvider(t *testing.T) {
	m := NewManager(0, zerolog.Nop())
	m.AddProvider("a", static(&Info{ContextType: ContextClient, Name: "a"}))
	m.AddProvider("b", static(&Info{ContextType: ContextClient, Name: "b"}))
	m.RemoveProvider("a")

	assert.Equal(t, []string{"b"}, m.Providers())
}

func TestContextsCanceled(t *testing.T) {
	m := NewManager(0, zerolog.Nop())
	m.AddProvider("a", static(&Info{ContextType: ContextClient, Name: "a"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Contexts(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}
