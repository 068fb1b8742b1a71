/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friendsincode/grimnir_voice/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		replayJSON, replayVerbose = false, false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

const quickScenario = `
name: quick
handlers:
  - type: Alerts.SetAlert
steps:
  - dispatch: {type: Alerts.SetAlert, dialog: dlg-1, messageId: m-1}
settle: 50ms
`

func TestReplayCommandJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quick.yaml")
	require.NoError(t, os.WriteFile(path, []byte(quickScenario), 0o600))

	out, err := execute(t, "replay", "--json", path)
	require.NoError(t, err)

	var timeline struct {
		Name   string `json:"name"`
		Events []struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &timeline))
	assert.Equal(t, "quick", timeline.Name)

	var completed bool
	for _, e := range timeline.Events {
		if e.Type == "directive.completed" && e.Payload["message_id"] == "m-1" {
			completed = true
			assert.Equal(t, "finished", e.Payload["result"])
		}
	}
	assert.True(t, completed)
}

func TestReplayCommandMissingFile(t *testing.T) {
	_, err := execute(t, "replay", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read scenario")
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("GRIMNIR_VOICE_ENV", "test")
	t.Setenv("GRIMNIR_VOICE_JWT_SIGNING_KEY", "cli-secret")

	out, err := execute(t, "token", "--subject", "bench", "--role", "operator")
	require.NoError(t, err)

	claims, err := auth.Parse([]byte("cli-secret"), string(bytes.TrimSpace([]byte(out))))
	require.NoError(t, err)
	assert.Equal(t, "bench", claims.Subject)
	assert.True(t, claims.Has(auth.RoleOperator))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "grimnirvoice")
}
