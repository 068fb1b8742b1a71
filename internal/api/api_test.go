/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/grimnir_voice/internal/auth"
	"github.com/friendsincode/grimnir_voice/internal/core"
	"github.com/friendsincode/grimnir_voice/internal/directive"
	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/focus"
	"github.com/friendsincode/grimnir_voice/internal/logbuffer"
	"github.com/friendsincode/grimnir_voice/internal/models"
	"github.com/friendsincode/grimnir_voice/internal/playsync"
)

var testSecret = []byte("api-test-secret")

type fakeJournal struct {
	records []models.DirectiveRecord
	dialog  string
	limit   int
}

func (f *fakeJournal) Recent(_ context.Context, dialog string, limit int) ([]models.DirectiveRecord, error) {
	f.dialog, f.limit = dialog, limit
	return f.records, nil
}

type testEnv struct {
	core    *core.Core
	bus     *events.Bus
	journal *fakeJournal
	logs    *logbuffer.Buffer
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	bus := events.NewBus()
	c := core.New(core.Options{}, bus, zerolog.Nop())
	t.Cleanup(c.Close)

	env := &testEnv{
		core:    c,
		bus:     bus,
		journal: &fakeJournal{},
		logs:    logbuffer.New(100),
	}
	r := chi.NewRouter()
	New(c, bus, env.journal, env.logs, testSecret, zerolog.Nop()).Routes(r)
	env.router = r
	return env
}

func token(t *testing.T, roles ...auth.Role) string {
	t.Helper()
	tok, err := auth.Issue(testSecret, "tester", roles, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, body string, roles ...auth.Role) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if roles != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, roles...))
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "grimnir_voice_")
}

func TestRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/v1/directives", "/api/v1/focus", "/api/v1/playstack", "/api/v1/context", "/api/v1/journal", "/api/v1/logs"} {
		rr := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestInjectDirective(t *testing.T) {
	env := newTestEnv(t)
	handled := make(chan directive.Directive, 1)
	env.core.Scheduler.Register(directive.HandleInfo{
		Namespace: "SpeechSynthesizer",
		Name:      "Speak",
		Policy:    directive.PolicyAudioBlocking,
		Handle: func(d directive.Directive, done directive.Completion) {
			handled <- d
			done(directive.Finished())
		},
	})

	body := `{"header":{"namespace":"SpeechSynthesizer","name":"Speak","dialogRequestId":"dlg-1"},"payload":{"text":"hi"}}`

	rr := env.do(t, http.MethodPost, "/api/v1/directives", body, auth.RoleViewer)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/v1/directives", body, auth.RoleOperator)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	messageID, _ := decode(t, rr)["message_id"].(string)
	assert.NotEmpty(t, messageID)

	select {
	case d := <-handled:
		assert.Equal(t, messageID, d.Header.MessageID)
		assert.JSONEq(t, `{"text":"hi"}`, string(d.Payload))
	case <-time.After(time.Second):
		t.Fatal("directive was not handled")
	}
}

func TestInjectDirectiveValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/directives", `{`, auth.RoleOperator)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_json", decode(t, rr)["error"])

	rr = env.do(t, http.MethodPost, "/api/v1/directives", `{"header":{"name":"Speak"}}`, auth.RoleOperator)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "namespace_and_name_required", decode(t, rr)["error"])
}

func TestCancelDialogAppearsInSnapshot(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/dialogs/dlg-9/cancel", "", auth.RoleOperator)
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/directives", "", auth.RoleViewer)
	require.Equal(t, http.StatusOK, rr.Code)
	var snap directive.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Contains(t, snap.CanceledDialogs, "dlg-9")
}

func TestFocusSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.core.Arbitrator.Register("dialog", focus.PriorityUserRecognition, nil)
	env.core.Arbitrator.RequestFocus("dialog")

	rr := env.do(t, http.MethodGet, "/api/v1/focus", "", auth.RoleViewer)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "dialog", body["foreground"])
}

func TestPlayStackSnapshotAndStop(t *testing.T) {
	env := newTestEnv(t)
	info := playsync.Info{PlayServiceID: "svc", DialogRequestID: "dlg-1", MessageID: "m1", Duration: time.Minute}
	env.core.Ledger.StartPlay(playsync.Property{Layer: playsync.LayerInfo, Context: playsync.ContextDisplay}, info)
	env.core.Ledger.StartPlay(playsync.Property{Layer: playsync.LayerInfo, Context: playsync.ContextSound}, info)

	rr := env.do(t, http.MethodGet, "/api/v1/playstack", "", auth.RoleViewer)
	require.Equal(t, http.StatusOK, rr.Code)
	var snap playsync.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Len(t, snap.Entries, 2)
	assert.Equal(t, []string{"svc"}, snap.PlayServiceIDs)

	rr = env.do(t, http.MethodDelete, "/api/v1/playstack/dlg-1?property=BOGUS.display", "", auth.RoleOperator)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/v1/playstack/dlg-1?property=INFO.sound", "", auth.RoleOperator)
	require.Equal(t, http.StatusAccepted, rr.Code)

	snap, err := env.core.Ledger.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, playsync.ContextDisplay, snap.Entries[0].Property.Context)
}

func TestContextDocument(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/context", "", auth.RoleViewer)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Contains(t, body, "client")
	assert.Contains(t, body, "supportedInterfaces")
}

func TestJournalQuery(t *testing.T) {
	env := newTestEnv(t)
	env.journal.records = []models.DirectiveRecord{{ID: "r1", Type: "SpeechSynthesizer.Speak", Result: "finished"}}

	rr := env.do(t, http.MethodGet, "/api/v1/journal?dialog=dlg-1&limit=5", "", auth.RoleViewer)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), decode(t, rr)["count"])
	assert.Equal(t, "dlg-1", env.journal.dialog)
	assert.Equal(t, 5, env.journal.limit)
}

func TestJournalDisabled(t *testing.T) {
	c := core.New(core.Options{}, nil, zerolog.Nop())
	t.Cleanup(c.Close)
	r := chi.NewRouter()
	New(c, events.NewBus(), nil, nil, testSecret, zerolog.Nop()).Routes(r)

	for _, path := range []string{"/api/v1/journal", "/api/v1/logs"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token(t, auth.RoleViewer))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
}

func TestLogsQuery(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	env.logs.Add(logbuffer.LogEntry{Timestamp: now, Level: "info", Component: "focus_arbitrator", Message: "focus changed"})
	env.logs.Add(logbuffer.LogEntry{Timestamp: now, Level: "error", Component: "playsync_ledger", Message: "boom",
		Fields: map[string]any{logbuffer.DialogField: "dlg-1"}})

	rr := env.do(t, http.MethodGet, "/api/v1/logs?level=error", "", auth.RoleViewer)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), decode(t, rr)["count"])

	rr = env.do(t, http.MethodGet, "/api/v1/logs?since=yesterday", "", auth.RoleViewer)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/logs/stats?dialog=dlg-1", "", auth.RoleViewer)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEventsWebSocketStreamsSelectedTypes(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?types=focus.changed"
	conn, _, err := ws.Dial(ctx, url, &ws.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token(t, auth.RoleViewer)}},
	})
	require.NoError(t, err)
	defer conn.Close(ws.StatusNormalClosure, "")

	// The server subscribes after the handshake, so keep publishing until
	// the first event arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				env.bus.Publish(events.EventPlaySyncReleased, events.Payload{"property": "INFO.display"})
				env.bus.Publish(events.EventFocusChanged, events.Payload{"channel": "dialog", "state": "foreground"})
			}
		}
	}()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var ev struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "focus.changed", ev.Type)
	assert.Equal(t, "dialog", ev.Payload["channel"])
}
