/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/friendsincode/grimnir_voice/internal/directive"
	"github.com/friendsincode/grimnir_voice/internal/playsync"
)

const maxDirectiveBody = 1 << 20

func (a *API) handleDirectivesSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := a.core.Scheduler.Snapshot(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("directive snapshot failed")
		writeError(w, http.StatusServiceUnavailable, "scheduler_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleDirectiveInject(w http.ResponseWriter, r *http.Request) {
	var d directive.Directive
	dec := json.NewDecoder(io.LimitReader(r.Body, maxDirectiveBody))
	if err := dec.Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if d.Header.Namespace == "" || d.Header.Name == "" {
		writeError(w, http.StatusBadRequest, "namespace_and_name_required")
		return
	}
	if d.Header.MessageID == "" {
		d.Header.MessageID = uuid.NewString()
	}

	a.core.Scheduler.Dispatch(d)
	a.logger.Info().
		Str("type", d.Type()).
		Str("dialog_request_id", d.Header.DialogRequestID).
		Str("message_id", d.Header.MessageID).
		Msg("directive injected")

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message_id":        d.Header.MessageID,
		"dialog_request_id": d.Header.DialogRequestID,
	})
}

func (a *API) handleDialogCancel(w http.ResponseWriter, r *http.Request) {
	dialog := chi.URLParam(r, "dialogRequestID")
	a.core.Scheduler.Cancel(dialog)
	writeJSON(w, http.StatusAccepted, map[string]string{"dialog_request_id": dialog})
}

func (a *API) handleFocusSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := a.core.Arbitrator.Snapshot(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("focus snapshot failed")
		writeError(w, http.StatusServiceUnavailable, "focus_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handlePlayStackSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := a.core.Ledger.Snapshot(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("playstack snapshot failed")
		writeError(w, http.StatusServiceUnavailable, "playsync_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handlePlayStackStop releases a dialog's layers. Repeated ?property=LAYER.context
// parameters narrow the release.
func (a *API) handlePlayStackStop(w http.ResponseWriter, r *http.Request) {
	dialog := chi.URLParam(r, "dialogRequestID")

	var properties []playsync.Property
	for _, raw := range r.URL.Query()["property"] {
		p, err := playsync.ParseProperty(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_property")
			return
		}
		properties = append(properties, p)
	}

	a.core.Ledger.StopPlay(dialog, properties...)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"dialog_request_id": dialog,
		"properties":        len(properties),
	})
}

func (a *API) handleContext(w http.ResponseWriter, r *http.Request) {
	payload, err := a.core.Contexts.Payload(r.Context(), r.URL.Query().Get("namespace"))
	if err != nil {
		a.logger.Error().Err(err).Msg("context gathering failed")
		writeError(w, http.StatusServiceUnavailable, "context_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
