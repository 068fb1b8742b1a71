/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/grimnir_voice/internal/logbuffer"
)

const (
	defaultLogLimit     = 500
	defaultJournalLimit = 100
)

func (a *API) handleJournal(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal_disabled")
		return
	}

	records, err := a.journal.Recent(r.Context(), r.URL.Query().Get("dialog"), queryInt(r, "limit", defaultJournalLimit))
	if err != nil {
		a.logger.Error().Err(err).Msg("journal query failed")
		writeError(w, http.StatusInternalServerError, "journal_query_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		Dialog:     q.Get("dialog"),
		Search:     q.Get("search"),
		Limit:      queryInt(r, "limit", defaultLogLimit),
		Descending: q.Get("order") != "asc",
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = t
	}

	entries := a.logBuffer.Query(params)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	if dialog := r.URL.Query().Get("dialog"); dialog != "" {
		writeJSON(w, http.StatusOK, a.logBuffer.StatsForDialog(dialog))
		return
	}
	writeJSON(w, http.StatusOK, a.logBuffer.Stats())
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
