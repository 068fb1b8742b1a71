/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the orchestration core over HTTP for inspection and
// bench testing.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_voice/internal/auth"
	"github.com/friendsincode/grimnir_voice/internal/core"
	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/logbuffer"
	"github.com/friendsincode/grimnir_voice/internal/models"
	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

// EventSource is the subscription side of an event bus.
type EventSource interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// JournalReader serves persisted directive outcomes.
type JournalReader interface {
	Recent(ctx context.Context, dialogRequestID string, limit int) ([]models.DirectiveRecord, error)
}

// API exposes HTTP handlers.
type API struct {
	core      *core.Core
	bus       EventSource
	journal   JournalReader
	logBuffer *logbuffer.Buffer
	jwtSecret []byte
	logger    zerolog.Logger
}

// New creates the API router wrapper. journal and logBuf may be nil; their
// routes then answer 503.
func New(c *core.Core, bus EventSource, journal JournalReader, logBuf *logbuffer.Buffer, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		core:      c,
		bus:       bus,
		journal:   journal,
		logBuffer: logBuf,
		jwtSecret: jwtSecret,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers every endpoint on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", telemetry.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(a.jwtSecret))

		r.Route("/directives", func(r chi.Router) {
			r.Get("/", a.handleDirectivesSnapshot)
			r.With(auth.RequireRole(auth.RoleOperator)).Post("/", a.handleDirectiveInject)
		})
		r.With(auth.RequireRole(auth.RoleOperator)).Post("/dialogs/{dialogRequestID}/cancel", a.handleDialogCancel)

		r.Get("/focus", a.handleFocusSnapshot)

		r.Route("/playstack", func(r chi.Router) {
			r.Get("/", a.handlePlayStackSnapshot)
			r.With(auth.RequireRole(auth.RoleOperator)).Delete("/{dialogRequestID}", a.handlePlayStackStop)
		})

		r.Get("/context", a.handleContext)
		r.Get("/journal", a.handleJournal)

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", a.handleLogs)
			r.Get("/stats", a.handleLogStats)
		})

		r.Get("/events", a.handleEvents)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
