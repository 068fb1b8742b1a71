/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package journal persists directive outcomes, focus transitions and layer
// releases published on the event bus.
package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/models"
	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

const (
	subscriberBuffer = 256
	defaultLimit     = 100
	maxLimit         = 1000
)

// Journal records bus events as database rows.
type Journal struct {
	db     *gorm.DB
	bus    *events.Bus
	nodeID string
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a journal. Events relayed from other nodes are skipped since
// each node journals its own events into the shared database.
func New(db *gorm.DB, bus *events.Bus, nodeID string, logger zerolog.Logger) *Journal {
	return &Journal{
		db:     db,
		bus:    bus,
		nodeID: nodeID,
		logger: logger.With().Str("component", "journal").Logger(),
	}
}

// Start subscribes and begins writing in the background. Calling Start on
// a running journal is a no-op.
func (j *Journal) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}

	completed := j.bus.SubscribeBuffered(events.EventDirectiveCompleted, subscriberBuffer)
	focus := j.bus.SubscribeBuffered(events.EventFocusChanged, subscriberBuffer)
	released := j.bus.SubscribeBuffered(events.EventPlaySyncReleased, subscriberBuffer)

	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		defer func() {
			j.bus.Unsubscribe(events.EventDirectiveCompleted, completed)
			j.bus.Unsubscribe(events.EventFocusChanged, focus)
			j.bus.Unsubscribe(events.EventPlaySyncReleased, released)
		}()

		j.logger.Info().Msg("journal started")
		for {
			select {
			case <-ctx.Done():
				j.logger.Info().Msg("journal stopping")
				return
			case payload := <-completed:
				if j.local(payload) {
					j.write(ctx, "directive", directiveRecord(payload))
				}
			case payload := <-focus:
				if j.local(payload) {
					j.write(ctx, "focus", focusTransition(payload))
				}
			case payload := <-released:
				if j.local(payload) {
					j.write(ctx, "layer", layerRelease(payload))
				}
			}
		}
	}()
}

// Stop ends the writer and waits for it.
func (j *Journal) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (j *Journal) local(p events.Payload) bool {
	origin := str(p, events.OriginField)
	return origin == "" || origin == j.nodeID
}

// Prune deletes rows recorded before cutoff and returns how many went.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, model := range models.JournalModels() {
		res := j.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(model)
		if res.Error != nil {
			return total, fmt.Errorf("prune journal: %w", res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

func (j *Journal) write(ctx context.Context, kind string, row any) {
	switch r := row.(type) {
	case *models.DirectiveRecord:
		j.stamp(&r.ID, &r.NodeID)
	case *models.FocusTransition:
		j.stamp(&r.ID, &r.NodeID)
	case *models.LayerRelease:
		j.stamp(&r.ID, &r.NodeID)
	}

	if err := j.db.WithContext(ctx).Create(row).Error; err != nil {
		telemetry.JournalWrites.WithLabelValues(kind, "error").Inc()
		j.logger.Error().Err(err).Str("kind", kind).Msg("failed to write journal row")
		return
	}
	telemetry.JournalWrites.WithLabelValues(kind, "ok").Inc()
}

func (j *Journal) stamp(id, nodeID *string) {
	*id = uuid.NewString()
	if *nodeID == "" {
		*nodeID = j.nodeID
	}
}

// Recent returns the latest directive records, newest first, optionally
// limited to one dialog.
func (j *Journal) Recent(ctx context.Context, dialogRequestID string, limit int) ([]models.DirectiveRecord, error) {
	var rows []models.DirectiveRecord
	query := j.db.WithContext(ctx).Model(&models.DirectiveRecord{})
	if dialogRequestID != "" {
		query = query.Where("dialog_request_id = ?", dialogRequestID)
	}
	if err := query.Order("timestamp DESC").Limit(clampLimit(limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query directive records: %w", err)
	}
	return rows, nil
}

// Transitions returns the latest focus transitions, optionally for one channel.
func (j *Journal) Transitions(ctx context.Context, channel string, limit int) ([]models.FocusTransition, error) {
	var rows []models.FocusTransition
	query := j.db.WithContext(ctx).Model(&models.FocusTransition{})
	if channel != "" {
		query = query.Where("channel = ?", channel)
	}
	if err := query.Order("timestamp DESC").Limit(clampLimit(limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query focus transitions: %w", err)
	}
	return rows, nil
}

// Releases returns the latest layer releases, optionally for one dialog.
func (j *Journal) Releases(ctx context.Context, dialogRequestID string, limit int) ([]models.LayerRelease, error) {
	var rows []models.LayerRelease
	query := j.db.WithContext(ctx).Model(&models.LayerRelease{})
	if dialogRequestID != "" {
		query = query.Where("dialog_request_id = ?", dialogRequestID)
	}
	if err := query.Order("timestamp DESC").Limit(clampLimit(limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query layer releases: %w", err)
	}
	return rows, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}

func directiveRecord(p events.Payload) *models.DirectiveRecord {
	return &models.DirectiveRecord{
		Timestamp:       time.Now().UTC(),
		NodeID:          str(p, events.OriginField),
		DialogRequestID: str(p, "dialog_request_id"),
		MessageID:       str(p, "message_id"),
		Type:            str(p, "type"),
		Medium:          str(p, "medium"),
		Blocking:        p["blocking"] == true,
		Result:          str(p, "result"),
		Description:     str(p, "description"),
		Details:         rest(p, "node_id", "dialog_request_id", "message_id", "type", "medium", "blocking", "result", "description"),
	}
}

func focusTransition(p events.Payload) *models.FocusTransition {
	return &models.FocusTransition{
		Timestamp: time.Now().UTC(),
		NodeID:    str(p, events.OriginField),
		Channel:   str(p, "channel"),
		State:     str(p, "state"),
		Previous:  str(p, "previous"),
		Request:   num(p, "request"),
		Maintain:  num(p, "maintain"),
		Details:   rest(p, "node_id", "channel", "state", "previous", "request", "maintain"),
	}
}

func layerRelease(p events.Payload) *models.LayerRelease {
	return &models.LayerRelease{
		Timestamp:       time.Now().UTC(),
		NodeID:          str(p, events.OriginField),
		DialogRequestID: str(p, "dialog_request_id"),
		MessageID:       str(p, "message_id"),
		Property:        str(p, "property"),
		PlayServiceID:   str(p, "play_service_id"),
		Reason:          str(p, "reason"),
		Details:         rest(p, "node_id", "dialog_request_id", "message_id", "property", "play_service_id", "reason"),
	}
}

func str(p events.Payload, key string) string {
	s, _ := p[key].(string)
	return s
}

// num reads an integer field. Payloads relayed from other nodes carry
// JSON numbers as float64.
func num(p events.Payload, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func rest(p events.Payload, known ...string) map[string]any {
	skip := make(map[string]bool, len(known))
	for _, k := range known {
		skip[k] = true
	}
	out := make(map[string]any)
	for k, v := range p {
		if !skip[k] {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
