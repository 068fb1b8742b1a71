/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playsync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_voice/internal/clock"
	"github.com/friendsincode/grimnir_voice/internal/contextinfo"
	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/executor"
	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

// ContextName is the client context key the play stack is reported under.
const ContextName = "playStack"

// Release reasons carried on playsync.released.
const (
	ReasonExpired    = "expired"
	ReasonSuperseded = "superseded"
	ReasonStopped    = "stopped"
	ReasonMultiLayer = "multi_layer"
)

// Listener learns when a layer it started has been released. Calls are
// made in order from a single goroutine.
type Listener interface {
	PlaySyncDidRelease(property Property, messageID string)
}

// Options tunes a Ledger.
type Options struct {
	Clock clock.Clock
}

// Ledger tracks the live presentation layers of each dialog and expires
// them on timers.
//
// All state below is owned by the serial executor.
type Ledger struct {
	exec     *executor.Serial
	notifier *executor.Serial
	bus      events.Publisher
	logger   zerolog.Logger

	stack     PlayStack
	timers    *executor.Timers[Property]
	paused    bool
	pausedSet map[Property]struct{}
	durations map[Property]time.Duration
	listeners []Listener
}

// EntrySnapshot is one live layer with its timer state.
type EntrySnapshot struct {
	Entry
	TimerRunning bool `json:"timer_running"`
	TimerPaused  bool `json:"timer_paused"`
}

// Snapshot is a point-in-time view of the ledger.
type Snapshot struct {
	Entries          []EntrySnapshot `json:"entries"`
	PlayServiceIDs   []string        `json:"play_service_ids"`
	MultiLayerSynced bool            `json:"multi_layer_synced"`
	TimersPaused     bool            `json:"timers_paused"`
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.EventType, events.Payload) {}

// NewLedger creates an empty ledger and starts its workers. bus may be nil.
func NewLedger(opts Options, bus events.Publisher, logger zerolog.Logger) *Ledger {
	if bus == nil {
		bus = nopPublisher{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	logger = logger.With().Str("component", "playsync_ledger").Logger()

	exec := executor.NewSerial("playsync", logger)
	return &Ledger{
		exec:      exec,
		notifier:  executor.NewSerial("playsync_notifier", logger),
		bus:       bus,
		logger:    logger,
		timers:    executor.NewTimers[Property](exec, opts.Clock),
		pausedSet: make(map[Property]struct{}),
		durations: make(map[Property]time.Duration),
	}
}

// Close cancels every timer and stops the workers.
func (l *Ledger) Close() {
	l.exec.Submit(l.timers.CancelAll)
	l.exec.Close()
	l.notifier.Close()
}

// AddListener registers a release listener. Listeners must be comparable,
// typically pointers.
func (l *Ledger) AddListener(listener Listener) {
	l.exec.Submit(func() {
		for _, existing := range l.listeners {
			if existing == listener {
				return
			}
		}
		l.listeners = append(l.listeners, listener)
	})
}

// RemoveListener unregisters a listener.
func (l *Ledger) RemoveListener(listener Listener) {
	l.exec.Submit(func() {
		for i, existing := range l.listeners {
			if existing == listener {
				l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
				return
			}
		}
	})
}

// StartPlay binds property to info.
func (l *Ledger) StartPlay(property Property, info Info) {
	l.exec.Submit(func() {
		l.logger.Debug().
			Str("property", property.String()).
			Str("dialog_request_id", info.DialogRequestID).
			Str("play_service_id", info.PlayServiceID).
			Dur("duration", info.Duration).
			Msg("start play")

		l.removeTimer(property)

		// Within a dialog a newer play of the same layer replaces the display
		// of another service. Media replaces its display regardless.
		for _, e := range l.stack.Filter(func(e Entry) bool {
			return e.Property != property &&
				e.Info.DialogRequestID == info.DialogRequestID &&
				e.Property.Context == ContextDisplay &&
				e.Property.Layer == property.Layer &&
				(e.Info.PlayServiceID != info.PlayServiceID || e.Property.Layer == LayerMedia)
		}) {
			l.pop(e.Property, ReasonSuperseded)
		}

		l.stack.Set(property, info)
		l.synchronized()

		for _, e := range l.sameService(property.Layer, info.PlayServiceID) {
			l.removeTimer(e.Property)
		}

		// A display with nothing else of its dialog playing expires on its own.
		siblings := l.stack.Filter(func(e Entry) bool { return e.Info.DialogRequestID == info.DialogRequestID })
		if property.Context == ContextDisplay && len(siblings) == 1 {
			l.addTimer(property, info.Duration)
		}
	})
}

// EndPlay starts the expiry of property and of the layers sharing its
// service. With more than one layer type live, property is released at once.
func (l *Ledger) EndPlay(property Property) {
	l.exec.Submit(func() {
		info, ok := l.stack.Get(property)
		if !ok {
			return
		}
		l.logger.Debug().Str("property", property.String()).Msg("end play")

		for _, e := range l.sameService(property.Layer, info.PlayServiceID) {
			l.addTimer(e.Property, e.Info.Duration)
		}

		if l.stack.MultiLayerSynced() {
			l.pop(property, ReasonMultiLayer)
		}
	})
}

// StopPlay releases every layer of a dialog, or only the given properties of it.
func (l *Ledger) StopPlay(dialogRequestID string, properties ...Property) {
	l.exec.Submit(func() {
		l.logger.Debug().Str("dialog_request_id", dialogRequestID).Msg("stop play")

		for _, e := range l.stack.Filter(func(e Entry) bool {
			return e.Info.DialogRequestID == dialogRequestID && matches(properties, e.Property)
		}) {
			l.pop(e.Property, ReasonStopped)
		}
	})
}

// StartTimer arms the expiry of a live property with d.
func (l *Ledger) StartTimer(property Property, d time.Duration) {
	l.exec.Submit(func() {
		if _, ok := l.stack.Get(property); !ok {
			return
		}
		l.addTimer(property, d)
	})
}

// ResetTimer restarts a running expiry with the property's own duration.
func (l *Ledger) ResetTimer(property Property) {
	l.exec.Submit(func() {
		if !l.timers.Pending(property) {
			return
		}
		info, ok := l.stack.Get(property)
		if !ok {
			return
		}
		l.addTimer(property, info.Duration)
	})
}

// CancelTimer stops the expiry of property. The layer stays live.
func (l *Ledger) CancelTimer(property Property) {
	l.exec.Submit(func() { l.removeTimer(property) })
}

// PauseTimer freezes expiry. Timers armed while paused wait for ResumeTimer.
func (l *Ledger) PauseTimer(property Property) {
	l.exec.Submit(func() {
		l.paused = true
		if l.timers.Pending(property) {
			l.removeTimer(property)
			l.pausedSet[property] = struct{}{}
		}
	})
}

// ResumeTimer lifts the pause and restarts every paused timer with its
// last armed duration.
func (l *Ledger) ResumeTimer(property Property) {
	l.exec.Submit(func() {
		l.logger.Debug().Str("property", property.String()).Int("paused", len(l.pausedSet)).Msg("resume timers")
		l.paused = false

		paused := make([]Property, 0, len(l.pausedSet))
		for p := range l.pausedSet {
			paused = append(paused, p)
		}
		clear(l.pausedSet)

		for _, p := range paused {
			if d, ok := l.durations[p]; ok {
				l.addTimer(p, d)
			}
		}
	})
}

// Snapshot returns the live layers.
func (l *Ledger) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := l.exec.Do(ctx, func() {
		snap.Entries = make([]EntrySnapshot, 0, len(l.stack))
		for _, e := range l.stack {
			_, paused := l.pausedSet[e.Property]
			snap.Entries = append(snap.Entries, EntrySnapshot{
				Entry:        e,
				TimerRunning: l.timers.Pending(e.Property),
				TimerPaused:  paused,
			})
		}
		snap.PlayServiceIDs = l.stack.PlayServiceIDs()
		snap.MultiLayerSynced = l.stack.MultiLayerSynced()
		snap.TimersPaused = l.paused
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("playsync snapshot: %w", err)
	}
	return snap, nil
}

// PlayServiceIDs returns the distinct service ids on the stack, newest first.
func (l *Ledger) PlayServiceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := l.exec.Do(ctx, func() { ids = l.stack.PlayServiceIDs() })
	if err != nil {
		return nil, fmt.Errorf("playsync service ids: %w", err)
	}
	return ids, nil
}

// ContextProvider reports the play stack as client context.
func (l *Ledger) ContextProvider() contextinfo.Provider {
	return func(ctx context.Context) (*contextinfo.Info, error) {
		ids, err := l.PlayServiceIDs(ctx)
		if err != nil {
			return nil, err
		}
		return &contextinfo.Info{
			ContextType: contextinfo.ContextClient,
			Name:        ContextName,
			Payload:     ids,
		}, nil
	}
}

func (l *Ledger) sameService(layer LayerType, playServiceID string) []Entry {
	return l.stack.Filter(func(e Entry) bool {
		return e.Property.Layer == layer && e.Info.PlayServiceID == playServiceID
	})
}

func (l *Ledger) pop(property Property, reason string) {
	info, ok := l.stack.Get(property)
	if !ok {
		return
	}
	l.removeTimer(property)
	l.stack.Remove(property)

	l.logger.Debug().
		Str("property", property.String()).
		Str("message_id", info.MessageID).
		Str("reason", reason).
		Msg("layer released")

	listeners := append([]Listener(nil), l.listeners...)
	l.notifier.Submit(func() {
		for _, listener := range listeners {
			listener.PlaySyncDidRelease(property, info.MessageID)
		}
	})

	telemetry.PlaySyncReleases.WithLabelValues(string(property.Layer), string(property.Context)).Inc()
	l.bus.Publish(events.EventPlaySyncReleased, events.Payload{
		"property":          property.String(),
		"layer":             string(property.Layer),
		"context":           string(property.Context),
		"dialog_request_id": info.DialogRequestID,
		"message_id":        info.MessageID,
		"play_service_id":   info.PlayServiceID,
		"reason":            reason,
	})
	l.synchronized()
}

// synchronized reports the stack after a change. Sound layers whose timer
// is running are about to go and are left out.
func (l *Ledger) synchronized() {
	telemetry.PlayStackEntries.Set(float64(len(l.stack)))

	properties := make([]string, 0, len(l.stack))
	for _, e := range l.stack {
		if e.Property.Context == ContextDisplay || !l.timers.Pending(e.Property) {
			properties = append(properties, e.Property.String())
		}
	}
	l.bus.Publish(events.EventPlaySyncSynchronized, events.Payload{
		"properties":       properties,
		"play_service_ids": l.stack.PlayServiceIDs(),
	})
}

func (l *Ledger) addTimer(property Property, d time.Duration) {
	l.durations[property] = d
	l.removeTimer(property)

	if d <= 0 {
		return
	}
	if l.paused {
		l.pausedSet[property] = struct{}{}
		return
	}
	l.timers.Schedule(property, d, func() {
		l.logger.Debug().Str("property", property.String()).Dur("duration", d).Msg("layer timer fired")
		l.pop(property, ReasonExpired)
	})
}

func (l *Ledger) removeTimer(property Property) {
	l.timers.Cancel(property)
	delete(l.pausedSet, property)
}

func matches(filter []Property, p Property) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == p {
			return true
		}
	}
	return false
}
