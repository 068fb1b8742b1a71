/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package directive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/friendsincode/grimnir_voice/internal/clock"
	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/executor"
	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

var (
	// ErrNoHandler indicates no handler is registered for a directive type.
	ErrNoHandler = errors.New("no handler registered")
)

// Options tunes a Scheduler.
type Options struct {
	// CancelCapacity bounds the canceled dialog ring. Defaults to 10.
	CancelCapacity int
	Clock          clock.Clock
}

// Scheduler dispatches directives to registered handlers, keeping blocking
// directives of one dialog and medium strictly sequential.
//
// All state below is owned by the serial executor.
type Scheduler struct {
	exec   *executor.Serial
	bus    events.Publisher
	clock  clock.Clock
	tracer trace.Tracer
	logger zerolog.Logger

	handlers  map[string]HandleInfo
	handling  []*record
	blocked   []*record
	canceled  *cancelRing
	observers []Observer
	seq       uint64
}

// record is one dispatched directive. Records are compared by pointer, so
// directives sharing a message id stay distinct.
type record struct {
	seq       uint64
	directive Directive
	policy    BlockingPolicy
	since     time.Time
	span      trace.Span
}

// Entry describes an in-flight or blocked directive.
type Entry struct {
	Type            string         `json:"type"`
	DialogRequestID string         `json:"dialog_request_id"`
	MessageID       string         `json:"message_id"`
	Policy          BlockingPolicy `json:"policy"`
	Since           time.Time      `json:"since"`
}

// Snapshot is a point-in-time view of the scheduler.
type Snapshot struct {
	InFlight        []Entry  `json:"in_flight"`
	Blocked         []Entry  `json:"blocked"`
	CanceledDialogs []string `json:"canceled_dialogs"`
	Handlers        []string `json:"handlers"`
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.EventType, events.Payload) {}

// NewScheduler creates a scheduler and starts its worker. bus may be nil.
func NewScheduler(opts Options, bus events.Publisher, logger zerolog.Logger) *Scheduler {
	if bus == nil {
		bus = nopPublisher{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	logger = logger.With().Str("component", "directive_scheduler").Logger()

	return &Scheduler{
		exec:     executor.NewSerial("directive", logger),
		bus:      bus,
		clock:    opts.Clock,
		tracer:   telemetry.Tracer("grimnir_voice/directive"),
		logger:   logger,
		handlers: make(map[string]HandleInfo),
		canceled: newCancelRing(opts.CancelCapacity),
	}
}

// Close stops the worker. Completions reported afterwards are dropped.
func (s *Scheduler) Close() {
	s.exec.Close()
}

// Register adds handlers, replacing any existing registration for the same type.
func (s *Scheduler) Register(infos ...HandleInfo) {
	s.exec.Submit(func() {
		for _, info := range infos {
			if info.Handle == nil {
				s.logger.Warn().Str("type", info.Type()).Msg("handler without handle callback ignored")
				continue
			}
			s.handlers[info.Type()] = info
			s.logger.Debug().Str("type", info.Type()).Str("medium", info.Policy.Medium.String()).Bool("blocking", info.Policy.Blocking).Msg("handler registered")
		}
	})
}

// Unregister removes the handlers for the given "namespace.name" types.
func (s *Scheduler) Unregister(types ...string) {
	s.exec.Submit(func() {
		for _, t := range types {
			delete(s.handlers, t)
		}
	})
}

// AddObserver registers an observer. Observers must be comparable, typically pointers.
func (s *Scheduler) AddObserver(o Observer) {
	s.exec.Submit(func() {
		for _, existing := range s.observers {
			if existing == o {
				return
			}
		}
		s.observers = append(s.observers, o)
	})
}

// RemoveObserver unregisters an observer.
func (s *Scheduler) RemoveObserver(o Observer) {
	s.exec.Submit(func() {
		for i, existing := range s.observers {
			if existing == o {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	})
}

// Dispatch queues a directive. Its outcome is reported to observers and on the bus.
func (s *Scheduler) Dispatch(d Directive) {
	s.logger.Info().
		Str("type", d.Type()).
		Str("dialog_request_id", d.Header.DialogRequestID).
		Str("message_id", d.Header.MessageID).
		Msg("directive received")

	s.exec.Submit(func() { s.prefetch(d) })
}

// DispatchAttachment passes an attachment straight to its handler.
func (s *Scheduler) DispatchAttachment(a Attachment) {
	s.exec.Submit(func() {
		info, ok := s.handlers[a.Header.Type()]
		if !ok {
			s.logger.Warn().Str("type", a.Header.Type()).Str("message_id", a.Header.MessageID).Msg("attachment dropped, no handler registered")
			return
		}
		if info.Attachment != nil {
			info.Attachment(a)
		}
	})
}

// Cancel stops every not yet handled directive of a dialog from running.
// Directives already being handled are left to finish on their own.
func (s *Scheduler) Cancel(dialogRequestID string) {
	s.exec.Submit(func() {
		s.logger.Info().Str("dialog_request_id", dialogRequestID).Msg("dialog canceled")
		s.rememberCanceled(dialogRequestID, CancelAll)
	})
}

// Snapshot returns the current scheduler state.
func (s *Scheduler) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.exec.Do(ctx, func() {
		snap.InFlight = entries(s.handling)
		snap.Blocked = entries(s.blocked)
		snap.CanceledDialogs = s.canceled.dialogs()
		snap.Handlers = make([]string, 0, len(s.handlers))
		for t := range s.handlers {
			snap.Handlers = append(snap.Handlers, t)
		}
		sort.Strings(snap.Handlers)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("scheduler snapshot: %w", err)
	}
	return snap, nil
}

func entries(records []*record) []Entry {
	out := make([]Entry, 0, len(records))
	for _, r := range records {
		out = append(out, Entry{
			Type:            r.directive.Type(),
			DialogRequestID: r.directive.Header.DialogRequestID,
			MessageID:       r.directive.Header.MessageID,
			Policy:          r.policy,
			Since:           r.since,
		})
	}
	return out
}

func (s *Scheduler) prefetch(d Directive) {
	info, ok := s.handlers[d.Type()]
	if !ok {
		s.notifyDidComplete(d, BlockingPolicy{}, Failed(fmt.Sprintf("%v: %s", ErrNoHandler, d.Header)))
		return
	}
	if s.canceled.matches(d) {
		s.notifyDidComplete(d, info.Policy, Canceled())
		return
	}

	telemetry.DirectivesDispatched.WithLabelValues(d.Type()).Inc()
	s.notifyWillPrefetch(d, info.Policy)

	if info.Prefetch != nil {
		if err := callPrefetch(info.Prefetch, d); err != nil {
			s.logger.Warn().Err(err).Str("type", d.Type()).Str("message_id", d.Header.MessageID).Msg("prefetch failed")
			s.notifyDidComplete(d, info.Policy, Failed(err.Error()))
			return
		}
	}

	s.seq++
	rec := &record{seq: s.seq, directive: d, policy: info.Policy}
	rec.span = telemetry.StartDirectiveSpan(s.tracer, telemetry.DirectiveSpan{
		Type:            d.Type(),
		DialogRequestID: d.Header.DialogRequestID,
		MessageID:       d.Header.MessageID,
		Medium:          info.Policy.Medium.String(),
		Blocking:        info.Policy.Blocking,
	})
	s.handle(rec)
}

func callPrefetch(fn func(Directive) error, d Directive) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prefetch panic: %v", r)
		}
	}()
	return fn(d)
}

func (s *Scheduler) handle(rec *record) {
	d := rec.directive
	id := d.Header.MessageID

	info, ok := s.handlers[d.Type()]
	if !ok {
		s.removeBlocked(rec)
		s.logger.Warn().Str("type", d.Type()).Msg("handler unregistered before handling")
		s.finish(rec, BlockingPolicy{}, Failed(fmt.Sprintf("%v: %s", ErrNoHandler, d.Header)))
		return
	}
	if s.canceled.matches(d) {
		s.removeBlocked(rec)
		s.logger.Debug().Str("type", d.Type()).Str("message_id", id).Msg("directive canceled before handling")
		if info.Cancel != nil {
			info.Cancel(d)
		}
		s.finish(rec, info.Policy, Canceled())
		return
	}
	rec.policy = info.Policy
	if s.shouldBlock(rec) {
		if indexOf(s.blocked, rec) < 0 {
			s.logger.Debug().Str("type", d.Type()).Str("message_id", id).Uint64("seq", rec.seq).Msg("directive blocked")
			rec.since = s.clock.Now()
			s.blocked = append(s.blocked, rec)
			telemetry.DirectiveStep(rec.span, telemetry.StepBlocked)
			telemetry.DirectivesBlocked.Set(float64(len(s.blocked)))
			s.publish(events.EventDirectiveBlocked, d, info.Policy, nil)
		}
		return
	}

	s.removeBlocked(rec)
	s.notifyWillHandle(d, info.Policy)

	telemetry.DirectiveStep(rec.span, telemetry.StepHandling)
	rec.since = s.clock.Now()
	s.handling = append(s.handling, rec)
	telemetry.DirectivesInFlight.Set(float64(len(s.handling)))

	done := s.completion(rec)
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Str("type", d.Type()).Msg("handler panicked")
				done(Failed(fmt.Sprintf("handler panic: %v", r)))
			}
		}()
		info.Handle(d, done)
	}()
}

func (s *Scheduler) completion(rec *record) Completion {
	var once sync.Once
	return func(result Result) {
		once.Do(func() {
			s.exec.Submit(func() { s.handled(rec, result) })
		})
	}
}

func (s *Scheduler) handled(rec *record, result Result) {
	d := rec.directive
	if result.Kind == ResultStopped && result.CancelPolicy.Cancels() {
		s.rememberCanceled(d.Header.DialogRequestID, result.CancelPolicy)
	}

	s.finish(rec, rec.policy, result)
	s.removeHandling(rec)
	s.replayBlocked()
}

// finish reports the outcome of a scheduled directive and closes its span.
func (s *Scheduler) finish(rec *record, policy BlockingPolicy, result Result) {
	failure := ""
	if result.Kind == ResultFailed {
		failure = result.Description
	}
	telemetry.EndDirectiveSpan(rec.span, result.Kind.String(), failure)
	s.notifyDidComplete(rec.directive, policy, result)
}

// replayBlocked re-runs blocked directives through the handle step in arrival order.
func (s *Scheduler) replayBlocked() {
	for _, r := range append([]*record(nil), s.blocked...) {
		if indexOf(s.blocked, r) < 0 {
			continue
		}
		if s.shouldBlock(r) {
			continue
		}
		s.handle(r)
	}
}

// shouldBlock looks at the directives of the same dialog that precede rec,
// either in flight or blocked ahead of it.
func (s *Scheduler) shouldBlock(rec *record) bool {
	policy := rec.policy
	dialog := rec.directive.Header.DialogRequestID

	var preceding []*record
	for _, list := range [][]*record{s.handling, s.blocked} {
		for _, r := range list {
			if r.directive.Header.DialogRequestID == dialog {
				preceding = append(preceding, r)
			}
		}
	}
	for i, r := range preceding {
		if r == rec {
			preceding = preceding[:i]
			break
		}
	}

	for _, r := range preceding {
		if policy.Medium == MediumAny {
			return true
		}
		if r.policy.Blocking && (r.policy.Medium == policy.Medium || r.policy.Medium == MediumAny) {
			return true
		}
	}
	return false
}

// rememberCanceled records a canceled dialog and resolves its blocked
// directives, which would otherwise only learn of it once unblocked.
func (s *Scheduler) rememberCanceled(dialogRequestID string, policy CancelPolicy) {
	s.canceled.push(dialogRequestID, policy)
	telemetry.CanceledDialogs.Set(float64(s.canceled.len()))
	s.bus.Publish(events.EventDialogCanceled, events.Payload{
		"dialog_request_id": dialogRequestID,
		"cancel_all":        policy.CancelAll,
		"cancel_targets":    policy.CancelTargets,
	})

	for _, r := range append([]*record(nil), s.blocked...) {
		if r.directive.Header.DialogRequestID == dialogRequestID && policy.Covers(r.directive.Type()) {
			s.handle(r)
		}
	}
}

func indexOf(records []*record, rec *record) int {
	for i, r := range records {
		if r == rec {
			return i
		}
	}
	return -1
}

func (s *Scheduler) removeBlocked(rec *record) {
	if i := indexOf(s.blocked, rec); i >= 0 {
		s.blocked = append(s.blocked[:i], s.blocked[i+1:]...)
		telemetry.DirectivesBlocked.Set(float64(len(s.blocked)))
	}
}

func (s *Scheduler) removeHandling(rec *record) {
	if i := indexOf(s.handling, rec); i >= 0 {
		s.handling = append(s.handling[:i], s.handling[i+1:]...)
		telemetry.DirectivesInFlight.Set(float64(len(s.handling)))
	}
}

func (s *Scheduler) notifyWillPrefetch(d Directive, policy BlockingPolicy) {
	for _, o := range s.observers {
		o.DirectiveWillPrefetch(d, policy)
	}
	s.publish(events.EventDirectiveWillPrefetch, d, policy, nil)
}

func (s *Scheduler) notifyWillHandle(d Directive, policy BlockingPolicy) {
	s.logger.Info().Str("type", d.Type()).Str("message_id", d.Header.MessageID).Msg("handling directive")
	for _, o := range s.observers {
		o.DirectiveWillHandle(d, policy)
	}
	s.publish(events.EventDirectiveWillHandle, d, policy, nil)
}

func (s *Scheduler) notifyDidComplete(d Directive, policy BlockingPolicy, result Result) {
	s.logger.Debug().Str("type", d.Type()).Str("message_id", d.Header.MessageID).Str("result", result.String()).Msg("directive completed")
	telemetry.DirectiveResults.WithLabelValues(d.Type(), result.Kind.String()).Inc()
	for _, o := range s.observers {
		o.DirectiveDidComplete(d, policy, result)
	}
	s.publish(events.EventDirectiveCompleted, d, policy, &result)
}

func (s *Scheduler) publish(eventType events.EventType, d Directive, policy BlockingPolicy, result *Result) {
	payload := events.Payload{
		"type":              d.Type(),
		"namespace":         d.Header.Namespace,
		"name":              d.Header.Name,
		"dialog_request_id": d.Header.DialogRequestID,
		"message_id":        d.Header.MessageID,
		"medium":            policy.Medium.String(),
		"blocking":          policy.Blocking,
	}
	if result != nil {
		payload["result"] = result.Kind.String()
		if result.Description != "" {
			payload["description"] = result.Description
		}
	}
	s.bus.Publish(eventType, payload)
}
