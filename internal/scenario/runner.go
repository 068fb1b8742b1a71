/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_voice/internal/core"
	"github.com/friendsincode/grimnir_voice/internal/directive"
	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/focus"
	"github.com/friendsincode/grimnir_voice/internal/playsync"
)

const (
	defaultSettle  = time.Second
	recorderBuffer = 1024
)

// Event is one bus event seen during a run.
type Event struct {
	At      time.Duration    `json:"at"`
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload"`
}

// Timeline is everything a run published, ordered by arrival.
type Timeline struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Events   []Event       `json:"events"`
}

// Filter returns the events of the given types, in order.
func (t *Timeline) Filter(types ...events.EventType) []Event {
	want := make(map[events.EventType]bool, len(types))
	for _, et := range types {
		want[et] = true
	}
	var out []Event
	for _, e := range t.Events {
		if want[e.Type] {
			out = append(out, e)
		}
	}
	return out
}

// WriteText renders the timeline as an aligned table.
func (t *Timeline) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "# %s (%s)\n", t.Name, t.Duration.Round(time.Millisecond))
	for _, e := range t.Events {
		fmt.Fprintf(tw, "%8s\t%s\t%s\n", e.At.Round(time.Millisecond), e.Type, summarize(e.Payload))
	}
	return tw.Flush()
}

func summarize(p events.Payload) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return strings.Join(parts, " ")
}

// Runner plays a scenario against a fresh core.
type Runner struct {
	scenario *Scenario
	logger   zerolog.Logger

	mu      sync.Mutex
	timers  []*time.Timer
	stopped bool
}

// NewRunner prepares a run of s.
func NewRunner(s *Scenario, logger zerolog.Logger) *Runner {
	return &Runner{
		scenario: s,
		logger:   logger.With().Str("component", "scenario").Str("scenario", s.Name).Logger(),
	}
}

// Run executes every step at its offset, waits for the settle period and
// returns the recorded timeline. On cancellation the partial timeline is
// returned with ctx's error.
func (r *Runner) Run(ctx context.Context) (*Timeline, error) {
	bus := events.NewBus()
	start := time.Now()

	rec := newRecorder(bus, start)
	defer rec.close()

	c := core.New(core.Options{
		ShortLatency:   r.scenario.Focus.ShortLatency.Std(),
		ReleaseLatency: r.scenario.Focus.ReleaseLatency.Std(),
	}, bus, r.logger)
	closed := false
	closeCore := func() {
		if closed {
			return
		}
		closed = true
		r.stopTimers()
		c.Close()
	}
	defer closeCore()

	if err := r.install(c); err != nil {
		return nil, err
	}

	r.logger.Info().Int("steps", len(r.scenario.Steps)).Msg("scenario started")

	var runErr error
	for _, step := range r.scenario.OrderedSteps() {
		if err := sleepUntil(ctx, start.Add(step.At.Std())); err != nil {
			runErr = err
			break
		}
		r.apply(c, step)
	}

	if runErr == nil {
		settle := r.scenario.Settle.Std()
		if settle <= 0 {
			settle = defaultSettle
		}
		runErr = sleepUntil(ctx, time.Now().Add(settle))
	}

	closeCore()
	rec.close()

	timeline := &Timeline{
		Name:     r.scenario.Name,
		Duration: time.Since(start),
		Events:   rec.events(),
	}
	r.logger.Info().Int("events", len(timeline.Events)).Dur("duration", timeline.Duration).Msg("scenario finished")
	return timeline, runErr
}

func (r *Runner) install(c *core.Core) error {
	for _, ch := range r.scenario.Channels {
		priority, err := focus.ParsePriority(ch.Priority)
		if err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		name := ch.Name
		c.Arbitrator.Register(name, priority, focus.ChannelFunc(func(state focus.State) {
			r.logger.Debug().Str("channel", name).Str("state", state.String()).Msg("channel state")
		}))
	}

	infos := make([]directive.HandleInfo, 0, len(r.scenario.Handlers))
	for _, h := range r.scenario.Handlers {
		info, err := r.handleInfo(c, h)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}
	c.Scheduler.Register(infos...)
	return nil
}

func (r *Runner) handleInfo(c *core.Core, h Handler) (directive.HandleInfo, error) {
	namespace, name, _ := splitType(h.Type)
	policy, err := h.policy()
	if err != nil {
		return directive.HandleInfo{}, fmt.Errorf("handler %q: %w", h.Type, err)
	}

	var (
		property playsync.Property
		duration time.Duration
	)
	if h.Play != nil {
		if property, duration, err = h.Play.resolve(); err != nil {
			return directive.HandleInfo{}, fmt.Errorf("handler %q: %w", h.Type, err)
		}
	}

	return directive.HandleInfo{
		Namespace: namespace,
		Name:      name,
		Policy:    policy,
		Handle: func(d directive.Directive, done directive.Completion) {
			if h.Focus != "" {
				c.Arbitrator.RequestFocus(h.Focus)
			}
			if h.Play != nil {
				c.Ledger.StartPlay(property, playsync.Info{
					PlayServiceID:   h.Play.PlayServiceID,
					DialogRequestID: d.Header.DialogRequestID,
					MessageID:       d.Header.MessageID,
					Duration:        duration,
				})
			}
			r.after(h.HandleDelay.Std(), func() {
				if h.Play != nil {
					c.Ledger.EndPlay(property)
				}
				if h.Focus != "" {
					c.Arbitrator.ReleaseFocus(h.Focus)
				}
				done(h.result())
			})
		},
	}, nil
}

func (r *Runner) apply(c *core.Core, step Step) {
	switch {
	case step.Dispatch != nil:
		namespace, name, _ := splitType(step.Dispatch.Type)
		messageID := step.Dispatch.MessageID
		if messageID == "" {
			messageID = uuid.NewString()
		}
		var payload json.RawMessage
		if step.Dispatch.Payload != nil {
			raw, err := json.Marshal(step.Dispatch.Payload)
			if err != nil {
				r.logger.Warn().Err(err).Str("type", step.Dispatch.Type).Msg("payload dropped")
			} else {
				payload = raw
			}
		}
		c.Scheduler.Dispatch(directive.Directive{
			Header: directive.Header{
				Namespace:       namespace,
				Name:            name,
				DialogRequestID: step.Dispatch.Dialog,
				MessageID:       messageID,
			},
			Payload: payload,
		})
	case step.Cancel != "":
		c.Scheduler.Cancel(step.Cancel)
	case step.Request != "":
		c.Arbitrator.RequestFocus(step.Request)
	case step.Release != "":
		c.Arbitrator.ReleaseFocus(step.Release)
	case step.Start != nil:
		property, d, _ := Play{Property: step.Start.Property, Duration: step.Start.Duration}.resolve()
		messageID := step.Start.MessageID
		if messageID == "" {
			messageID = uuid.NewString()
		}
		c.Ledger.StartPlay(property, playsync.Info{
			PlayServiceID:   step.Start.PlayServiceID,
			DialogRequestID: step.Start.Dialog,
			MessageID:       messageID,
			Duration:        d,
		})
	case step.End != "":
		property, _ := playsync.ParseProperty(step.End)
		c.Ledger.EndPlay(property)
	case step.Stop != nil:
		properties := make([]playsync.Property, 0, len(step.Stop.Properties))
		for _, p := range step.Stop.Properties {
			property, _ := playsync.ParseProperty(p)
			properties = append(properties, property)
		}
		c.Ledger.StopPlay(step.Stop.Dialog, properties...)
	}
}

// after runs fn once d has passed, unless the run has stopped.
func (r *Runner) after(d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.timers = append(r.timers, time.AfterFunc(d, fn))
}

func (r *Runner) stopTimers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
}

func sleepUntil(ctx context.Context, deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// recorder copies every bus event into a timeline.
type recorder struct {
	bus   *events.Bus
	start time.Time
	subs  map[events.EventType]events.Subscriber
	wg    sync.WaitGroup
	once  sync.Once

	mu  sync.Mutex
	out []Event
}

func newRecorder(bus *events.Bus, start time.Time) *recorder {
	rec := &recorder{
		bus:   bus,
		start: start,
		subs:  make(map[events.EventType]events.Subscriber),
	}
	for _, et := range events.AllEventTypes() {
		sub := bus.SubscribeBuffered(et, recorderBuffer)
		rec.subs[et] = sub
		rec.wg.Add(1)
		go func(et events.EventType, sub events.Subscriber) {
			defer rec.wg.Done()
			for payload := range sub {
				rec.add(et, payload)
			}
		}(et, sub)
	}
	return rec
}

func (rec *recorder) add(et events.EventType, payload events.Payload) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.out = append(rec.out, Event{
		At:      time.Since(rec.start),
		Type:    et,
		Payload: payload,
	})
}

func (rec *recorder) close() {
	rec.once.Do(func() {
		for et, sub := range rec.subs {
			rec.bus.Unsubscribe(et, sub)
		}
		rec.wg.Wait()
	})
}

func (rec *recorder) events() []Event {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]Event(nil), rec.out...)
}
