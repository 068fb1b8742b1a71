/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package focus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_voice/internal/clock"
	"github.com/friendsincode/grimnir_voice/internal/directive"
	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/executor"
	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

var (
	// ErrNotRegistered indicates the channel name has no registration.
	ErrNotRegistered = errors.New("focus channel not registered")

	// ErrUnknownPriority indicates an unknown priority preset name.
	ErrUnknownPriority = errors.New("unknown focus priority")
)

const (
	// DefaultShortLatency delays promoting a background channel after the
	// foreground one let go.
	DefaultShortLatency = 500 * time.Millisecond

	// DefaultReleaseLatency delays the "everything idle" notification.
	DefaultReleaseLatency = time.Second
)

const (
	timerAssignForeground = "assign_foreground"
	timerRelease          = "release"
)

// Channel receives the state changes of one registration. Calls are made in
// order from a single goroutine, never from the arbitrator's worker.
type Channel interface {
	FocusChannelDidChange(state State)
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(State)

func (f ChannelFunc) FocusChannelDidChange(state State) { f(state) }

// Delegate gates focus acquisition and learns when all focus is gone.
type Delegate interface {
	// FocusShouldAcquire runs on the arbitrator's worker and must not call
	// back into the arbitrator synchronously.
	FocusShouldAcquire() bool
	FocusShouldRelease()
}

type alwaysAcquire struct{}

func (alwaysAcquire) FocusShouldAcquire() bool { return true }
func (alwaysAcquire) FocusShouldRelease()      {}

// Options tunes an Arbitrator.
type Options struct {
	ShortLatency   time.Duration
	ReleaseLatency time.Duration
	Clock          clock.Clock
	Delegate       Delegate
}

type channelInfo struct {
	name     string
	priority ChannelPriority
	channel  Channel
	state    State
	since    time.Time
}

// Arbitrator grants one foreground channel at a time among registered
// channels, ranking requests by priority.
//
// It also observes the directive scheduler: while an audio directive is
// being handled the idle notification is held back.
type Arbitrator struct {
	exec     *executor.Serial
	notifier *executor.Serial
	bus      events.Publisher
	clock    clock.Clock
	delegate Delegate
	logger   zerolog.Logger

	shortLatency   time.Duration
	releaseLatency time.Duration

	channels []*channelInfo
	timers   *executor.Timers[string]
	audio    map[string]struct{}
}

// ChannelSnapshot describes one registration.
type ChannelSnapshot struct {
	Name     string          `json:"name"`
	Priority ChannelPriority `json:"priority"`
	State    State           `json:"state"`
	Since    time.Time       `json:"since"`
}

// Snapshot is a point-in-time view of the arbitrator.
type Snapshot struct {
	Channels        []ChannelSnapshot `json:"channels"`
	Foreground      string            `json:"foreground,omitempty"`
	AudioDirectives int               `json:"audio_directives"`
	AssignPending   bool              `json:"assign_pending"`
	ReleasePending  bool              `json:"release_pending"`
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.EventType, events.Payload) {}

// NewArbitrator creates an arbitrator and starts its workers. bus may be nil.
func NewArbitrator(opts Options, bus events.Publisher, logger zerolog.Logger) *Arbitrator {
	if bus == nil {
		bus = nopPublisher{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Delegate == nil {
		opts.Delegate = alwaysAcquire{}
	}
	if opts.ShortLatency <= 0 {
		opts.ShortLatency = DefaultShortLatency
	}
	if opts.ReleaseLatency <= 0 {
		opts.ReleaseLatency = DefaultReleaseLatency
	}
	logger = logger.With().Str("component", "focus_arbitrator").Logger()

	exec := executor.NewSerial("focus", logger)
	return &Arbitrator{
		exec:           exec,
		notifier:       executor.NewSerial("focus_notifier", logger),
		bus:            bus,
		clock:          opts.Clock,
		delegate:       opts.Delegate,
		logger:         logger,
		shortLatency:   opts.ShortLatency,
		releaseLatency: opts.ReleaseLatency,
		timers:         executor.NewTimers[string](exec, opts.Clock),
		audio:          make(map[string]struct{}),
	}
}

// Close cancels pending transitions and stops the workers. Channel
// notifications already queued are still delivered.
func (a *Arbitrator) Close() {
	a.exec.Submit(a.timers.CancelAll)
	a.exec.Close()
	a.notifier.Close()
}

// Register adds a channel in state nothing, replacing any previous
// registration under the same name.
func (a *Arbitrator) Register(name string, priority ChannelPriority, ch Channel) {
	a.exec.Submit(func() {
		if i := a.indexOf(name); i >= 0 {
			a.channels = append(a.channels[:i], a.channels[i+1:]...)
		}
		a.channels = append(a.channels, &channelInfo{
			name:     name,
			priority: priority,
			channel:  ch,
			state:    StateNothing,
			since:    a.clock.Now(),
		})
		a.logger.Debug().Str("channel", name).Str("priority", priority.String()).Msg("channel registered")
	})
}

// Unregister removes a channel. A channel that still held focus counts as
// released, so background channels may be promoted.
func (a *Arbitrator) Unregister(name string) {
	a.exec.Submit(func() {
		i := a.indexOf(name)
		if i < 0 {
			return
		}
		held := a.channels[i].state != StateNothing
		a.channels = append(a.channels[:i], a.channels[i+1:]...)
		a.logger.Debug().Str("channel", name).Msg("channel unregistered")
		if held {
			a.assignForeground()
			a.notifyReleaseIfNeeded()
		}
	})
}

// PrepareFocus announces that the channel will request focus soon. Lower
// ranked requests made meanwhile are kept in the background.
func (a *Arbitrator) PrepareFocus(name string) {
	a.exec.Submit(func() {
		info := a.lookup(name)
		if info == nil {
			return
		}
		a.update(info, StatePrepare)
	})
}

// CancelFocus withdraws a PrepareFocus. It has no effect on a channel that
// has moved past prepare.
func (a *Arbitrator) CancelFocus(name string) {
	a.exec.Submit(func() {
		info := a.lookup(name)
		if info == nil || info.state != StatePrepare {
			return
		}
		a.update(info, StateNothing)
	})
}

// RequestFocus asks for the foreground. The outcome is delivered to the
// channel's FocusChannelDidChange.
func (a *Arbitrator) RequestFocus(name string) {
	a.exec.Submit(func() { a.request(name) })
}

// ReleaseFocus drops the channel to nothing.
func (a *Arbitrator) ReleaseFocus(name string) {
	a.exec.Submit(func() {
		info := a.lookup(name)
		if info == nil {
			return
		}
		a.update(info, StateNothing)
	})
}

// StopForeground drops whichever channel holds the foreground.
func (a *Arbitrator) StopForeground() {
	a.exec.Submit(func() {
		fg := a.foreground()
		if fg == nil {
			a.logger.Debug().Msg("no foreground channel to stop")
			return
		}
		a.update(fg, StateNothing)
	})
}

// Snapshot returns the current channel states.
func (a *Arbitrator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := a.exec.Do(ctx, func() {
		snap.Channels = make([]ChannelSnapshot, 0, len(a.channels))
		for _, info := range a.channels {
			snap.Channels = append(snap.Channels, ChannelSnapshot{
				Name:     info.name,
				Priority: info.priority,
				State:    info.state,
				Since:    info.since,
			})
		}
		if fg := a.foreground(); fg != nil {
			snap.Foreground = fg.name
		}
		snap.AudioDirectives = len(a.audio)
		snap.AssignPending = a.timers.Pending(timerAssignForeground)
		snap.ReleasePending = a.timers.Pending(timerRelease)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("focus snapshot: %w", err)
	}
	return snap, nil
}

// DirectiveWillPrefetch implements directive.Observer.
func (a *Arbitrator) DirectiveWillPrefetch(directive.Directive, directive.BlockingPolicy) {}

// DirectiveWillHandle implements directive.Observer.
func (a *Arbitrator) DirectiveWillHandle(d directive.Directive, policy directive.BlockingPolicy) {
	if policy.Medium != directive.MediumAudio {
		return
	}
	id := d.Header.MessageID
	a.exec.Submit(func() {
		a.audio[id] = struct{}{}
		a.timers.Cancel(timerRelease)
	})
}

// DirectiveDidComplete implements directive.Observer.
func (a *Arbitrator) DirectiveDidComplete(d directive.Directive, policy directive.BlockingPolicy, _ directive.Result) {
	if policy.Medium != directive.MediumAudio {
		return
	}
	id := d.Header.MessageID
	a.exec.Submit(func() {
		if _, ok := a.audio[id]; !ok {
			return
		}
		delete(a.audio, id)
		if len(a.audio) == 0 {
			a.notifyReleaseIfNeeded()
		}
	})
}

func (a *Arbitrator) request(name string) {
	info := a.lookup(name)
	if info == nil {
		return
	}
	if !a.delegate.FocusShouldAcquire() {
		a.logger.Warn().Str("channel", name).Msg("focus should not be acquired")
		a.update(info, StateNothing)
		return
	}

	fg := a.foreground()
	if fg == info {
		a.update(info, StateForeground)
		return
	}

	// Demote the holder when the request reaches its maintain priority.
	if fg != nil && info.priority.Request >= fg.priority.Maintain {
		a.update(fg, StateBackground)
	}

	if prep := a.prepared(); prep != nil && prep != info && info.priority.Request < prep.priority.Request {
		// The prepared channel will ask shortly.
		a.update(info, StateBackground)
	} else if bg := a.background(); bg != nil && bg != info && info.priority.Request < bg.priority.Maintain {
		// A higher background channel gets the foreground next.
		a.update(info, StateBackground)
	} else if a.foreground() == nil {
		a.update(info, StateForeground)
	} else {
		a.update(info, StateBackground)
	}
}

func (a *Arbitrator) update(info *channelInfo, state State) {
	previous := info.state
	info.state = state
	info.since = a.clock.Now()

	ch := info.channel
	if ch != nil {
		a.notifier.Submit(func() { ch.FocusChannelDidChange(state) })
	}

	a.logger.Debug().
		Str("channel", info.name).
		Str("from", previous.String()).
		Str("to", state.String()).
		Msg("focus changed")
	telemetry.FocusTransitions.WithLabelValues(info.name, state.String()).Inc()
	a.bus.Publish(events.EventFocusChanged, events.Payload{
		"channel":  info.name,
		"state":    state.String(),
		"previous": previous.String(),
		"request":  info.priority.Request,
		"maintain": info.priority.Maintain,
	})

	if state == StateNothing {
		a.assignForeground()
		a.notifyReleaseIfNeeded()
		return
	}
	a.timers.Cancel(timerRelease)
}

// assignForeground promotes the best background channel after a short
// delay, unless someone took the foreground meanwhile.
func (a *Arbitrator) assignForeground() {
	a.timers.Schedule(timerAssignForeground, a.shortLatency, func() {
		if a.foreground() != nil {
			return
		}
		if bg := a.background(); bg != nil {
			a.update(bg, StateForeground)
		}
	})
}

func (a *Arbitrator) notifyReleaseIfNeeded() {
	a.timers.Schedule(timerRelease, a.releaseLatency, func() {
		if len(a.audio) > 0 {
			return
		}
		for _, info := range a.channels {
			if info.state != StateNothing {
				return
			}
		}

		a.logger.Debug().Msg("focus should release")
		telemetry.FocusReleases.Inc()
		a.bus.Publish(events.EventFocusShouldRelease, events.Payload{
			"channels": len(a.channels),
		})
		delegate := a.delegate
		a.notifier.Submit(delegate.FocusShouldRelease)
	})
}

func (a *Arbitrator) indexOf(name string) int {
	for i, info := range a.channels {
		if info.name == name {
			return i
		}
	}
	return -1
}

func (a *Arbitrator) lookup(name string) *channelInfo {
	i := a.indexOf(name)
	if i < 0 {
		a.logger.Warn().Err(ErrNotRegistered).Str("channel", name).Msg("focus request ignored")
		return nil
	}
	return a.channels[i]
}

func (a *Arbitrator) foreground() *channelInfo {
	for _, info := range a.channels {
		if info.state == StateForeground {
			return info
		}
	}
	return nil
}

// background returns the background channel with the highest maintain priority.
func (a *Arbitrator) background() *channelInfo {
	return a.highest(StateBackground, func(p ChannelPriority) int { return p.Maintain })
}

// prepared returns the prepared channel with the highest request priority.
func (a *Arbitrator) prepared() *channelInfo {
	return a.highest(StatePrepare, func(p ChannelPriority) int { return p.Request })
}

func (a *Arbitrator) highest(state State, rank func(ChannelPriority) int) *channelInfo {
	var matches []*channelInfo
	for _, info := range a.channels {
		if info.state == state {
			matches = append(matches, info)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return rank(matches[i].priority) > rank(matches[j].priority)
	})
	return matches[0]
}
