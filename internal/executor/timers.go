/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package executor

import (
	"time"

	"github.com/friendsincode/grimnir_voice/internal/clock"
)

// Timers is a set of cancelable delayed tasks keyed by the entity they
// guard. Scheduling a key always cancels its previous task first.
//
// A Timers value belongs to one Serial: Schedule, Cancel and the query
// methods must be called from work running on it, and fired callbacks run
// on it too. A callback whose task was canceled or replaced after the timer
// fired but before it reached the executor is discarded.
type Timers[K comparable] struct {
	exec    *Serial
	clock   clock.Clock
	seq     uint64
	pending map[K]*timerTask
}

type timerTask struct {
	timer    clock.Timer
	seq      uint64
	duration time.Duration
}

// NewTimers creates an empty timer set bound to exec.
func NewTimers[K comparable](exec *Serial, c clock.Clock) *Timers[K] {
	if c == nil {
		c = clock.Real{}
	}
	return &Timers[K]{exec: exec, clock: c, pending: make(map[K]*timerTask)}
}

// Schedule arms fn to run on the executor after d, replacing any task for key.
func (t *Timers[K]) Schedule(key K, d time.Duration, fn func()) {
	t.Cancel(key)

	t.seq++
	seq := t.seq
	task := &timerTask{seq: seq, duration: d}
	task.timer = t.clock.AfterFunc(d, func() {
		t.exec.Submit(func() {
			current, ok := t.pending[key]
			if !ok || current.seq != seq {
				return
			}
			delete(t.pending, key)
			fn()
		})
	})
	t.pending[key] = task
}

// Cancel stops the task for key. It reports whether one was pending.
func (t *Timers[K]) Cancel(key K) bool {
	task, ok := t.pending[key]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(t.pending, key)
	return true
}

// Pending reports whether key has an armed task.
func (t *Timers[K]) Pending(key K) bool {
	_, ok := t.pending[key]
	return ok
}

// Duration returns the delay key was last armed with.
func (t *Timers[K]) Duration(key K) (time.Duration, bool) {
	task, ok := t.pending[key]
	if !ok {
		return 0, false
	}
	return task.duration, true
}

// Len returns the number of armed tasks.
func (t *Timers[K]) Len() int { return len(t.pending) }

// CancelAll stops every pending task.
func (t *Timers[K]) CancelAll() {
	for key := range t.pending {
		t.Cancel(key)
	}
}
