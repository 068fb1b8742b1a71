/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package focus

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_voice/internal/directive"
)

// HolderChannel is the channel name a BackgroundHolder registers under.
const HolderChannel = "background_holder"

// BackgroundHolder keeps a lowest priority claim on focus while audio
// directives are pending or callers hold it explicitly, so the device does
// not tear down its audio session between two turns.
type BackgroundHolder struct {
	arbitrator *Arbitrator
	logger     zerolog.Logger

	mu    sync.Mutex
	holds map[string]struct{}
	state State
}

// NewBackgroundHolder registers a holder channel with a.
func NewBackgroundHolder(a *Arbitrator, logger zerolog.Logger) *BackgroundHolder {
	h := &BackgroundHolder{
		arbitrator: a,
		logger:     logger.With().Str("component", "background_holder").Logger(),
		holds:      make(map[string]struct{}),
	}
	a.Register(HolderChannel, PriorityBackground, h)
	return h
}

// Hold requests focus on behalf of key until Unhold(key). Requests are
// queued under the lock so they reach the arbitrator in hold order.
func (h *BackgroundHolder) Hold(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.holds[key] = struct{}{}
	h.arbitrator.RequestFocus(HolderChannel)
}

// Unhold drops key. Focus is released once nothing is held.
func (h *BackgroundHolder) Unhold(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.holds[key]; !ok {
		return
	}
	delete(h.holds, key)
	if len(h.holds) == 0 {
		h.arbitrator.ReleaseFocus(HolderChannel)
	}
}

// Holding returns the number of outstanding holds.
func (h *BackgroundHolder) Holding() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.holds)
}

// State returns the last state the arbitrator reported.
func (h *BackgroundHolder) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Close unregisters the holder channel.
func (h *BackgroundHolder) Close() {
	h.arbitrator.Unregister(HolderChannel)
}

func (h *BackgroundHolder) FocusChannelDidChange(state State) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
	h.logger.Debug().Str("state", state.String()).Msg("holder focus changed")
}

func (h *BackgroundHolder) DirectiveWillPrefetch(d directive.Directive, policy directive.BlockingPolicy) {
	if policy.Medium == directive.MediumAudio {
		h.Hold(directiveKey(d))
	}
}

func (h *BackgroundHolder) DirectiveWillHandle(directive.Directive, directive.BlockingPolicy) {}

func (h *BackgroundHolder) DirectiveDidComplete(d directive.Directive, policy directive.BlockingPolicy, _ directive.Result) {
	if policy.Medium == directive.MediumAudio {
		h.Unhold(directiveKey(d))
	}
}

func directiveKey(d directive.Directive) string {
	return "directive/" + d.Header.MessageID
}
