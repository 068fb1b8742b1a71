/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"strings"
	"sync"
)

// EventType enumerates event categories.
type EventType string

const (
	// Directive scheduling
	EventDirectiveWillPrefetch EventType = "directive.will_prefetch"
	EventDirectiveWillHandle   EventType = "directive.will_handle"
	EventDirectiveBlocked      EventType = "directive.blocked"
	EventDirectiveCompleted    EventType = "directive.completed"
	EventDialogCanceled        EventType = "directive.dialog_canceled"

	// Focus arbitration
	EventFocusChanged       EventType = "focus.changed"
	EventFocusShouldRelease EventType = "focus.should_release"

	// Play sync
	EventPlaySyncReleased     EventType = "playsync.released"
	EventPlaySyncSynchronized EventType = "playsync.synchronized"
)

// AllEventTypes lists every event type in a stable order.
func AllEventTypes() []EventType {
	return []EventType{
		EventDirectiveWillPrefetch,
		EventDirectiveWillHandle,
		EventDirectiveBlocked,
		EventDirectiveCompleted,
		EventDialogCanceled,
		EventFocusChanged,
		EventFocusShouldRelease,
		EventPlaySyncReleased,
		EventPlaySyncSynchronized,
	}
}

// ParseEventTypes parses a comma separated list, dropping unknown names.
func ParseEventTypes(raw string) []EventType {
	known := make(map[EventType]bool)
	for _, et := range AllEventTypes() {
		known[et] = true
	}

	var out []EventType
	for _, part := range strings.Split(raw, ",") {
		et := EventType(strings.TrimSpace(part))
		if known[et] {
			out = append(out, et)
		}
	}
	return out
}

// Payload generic event payload.
type Payload map[string]any

// OriginField is set on payloads relayed from another node to that node's id.
const OriginField = "node_id"

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is anything events can be published to. The in-process Bus and
// the distributed buses in internal/eventbus implement it.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// DropFunc is called when a subscriber is full and a payload is dropped.
type DropFunc func(eventType EventType)

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]Subscriber
	onDrop DropFunc
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// OnDrop installs a hook invoked whenever a payload is dropped.
func (b *Bus) OnDrop(fn DropFunc) {
	b.mu.Lock()
	b.onDrop = fn
	b.mu.Unlock()
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	return b.SubscribeBuffered(eventType, 8)
}

// SubscribeBuffered registers a subscriber with the given channel capacity.
func (b *Bus) SubscribeBuffered(eventType EventType, size int) Subscriber {
	if size <= 0 {
		size = 8
	}
	ch := make(Subscriber, size)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Full subscribers miss the payload.
// Sends never block, so the read lock is held across them; Unsubscribe
// cannot close a channel mid-send.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	dropped := 0
	b.mu.RLock()
	onDrop := b.onDrop
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
			dropped++
		}
	}
	b.mu.RUnlock()

	if onDrop != nil {
		for i := 0; i < dropped; i++ {
			onDrop(eventType)
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}
