/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package directive

// DefaultCancelCapacity is how many canceled dialogs are remembered.
const DefaultCancelCapacity = 10

type cancelEntry struct {
	dialogRequestID string
	policy          CancelPolicy
}

// cancelRing remembers recently canceled dialogs, evicting the oldest first.
type cancelRing struct {
	capacity int
	entries  []cancelEntry
}

func newCancelRing(capacity int) *cancelRing {
	if capacity <= 0 {
		capacity = DefaultCancelCapacity
	}
	return &cancelRing{capacity: capacity}
}

// push records a cancel. A dialog already in the ring is merged into one
// entry and becomes the newest, so only distinct dialogs evict each other.
func (r *cancelRing) push(dialogRequestID string, policy CancelPolicy) {
	for i, e := range r.entries {
		if e.dialogRequestID != dialogRequestID {
			continue
		}
		policy = e.policy.merge(policy)
		r.entries = append(r.entries[:i], r.entries[i+1:]...)
		break
	}
	r.entries = append(r.entries, cancelEntry{dialogRequestID: dialogRequestID, policy: policy})
	if over := len(r.entries) - r.capacity; over > 0 {
		r.entries = append([]cancelEntry(nil), r.entries[over:]...)
	}
}

func (r *cancelRing) matches(d Directive) bool {
	for _, e := range r.entries {
		if e.dialogRequestID == d.Header.DialogRequestID && e.policy.Covers(d.Type()) {
			return true
		}
	}
	return false
}

func (r *cancelRing) dialogs() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.dialogRequestID)
	}
	return out
}

func (r *cancelRing) len() int { return len(r.entries) }
