/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playsync

// Entry is one live layer.
type Entry struct {
	Property Property `json:"property"`
	Info     Info     `json:"info"`
}

// PlayStack is the list of live layers, most recently started first. It
// holds at most one entry per property.
type PlayStack []Entry

// Get returns the entry bound to p.
func (s PlayStack) Get(p Property) (Info, bool) {
	for _, e := range s {
		if e.Property == p {
			return e.Info, true
		}
	}
	return Info{}, false
}

// Set binds p to info and moves it to the front.
func (s *PlayStack) Set(p Property, info Info) {
	s.Remove(p)
	*s = append(PlayStack{{Property: p, Info: info}}, *s...)
}

// Remove unbinds p and returns its info.
func (s *PlayStack) Remove(p Property) (Info, bool) {
	for i, e := range *s {
		if e.Property == p {
			*s = append((*s)[:i:i], (*s)[i+1:]...)
			return e.Info, true
		}
	}
	return Info{}, false
}

// Filter returns a copy of the entries matching keep.
func (s PlayStack) Filter(keep func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range s {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// PlayServiceIDs returns the distinct non-empty service ids in stack order.
func (s PlayStack) PlayServiceIDs() []string {
	seen := make(map[string]struct{}, len(s))
	ids := make([]string, 0, len(s))
	for _, e := range s {
		id := e.Info.PlayServiceID
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// MultiLayerSynced reports whether more than one layer type is live.
func (s PlayStack) MultiLayerSynced() bool {
	if len(s) == 0 {
		return false
	}
	first := s[0].Property.Layer
	for _, e := range s[1:] {
		if e.Property.Layer != first {
			return true
		}
	}
	return false
}
