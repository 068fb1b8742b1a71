/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package focus

import "fmt"

// State is the lifecycle of one focus channel.
type State int

const (
	StateNothing State = iota
	// StatePrepare marks a channel that is about to request focus.
	StatePrepare
	StateBackground
	StateForeground
)

var stateNames = map[State]string{
	StateNothing:    "nothing",
	StatePrepare:    "prepare",
	StateBackground: "background",
	StateForeground: "foreground",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown focus state %q", text)
}
