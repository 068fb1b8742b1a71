/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package focus

import (
	"fmt"
	"sort"
	"strings"
)

// ChannelPriority ranks a channel. Request is compared against the current
// holders when the channel asks for focus; Maintain is what others must
// reach to take focus away from it.
type ChannelPriority struct {
	Request  int `json:"request" yaml:"request"`
	Maintain int `json:"maintain" yaml:"maintain"`
}

func (p ChannelPriority) String() string {
	return fmt.Sprintf("%d/%d", p.Request, p.Maintain)
}

// Preset priorities used by the built-in capabilities.
var (
	PriorityCall            = ChannelPriority{Request: 300, Maintain: 300}
	PriorityUserRecognition = ChannelPriority{Request: 300, Maintain: 250}
	PriorityAlerts          = ChannelPriority{Request: 250, Maintain: 200}
	PriorityInformation     = ChannelPriority{Request: 250, Maintain: 200}
	PriorityDMRecognition   = ChannelPriority{Request: 150, Maintain: 200}
	PriorityMedia           = ChannelPriority{Request: 200, Maintain: 100}
	PriorityBeep            = ChannelPriority{Request: 100, Maintain: 150}
	PrioritySound           = ChannelPriority{Request: 100, Maintain: 100}
	PriorityBackground      = ChannelPriority{Request: 0, Maintain: 100}
)

var presets = map[string]ChannelPriority{
	"call":             PriorityCall,
	"user_recognition": PriorityUserRecognition,
	"alerts":           PriorityAlerts,
	"information":      PriorityInformation,
	"dm_recognition":   PriorityDMRecognition,
	"media":            PriorityMedia,
	"beep":             PriorityBeep,
	"sound":            PrioritySound,
	"background":       PriorityBackground,
}

// ParsePriority resolves a preset name such as "media" or "user_recognition".
func ParsePriority(name string) (ChannelPriority, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "_")
	if p, ok := presets[key]; ok {
		return p, nil
	}
	return ChannelPriority{}, fmt.Errorf("%w: %q", ErrUnknownPriority, name)
}

// PresetNames lists the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
