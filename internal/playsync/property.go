/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playsync

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnknownLayer indicates an unknown layer type name.
	ErrUnknownLayer = errors.New("unknown layer type")

	// ErrUnknownContext indicates an unknown context type name.
	ErrUnknownContext = errors.New("unknown context type")
)

// LayerType is the presentation layer a play belongs to.
type LayerType string

const (
	LayerInfo    LayerType = "INFO"
	LayerMedia   LayerType = "MEDIA"
	LayerCall    LayerType = "CALL"
	LayerAlert   LayerType = "ALERT"
	LayerOverlay LayerType = "OVERLAY"
	LayerASR     LayerType = "ASR"
)

var layers = []LayerType{LayerInfo, LayerMedia, LayerCall, LayerAlert, LayerOverlay, LayerASR}

// ParseLayerType accepts a layer name in any case.
func ParseLayerType(s string) (LayerType, error) {
	upper := LayerType(strings.ToUpper(strings.TrimSpace(s)))
	for _, l := range layers {
		if l == upper {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLayer, s)
}

// ContextType is the surface of a layer.
type ContextType string

const (
	ContextSound   ContextType = "sound"
	ContextDisplay ContextType = "display"
)

// ParseContextType accepts "sound" or "display" in any case.
func ParseContextType(s string) (ContextType, error) {
	switch ContextType(strings.ToLower(strings.TrimSpace(s))) {
	case ContextSound:
		return ContextSound, nil
	case ContextDisplay:
		return ContextDisplay, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContext, s)
}

// Property identifies one layer surface. It is comparable and used as a map key.
type Property struct {
	Layer   LayerType   `json:"layer" yaml:"layer"`
	Context ContextType `json:"context" yaml:"context"`
}

func (p Property) String() string {
	return string(p.Layer) + "." + string(p.Context)
}

// ParseProperty parses the "LAYER.context" form produced by String.
func ParseProperty(s string) (Property, error) {
	layer, ctx, ok := strings.Cut(s, ".")
	if !ok {
		return Property{}, fmt.Errorf("property %q: want LAYER.context", s)
	}
	l, err := ParseLayerType(layer)
	if err != nil {
		return Property{}, err
	}
	c, err := ParseContextType(ctx)
	if err != nil {
		return Property{}, err
	}
	return Property{Layer: l, Context: c}, nil
}

// Duration presets for play layers.
const (
	DurationShort = 7 * time.Second
	DurationMid   = 15 * time.Second
	DurationLong  = 30 * time.Second
)

// ParseDuration accepts a preset name (short, mid, long) or a Go duration.
func ParseDuration(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short", "":
		return DurationShort, nil
	case "mid":
		return DurationMid, nil
	case "long":
		return DurationLong, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("play duration %q: %w", s, err)
	}
	return d, nil
}

// Info is the live binding of a property.
type Info struct {
	// PlayServiceID is empty when the play has no service.
	PlayServiceID   string        `json:"play_service_id,omitempty"`
	DialogRequestID string        `json:"dialog_request_id"`
	MessageID       string        `json:"message_id"`
	Duration        time.Duration `json:"duration"`
}
