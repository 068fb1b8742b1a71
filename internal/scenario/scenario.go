/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scenario replays scripted directive, focus and play sequences
// against a real orchestration core and records what the bus reports.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/grimnir_voice/internal/directive"
	"github.com/friendsincode/grimnir_voice/internal/focus"
	"github.com/friendsincode/grimnir_voice/internal/playsync"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid scenario")

// Handler results a scripted handler can report.
const (
	ResultFinished = "finished"
	ResultFailed   = "failed"
	ResultStopped  = "stopped"
)

// Duration is a time.Duration written as "250ms" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Scenario is a scripted session.
type Scenario struct {
	Name     string        `yaml:"name"`
	Focus    FocusSettings `yaml:"focus"`
	Channels []Channel     `yaml:"channels"`
	Handlers []Handler     `yaml:"handlers"`
	Steps    []Step        `yaml:"steps"`
	// Settle is how long the run continues after the last step.
	Settle Duration `yaml:"settle"`
}

// FocusSettings overrides the arbitrator debounce for the run.
type FocusSettings struct {
	ShortLatency   Duration `yaml:"shortLatency"`
	ReleaseLatency Duration `yaml:"releaseLatency"`
}

// Channel declares a focus channel by priority preset name.
type Channel struct {
	Name     string `yaml:"name"`
	Priority string `yaml:"priority"`
}

// Handler simulates a capability agent for one directive type.
type Handler struct {
	Type        string   `yaml:"type"`
	Medium      string   `yaml:"medium"`
	Blocking    bool     `yaml:"blocking"`
	HandleDelay Duration `yaml:"handleDelay"`
	Result      string   `yaml:"result"`
	Description string   `yaml:"description"`
	// Focus names a declared channel requested while handling.
	Focus string `yaml:"focus"`
	Play  *Play  `yaml:"play"`
}

// Play is a layer a handler shows while handling.
type Play struct {
	Property      string `yaml:"property"`
	PlayServiceID string `yaml:"playServiceId"`
	Duration      string `yaml:"duration"`
}

// Step is one scripted action. Exactly one action field is set.
type Step struct {
	At Duration `yaml:"at"`

	Dispatch *Dispatch  `yaml:"dispatch"`
	Cancel   string     `yaml:"cancel"`
	Request  string     `yaml:"request"`
	Release  string     `yaml:"release"`
	Start    *StartPlay `yaml:"startPlay"`
	End      string     `yaml:"endPlay"`
	Stop     *StopPlay  `yaml:"stopPlay"`
}

// Dispatch sends a directive.
type Dispatch struct {
	Type      string         `yaml:"type"`
	Dialog    string         `yaml:"dialog"`
	MessageID string         `yaml:"messageId"`
	Payload   map[string]any `yaml:"payload"`
}

// StartPlay binds a property directly on the ledger.
type StartPlay struct {
	Property      string `yaml:"property"`
	Dialog        string `yaml:"dialog"`
	MessageID     string `yaml:"messageId"`
	PlayServiceID string `yaml:"playServiceId"`
	Duration      string `yaml:"duration"`
}

// StopPlay releases a dialog's layers, or only the listed properties.
type StopPlay struct {
	Dialog     string   `yaml:"dialog"`
	Properties []string `yaml:"properties"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks names, presets and that every step does exactly one thing.
func (s *Scenario) Validate() error {
	channels := make(map[string]bool, len(s.Channels))
	for _, ch := range s.Channels {
		if ch.Name == "" {
			return fmt.Errorf("%w: channel without a name", ErrInvalid)
		}
		if ch.Name == focus.HolderChannel || channels[ch.Name] {
			return fmt.Errorf("%w: channel %q declared twice or reserved", ErrInvalid, ch.Name)
		}
		if _, err := focus.ParsePriority(ch.Priority); err != nil {
			return fmt.Errorf("%w: channel %q: %v", ErrInvalid, ch.Name, err)
		}
		channels[ch.Name] = true
	}

	handlers := make(map[string]bool, len(s.Handlers))
	for _, h := range s.Handlers {
		if _, _, ok := splitType(h.Type); !ok {
			return fmt.Errorf("%w: handler type %q: want Namespace.Name", ErrInvalid, h.Type)
		}
		if handlers[h.Type] {
			return fmt.Errorf("%w: handler %q declared twice", ErrInvalid, h.Type)
		}
		handlers[h.Type] = true
		if _, err := h.policy(); err != nil {
			return fmt.Errorf("%w: handler %q: %v", ErrInvalid, h.Type, err)
		}
		switch h.Result {
		case "", ResultFinished, ResultFailed, ResultStopped:
		default:
			return fmt.Errorf("%w: handler %q: unknown result %q", ErrInvalid, h.Type, h.Result)
		}
		if h.Focus != "" && !channels[h.Focus] {
			return fmt.Errorf("%w: handler %q: undeclared channel %q", ErrInvalid, h.Type, h.Focus)
		}
		if h.Play != nil {
			if _, _, err := h.Play.resolve(); err != nil {
				return fmt.Errorf("%w: handler %q: %v", ErrInvalid, h.Type, err)
			}
		}
	}

	for i, step := range s.Steps {
		if err := step.validate(channels); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalid, i+1, err)
		}
	}
	return nil
}

// OrderedSteps returns the steps sorted by offset, keeping file order on ties.
func (s *Scenario) OrderedSteps() []Step {
	steps := append([]Step(nil), s.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].At < steps[j].At })
	return steps
}

func (h Handler) policy() (directive.BlockingPolicy, error) {
	medium := directive.MediumNone
	if h.Medium != "" {
		m, err := directive.ParseMedium(h.Medium)
		if err != nil {
			return directive.BlockingPolicy{}, err
		}
		medium = m
	}
	return directive.BlockingPolicy{Medium: medium, Blocking: h.Blocking}, nil
}

func (h Handler) result() directive.Result {
	switch h.Result {
	case ResultFailed:
		return directive.Failed(h.Description)
	case ResultStopped:
		return directive.Stopped(directive.CancelAll)
	}
	return directive.Finished()
}

func (p Play) resolve() (playsync.Property, time.Duration, error) {
	property, err := playsync.ParseProperty(p.Property)
	if err != nil {
		return playsync.Property{}, 0, err
	}
	d, err := playsync.ParseDuration(p.Duration)
	if err != nil {
		return playsync.Property{}, 0, err
	}
	return property, d, nil
}

func (s Step) validate(channels map[string]bool) error {
	actions := 0
	if s.Dispatch != nil {
		actions++
		if _, _, ok := splitType(s.Dispatch.Type); !ok {
			return fmt.Errorf("dispatch type %q: want Namespace.Name", s.Dispatch.Type)
		}
		if s.Dispatch.Dialog == "" {
			return errors.New("dispatch needs a dialog")
		}
	}
	if s.Cancel != "" {
		actions++
	}
	for _, name := range []string{s.Request, s.Release} {
		if name == "" {
			continue
		}
		actions++
		if !channels[name] {
			return fmt.Errorf("undeclared channel %q", name)
		}
	}
	if s.Start != nil {
		actions++
		if s.Start.Dialog == "" {
			return errors.New("startPlay needs a dialog")
		}
		if _, _, err := (Play{Property: s.Start.Property, Duration: s.Start.Duration}).resolve(); err != nil {
			return err
		}
	}
	if s.End != "" {
		actions++
		if _, err := playsync.ParseProperty(s.End); err != nil {
			return err
		}
	}
	if s.Stop != nil {
		actions++
		if s.Stop.Dialog == "" {
			return errors.New("stopPlay needs a dialog")
		}
		for _, p := range s.Stop.Properties {
			if _, err := playsync.ParseProperty(p); err != nil {
				return err
			}
		}
	}
	if actions != 1 {
		return fmt.Errorf("want exactly one action, got %d", actions)
	}
	if s.At < 0 {
		return errors.New("negative offset")
	}
	return nil
}

func splitType(t string) (namespace, name string, ok bool) {
	namespace, name, ok = strings.Cut(t, ".")
	return namespace, name, ok && namespace != "" && name != ""
}
