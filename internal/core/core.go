/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package core assembles the directive scheduler, focus arbitrator and play
// sync ledger into one orchestration unit.
package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_voice/internal/clock"
	"github.com/friendsincode/grimnir_voice/internal/config"
	"github.com/friendsincode/grimnir_voice/internal/contextinfo"
	"github.com/friendsincode/grimnir_voice/internal/directive"
	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/focus"
	"github.com/friendsincode/grimnir_voice/internal/playsync"
)

// Context names registered by Core.
const (
	DirectivesContext = "Directives"
	FocusContext      = "focus"

	contextVersion = "1.0"
)

// Options tunes the subsystems. Zero values use each subsystem's default.
type Options struct {
	ShortLatency   time.Duration
	ReleaseLatency time.Duration
	CancelCapacity int
	ContextTimeout time.Duration
	Clock          clock.Clock
	FocusDelegate  focus.Delegate
}

// OptionsFromConfig maps the process configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ShortLatency:   cfg.FocusShortLatency,
		ReleaseLatency: cfg.FocusReleaseLatency,
		CancelCapacity: cfg.CancelRingCapacity,
		ContextTimeout: cfg.ContextTimeout,
	}
}

// Core owns the orchestration subsystems and their wiring.
type Core struct {
	Scheduler  *directive.Scheduler
	Arbitrator *focus.Arbitrator
	Holder     *focus.BackgroundHolder
	Ledger     *playsync.Ledger
	Contexts   *contextinfo.Manager

	logger zerolog.Logger
}

// New builds and wires every subsystem. bus may be nil.
func New(opts Options, bus events.Publisher, logger zerolog.Logger) *Core {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	c := &Core{logger: logger.With().Str("component", "core").Logger()}

	c.Scheduler = directive.NewScheduler(directive.Options{
		CancelCapacity: opts.CancelCapacity,
		Clock:          opts.Clock,
	}, bus, logger)

	c.Arbitrator = focus.NewArbitrator(focus.Options{
		ShortLatency:   opts.ShortLatency,
		ReleaseLatency: opts.ReleaseLatency,
		Clock:          opts.Clock,
		Delegate:       opts.FocusDelegate,
	}, bus, logger)
	c.Holder = focus.NewBackgroundHolder(c.Arbitrator, logger)

	c.Ledger = playsync.NewLedger(playsync.Options{Clock: opts.Clock}, bus, logger)
	c.Contexts = contextinfo.NewManager(opts.ContextTimeout, logger)

	c.Scheduler.AddObserver(c.Arbitrator)
	c.Scheduler.AddObserver(c.Holder)

	c.Contexts.AddProvider(playsync.ContextName, c.Ledger.ContextProvider())
	c.Contexts.AddProvider(DirectivesContext, c.directivesContext)
	c.Contexts.AddProvider(FocusContext, c.focusContext)

	c.logger.Info().Msg("orchestration core ready")
	return c
}

// Close shuts the subsystems down in reverse order of construction.
func (c *Core) Close() {
	c.Contexts.RemoveProvider(FocusContext)
	c.Contexts.RemoveProvider(DirectivesContext)
	c.Contexts.RemoveProvider(playsync.ContextName)

	c.Scheduler.RemoveObserver(c.Holder)
	c.Scheduler.RemoveObserver(c.Arbitrator)

	c.Ledger.Close()
	c.Holder.Close()
	c.Arbitrator.Close()
	c.Scheduler.Close()
	c.logger.Info().Msg("orchestration core closed")
}

func (c *Core) directivesContext(ctx context.Context) (*contextinfo.Info, error) {
	snap, err := c.Scheduler.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &contextinfo.Info{
		ContextType: contextinfo.ContextCapability,
		Name:        DirectivesContext,
		Payload: map[string]any{
			"version":  contextVersion,
			"handlers": snap.Handlers,
			"inFlight": len(snap.InFlight),
			"blocked":  len(snap.Blocked),
		},
	}, nil
}

func (c *Core) focusContext(ctx context.Context) (*contextinfo.Info, error) {
	snap, err := c.Arbitrator.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &contextinfo.Info{
		ContextType: contextinfo.ContextClient,
		Name:        FocusContext,
		Payload: map[string]any{
			"foreground": snap.Foreground,
		},
	}, nil
}
