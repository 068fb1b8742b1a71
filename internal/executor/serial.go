/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrClosed indicates work was submitted to an executor that has been closed.
	ErrClosed = errors.New("executor closed")
)

// Serial runs submitted functions one at a time, in submission order, on a
// single goroutine. Each orchestration subsystem owns one and never touches
// its state from any other goroutine.
//
// The mailbox is unbounded so Submit never blocks, which lets work running
// on the executor submit follow-up work to itself.
type Serial struct {
	name   string
	logger zerolog.Logger

	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// NewSerial creates a serial executor and starts its worker goroutine.
func NewSerial(name string, logger zerolog.Logger) *Serial {
	s := &Serial{
		name:    name,
		logger:  logger.With().Str("executor", name).Logger(),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go s.loop()
	return s
}

// Submit enqueues fn. It reports false when the executor is closed.
func (s *Serial) Submit(fn func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the executor and waits for it to return.
// It must not be called from work already running on the same executor.
func (s *Serial) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.Submit(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, drains what is already queued and waits for
// the worker goroutine to exit. Safe to call more than once.
func (s *Serial) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.stopped
}

func (s *Serial) loop() {
	defer close(s.stopped)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.mu.Unlock()
			<-s.wake
			s.mu.Lock()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, fn := range batch {
			s.run(fn)
		}
	}
}

func (s *Serial) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("recovered panic in serial executor")
		}
	}()
	fn()
}
