/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package directive

// Completion is handed to a handler and must be called exactly once with the
// outcome. Extra calls are ignored.
type Completion func(Result)

// HandleInfo registers a capability handler for one directive type.
type HandleInfo struct {
	Namespace string
	Name      string
	Policy    BlockingPolicy

	// Prefetch prepares resources before handling. Called in arrival order.
	Prefetch func(Directive) error
	// Cancel is called instead of Handle when the directive's dialog was canceled.
	Cancel func(Directive)
	// Handle must return promptly and report the outcome through done,
	// which may be called from any goroutine.
	Handle func(d Directive, done Completion)
	// Attachment receives attachments addressed to this type.
	Attachment func(Attachment)
}

// Type returns the dispatch key "namespace.name".
func (h HandleInfo) Type() string {
	return h.Namespace + "." + h.Name
}

// Observer is notified of scheduling transitions on the scheduler's worker.
// Implementations must not block.
type Observer interface {
	DirectiveWillPrefetch(d Directive, policy BlockingPolicy)
	DirectiveWillHandle(d Directive, policy BlockingPolicy)
	DirectiveDidComplete(d Directive, policy BlockingPolicy, result Result)
}

// NopObserver can be embedded to implement only some Observer methods.
type NopObserver struct{}

func (NopObserver) DirectiveWillPrefetch(Directive, BlockingPolicy) {}
func (NopObserver) DirectiveWillHandle(Directive, BlockingPolicy) {}
func (NopObserver) DirectiveDidComplete(Directive, BlockingPolicy, Result) {}
