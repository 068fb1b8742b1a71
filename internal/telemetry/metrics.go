/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grimnir_voice"

// Directive scheduling
var (
	DirectivesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "directive",
		Name:      "dispatched_total",
		Help:      "Directives accepted for dispatch by type.",
	}, []string{"type"})

	DirectiveResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "directive",
		Name:      "results_total",
		Help:      "Directive outcomes by type and result.",
	}, []string{"type", "result"})

	DirectivesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "directive",
		Name:      "in_flight",
		Help:      "Directives currently being handled.",
	})

	DirectivesBlocked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "directive",
		Name:      "blocked",
		Help:      "Directives waiting for their medium to free up.",
	})

	CanceledDialogs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "directive",
		Name:      "canceled_dialogs",
		Help:      "Entries in the canceled dialog ring.",
	})
)

// Focus arbitration
var (
	FocusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "focus",
		Name:      "transitions_total",
		Help:      "Focus state changes by channel and new state.",
	}, []string{"channel", "state"})

	FocusReleases = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "focus",
		Name:      "should_release_total",
		Help:      "Times every channel went idle and focus was released globally.",
	})
)

// Play sync
var (
	PlayStackEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "playsync",
		Name:      "stack_entries",
		Help:      "Live entries on the play stack.",
	})

	PlaySyncReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "playsync",
		Name:      "releases_total",
		Help:      "Play layers popped from the stack.",
	}, []string{"layer", "context"})
)

// Context gathering
var (
	ContextProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "context",
		Name:      "provider_errors_total",
		Help:      "Context providers that failed or timed out.",
	}, []string{"provider"})
)

// Event bus and journal
var (
	EventBusDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "dropped_total",
		Help:      "Payloads dropped because a subscriber was full.",
	}, []string{"event_type"})

	EventBusRemotePublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "remote_published_total",
		Help:      "Events forwarded to a remote broker.",
	}, []string{"backend", "result"})

	JournalWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "writes_total",
		Help:      "Journal rows written by kind and result.",
	}, []string{"kind", "result"})

	JournalPruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "pruned_total",
		Help:      "Journal rows deleted by retention.",
	})
)

// Leader election
var (
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "leader",
		Name:      "status",
		Help:      "1 when this instance holds the lease.",
	}, []string{"instance"})

	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "leader",
		Name:      "changes_total",
		Help:      "Lease acquisitions and losses.",
	}, []string{"instance", "change"})
)

// Database
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "query_duration_seconds",
		Help:      "Database operation latency.",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "errors_total",
		Help:      "Failed database operations by journal table.",
	}, []string{"operation", "table"})

	DatabaseConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "connections_open",
		Help:      "Open connections in the pool.",
	})
)

// HTTP API
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "API requests served.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "active_connections",
		Help:      "Requests currently being served.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "websocket_connections",
		Help:      "Open event stream websockets.",
	})
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
