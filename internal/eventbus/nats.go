/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

// NATSBus mirrors local events over NATS core subjects.
type NATSBus struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	local  *events.Bus
	logger zerolog.Logger
	nodeID string

	mu          sync.Mutex
	useFallback bool
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string

	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus connects to NATS and relays remote events onto local. An
// unreachable server leaves the bus local-only.
func NewNATSBus(cfg NATSConfig, nodeID string, local *events.Bus, logger zerolog.Logger) (*NATSBus, error) {
	if local == nil {
		return nil, fmt.Errorf("nats bus: local bus is required")
	}
	nb := &NATSBus{
		local:  local,
		logger: logger.With().Str("component", "eventbus").Str("backend", "nats").Logger(),
		nodeID: nodeID,
	}

	opts := []nats.Option{
		nats.Name("grimnir_voice-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			nb.setFallback(true)
			nb.logger.Warn().Err(err).Msg("NATS disconnected, running local-only")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			nb.setFallback(false)
			nb.logger.Info().Str("url", c.ConnectedUrl()).Msg("reconnected to NATS")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		nb.logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS unavailable, using local event bus")
		nb.useFallback = true
		return nb, nil
	}

	sub, err := conn.Subscribe(SubjectPrefix+">", func(msg *nats.Msg) {
		relay(nb.local, nb.nodeID, msg.Data, nb.logger)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe nats: %w", err)
	}
	if err := conn.Flush(); err != nil {
		sub.Unsubscribe()
		conn.Close()
		return nil, fmt.Errorf("flush nats subscription: %w", err)
	}

	nb.conn = conn
	nb.sub = sub
	nb.logger.Info().Str("url", cfg.URL).Str("node_id", nodeID).Msg("NATS event bus initialized")
	return nb, nil
}

// Degraded reports whether the bus is running local-only.
func (nb *NATSBus) Degraded() bool {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.useFallback
}

func (nb *NATSBus) setFallback(v bool) {
	nb.mu.Lock()
	nb.useFallback = v
	nb.mu.Unlock()
}

// Subscribe registers a local subscriber.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	return nb.local.Subscribe(eventType)
}

// Unsubscribe removes a local subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Publish delivers locally, then to the other nodes.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	if nb.conn == nil || nb.Degraded() {
		telemetry.EventBusRemotePublished.WithLabelValues("nats", "skipped").Inc()
		return
	}

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event")
		telemetry.EventBusRemotePublished.WithLabelValues("nats", "error").Inc()
		return
	}
	if err := nb.conn.Publish(SubjectPrefix+string(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
		telemetry.EventBusRemotePublished.WithLabelValues("nats", "error").Inc()
		return
	}
	telemetry.EventBusRemotePublished.WithLabelValues("nats", "ok").Inc()
}

// Close drains the subscription and closes the connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	nb.logger.Info().Msg("NATS event bus closed")
	return nil
}
