/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus fans orchestration events out across processes. Every
// implementation delivers locally first, so a single node works the same
// with or without a broker.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_voice/internal/config"
	"github.com/friendsincode/grimnir_voice/internal/events"
)

// SubjectPrefix namespaces remote channels and subjects.
const SubjectPrefix = "grimnir_voice.events."

// Bus is an event bus that can be shared between processes.
type Bus interface {
	events.Publisher
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

// Local adapts an in-process events.Bus to Bus.
type Local struct {
	*events.Bus
}

// Close implements Bus.
func (Local) Close() error { return nil }

// New builds the bus selected by cfg.EventBackend around local.
func New(cfg *config.Config, local *events.Bus, logger zerolog.Logger) (Bus, error) {
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = GenerateNodeID()
	}

	switch cfg.EventBackend {
	case config.EventsRedis:
		rc := DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		return NewRedisBus(rc, nodeID, local, logger)
	case config.EventsNATS:
		nc := DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		return NewNATSBus(nc, nodeID, local, logger)
	default:
		return Local{Bus: local}, nil
	}
}

// GenerateNodeID returns hostname-uuid, or a bare uuid without a hostname.
func GenerateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()
	}
	return host + "-" + uuid.NewString()[:8]
}

// remoteMessage is the wire form shared by the Redis and NATS buses.
type remoteMessage struct {
	ID        string           `json:"id"`
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(remoteMessage{
		ID:        uuid.NewString(),
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
	})
}

func unmarshalMessage(data []byte) (*remoteMessage, error) {
	var msg remoteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal remote event: %w", err)
	}
	if msg.EventType == "" {
		return nil, fmt.Errorf("unmarshal remote event: missing event type")
	}
	return &msg, nil
}

// relay republishes a remote message on the local bus unless it came from
// this node. It reports whether the message was delivered.
func relay(local *events.Bus, nodeID string, data []byte, logger zerolog.Logger) bool {
	msg, err := unmarshalMessage(data)
	if err != nil {
		logger.Error().Err(err).Msg("dropping malformed remote event")
		return false
	}
	if msg.NodeID == nodeID {
		return false
	}
	if msg.Payload == nil {
		msg.Payload = events.Payload{}
	}
	// Mark the origin so consumers can tell relayed events from local ones.
	msg.Payload[events.OriginField] = msg.NodeID
	local.Publish(msg.EventType, msg.Payload)
	logger.Debug().
		Str("event_type", string(msg.EventType)).
		Str("source_node", msg.NodeID).
		Msg("relayed remote event")
	return true
}
