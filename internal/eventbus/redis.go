/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_voice/internal/events"
	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

// RedisBus mirrors local events over Redis pub/sub and relays events
// published by other nodes onto the local bus.
type RedisBus struct {
	client *redis.Client
	pubsub *redis.PubSub
	local  *events.Bus
	logger zerolog.Logger
	nodeID string
	cfg    RedisConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Circuit breaker state
	mu          sync.Mutex
	useFallback bool
	failCount   int
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PublishTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           "localhost:6379",
		PoolSize:       10,
		MinIdleConns:   2,
		DialTimeout:    5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
		PublishTimeout: 2 * time.Second,
		MaxFailures:    5,
		CheckInterval:  30 * time.Second,
	}
}

// NewRedisBus connects to Redis and starts relaying remote events onto
// local. When Redis cannot be reached the bus runs local-only and keeps
// probing in the background.
func NewRedisBus(cfg RedisConfig, nodeID string, local *events.Bus, logger zerolog.Logger) (*RedisBus, error) {
	if local == nil {
		return nil, fmt.Errorf("redis bus: local bus is required")
	}
	logger = logger.With().Str("component", "eventbus").Str("backend", "redis").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	rb := &RedisBus{
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}),
		local:  local,
		logger: logger,
		nodeID: nodeID,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := rb.connect(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, using local event bus")
		rb.useFallback = true
	} else {
		logger.Info().Str("addr", cfg.Addr).Str("node_id", nodeID).Msg("Redis event bus initialized")
	}

	rb.wg.Add(1)
	go rb.watch()
	return rb, nil
}

// connect pings Redis and starts the pattern subscription.
func (rb *RedisBus) connect() error {
	pingCtx, cancel := context.WithTimeout(rb.ctx, rb.cfg.DialTimeout)
	defer cancel()
	if err := rb.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	pubsub := rb.client.PSubscribe(rb.ctx, SubjectPrefix+"*")
	// Wait for the subscription to be confirmed so no event is missed.
	if _, err := pubsub.Receive(pingCtx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe redis: %w", err)
	}

	rb.mu.Lock()
	rb.pubsub = pubsub
	rb.mu.Unlock()

	rb.wg.Add(1)
	go rb.receive(pubsub)
	return nil
}

func (rb *RedisBus) receive(pubsub *redis.PubSub) {
	defer rb.wg.Done()

	ch := pubsub.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				rb.logger.Warn().Msg("Redis subscription closed")
				rb.handleFailure()
				return
			}
			relay(rb.local, rb.nodeID, []byte(msg.Payload), rb.logger)
		}
	}
}

// watch retries the connection while the breaker is open.
func (rb *RedisBus) watch() {
	defer rb.wg.Done()

	ticker := time.NewTicker(rb.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case <-ticker.C:
			if !rb.Degraded() {
				continue
			}
			if err := rb.connect(); err != nil {
				rb.logger.Debug().Err(err).Msg("Redis still unavailable")
				continue
			}
			rb.mu.Lock()
			rb.useFallback = false
			rb.failCount = 0
			rb.mu.Unlock()
			rb.logger.Info().Msg("reconnected to Redis")
		}
	}
}

// Degraded reports whether the bus is running local-only.
func (rb *RedisBus) Degraded() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.useFallback
}

// Subscribe registers a local subscriber. Remote events are relayed to it too.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	return rb.local.Subscribe(eventType)
}

// Unsubscribe removes a local subscriber.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.local.Unsubscribe(eventType, sub)
}

// Publish delivers locally, then to the other nodes.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)

	if rb.Degraded() {
		telemetry.EventBusRemotePublished.WithLabelValues("redis", "skipped").Inc()
		return
	}

	data, err := marshalMessage(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event")
		telemetry.EventBusRemotePublished.WithLabelValues("redis", "error").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, rb.cfg.PublishTimeout)
	defer cancel()
	if err := rb.client.Publish(ctx, SubjectPrefix+string(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
		telemetry.EventBusRemotePublished.WithLabelValues("redis", "error").Inc()
		rb.handleFailure()
		return
	}

	telemetry.EventBusRemotePublished.WithLabelValues("redis", "ok").Inc()
	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
}

// Close stops the relay and closes the client.
func (rb *RedisBus) Close() error {
	rb.cancel()

	rb.mu.Lock()
	if rb.pubsub != nil {
		rb.pubsub.Close()
		rb.pubsub = nil
	}
	rb.mu.Unlock()

	rb.wg.Wait()
	if err := rb.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	rb.logger.Info().Msg("Redis event bus closed")
	return nil
}

// handleFailure opens the breaker after MaxFailures consecutive failures.
func (rb *RedisBus) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++
	if rb.failCount >= rb.cfg.MaxFailures && !rb.useFallback {
		rb.logger.Warn().Int("fail_count", rb.failCount).Msg("Redis failure threshold reached, running local-only")
		rb.useFallback = true
		if rb.pubsub != nil {
			rb.pubsub.Close()
			rb.pubsub = nil
		}
	}
}
