/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects one node of a cluster to run housekeeping that
// must not run twice, such as journal retention.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

const (
	defaultElectionKey     = "grimnir_voice:leader:housekeeping"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
	defaultRetryInterval   = 2 * time.Second
)

// renewScript extends the lease only while we still own it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Leader reports whether this process may run cluster-wide housekeeping.
type Leader interface {
	IsLeader() bool
}

// Single is the Leader of a deployment with one node.
type Single struct{}

func (Single) IsLeader() bool { return true }

// ElectionConfig configures leader election.
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ElectionKey is the Redis key holding the leader's instance id.
	ElectionKey string

	// LeaseDuration is how long a lease lives without renewal.
	LeaseDuration time.Duration

	// RenewalInterval is how often the leader renews.
	RenewalInterval time.Duration

	// RetryInterval is how often followers try to take over.
	RetryInterval time.Duration

	InstanceID string
}

// DefaultConfig returns the default election configuration.
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		RedisAddr:       "localhost:6379",
		ElectionKey:     defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
		RetryInterval:   defaultRetryInterval,
		InstanceID:      uuid.NewString(),
	}
}

// Election holds a Redis lease while this instance leads.
type Election struct {
	client *redis.Client
	logger zerolog.Logger
	config ElectionConfig

	leader   atomic.Bool
	leaderCh chan bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewElection connects to Redis. The campaign begins with Start.
func NewElection(config ElectionConfig, logger zerolog.Logger) (*Election, error) {
	if config.ElectionKey == "" {
		config.ElectionKey = defaultElectionKey
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = defaultLeaseDuration
	}
	if config.RenewalInterval <= 0 {
		config.RenewalInterval = defaultRenewalInterval
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaultRetryInterval
	}
	if config.RenewalInterval >= config.LeaseDuration {
		return nil, fmt.Errorf("renewal interval %s must be shorter than lease %s", config.RenewalInterval, config.LeaseDuration)
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis for leader election: %w", err)
	}

	logger = logger.With().Str("component", "leader_election").Str("instance_id", config.InstanceID).Logger()
	logger.Info().Str("redis_addr", config.RedisAddr).Str("key", config.ElectionKey).Msg("connected to redis for leader election")

	return &Election{
		client:   client,
		logger:   logger,
		config:   config,
		leaderCh: make(chan bool, 1),
	}, nil
}

// Start campaigns in the background until ctx ends or Stop is called.
func (e *Election) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	e.logger.Info().Dur("lease", e.config.LeaseDuration).Msg("starting leader election")
	go e.campaign(ctx)
}

// Stop ends the campaign, gives up the lease if held and closes the client.
func (e *Election) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if e.leader.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, e.client, []string{e.config.ElectionKey}, e.config.InstanceID).Err(); err != nil {
			e.logger.Error().Err(err).Msg("failed to release leadership")
		} else {
			e.logger.Info().Msg("released leadership")
		}
		e.setLeader(false)
	}
	return e.client.Close()
}

// IsLeader reports whether this instance held the lease at its last check.
func (e *Election) IsLeader() bool {
	return e.leader.Load()
}

// LeaderCh receives leadership changes. Changes are dropped when nobody reads.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// InstanceID returns the id this instance campaigns under.
func (e *Election) InstanceID() string {
	return e.config.InstanceID
}

// GetLeader returns the current leader's instance id, or "" if none.
func (e *Election) GetLeader(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return id, nil
}

func (e *Election) campaign(ctx context.Context) {
	defer close(e.done)

	for {
		e.attempt(ctx)

		wait := e.config.RetryInterval
		if e.leader.Load() {
			wait = e.config.RenewalInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (e *Election) attempt(ctx context.Context) {
	held, err := e.acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Error().Err(err).Msg("leadership check failed")
		held = false
	}

	switch {
	case held && !e.leader.Load():
		e.logger.Info().Msg("acquired leadership")
	case !held && e.leader.Load():
		e.logger.Warn().Msg("lost leadership")
	}
	e.setLeader(held)
}

func (e *Election) acquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.config.ElectionKey, e.config.InstanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}

	renewed, err := renewScript.Run(ctx, e.client, []string{e.config.ElectionKey},
		e.config.InstanceID, e.config.LeaseDuration.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return renewed == 1, nil
}

func (e *Election) setLeader(leader bool) {
	if e.leader.Swap(leader) == leader {
		return
	}

	id := e.config.InstanceID
	if leader {
		telemetry.LeaderElectionStatus.WithLabelValues(id).Set(1)
		telemetry.LeaderElectionChanges.WithLabelValues(id, "acquired").Inc()
	} else {
		telemetry.LeaderElectionStatus.WithLabelValues(id).Set(0)
		telemetry.LeaderElectionChanges.WithLabelValues(id, "lost").Inc()
	}

	select {
	case e.leaderCh <- leader:
	default:
	}
}
