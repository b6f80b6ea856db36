/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership makes sure only one instance drives a station's
// playout at a time.
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

	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

const (
	keyPrefix = "grimnir:playout:leader:"

	// The leader must renew before the lease expires.
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
	defaultRetryInterval   = 2 * time.Second
)

// renewScript extends the lease only if this instance still holds it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lease only if this instance still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ElectionConfig configures leader election behavior.
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// StationID scopes the lease, one leader per station.
	StationID string

	LeaseDuration   time.Duration
	RenewalInterval time.Duration
	RetryInterval   time.Duration

	// InstanceID uniquely identifies this instance.
	InstanceID string
}

// Election manages distributed leader election using a Redis lease.
type Election struct {
	client     *redis.Client
	logger     zerolog.Logger
	config     ElectionConfig
	key        string
	instanceID string

	isLeader atomic.Bool
	leaderCh chan bool
	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewElection connects to Redis and prepares a campaign.
func NewElection(config ElectionConfig, logger zerolog.Logger) (*Election, error) {
	if config.StationID == "" {
		return nil, errors.New("leader election needs a station id")
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
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger = logger.With().Str("component", "leader_election").Str("station_id", config.StationID).Logger()
	logger.Info().
		Str("redis_addr", config.RedisAddr).
		Str("instance_id", config.InstanceID).
		Msg("connected to Redis for leader election")

	return &Election{
		client:     client,
		logger:     logger,
		config:     config,
		key:        keyPrefix + config.StationID,
		instanceID: config.InstanceID,
		leaderCh:   make(chan bool, 1),
		done:       make(chan struct{}),
	}, nil
}

// Start begins campaigning in the background.
func (e *Election) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.logger.Info().
		Str("instance_id", e.instanceID).
		Dur("lease_duration", e.config.LeaseDuration).
		Msg("starting leader election")
	go e.campaignLoop(ctx)
}

// Stop ends the campaign, releases the lease if held, and closes Redis.
func (e *Election) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
			<-e.done
		}
		if e.isLeader.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if relErr := releaseScript.Run(ctx, e.client, []string{e.key}, e.instanceID).Err(); relErr != nil {
				e.logger.Error().Err(relErr).Msg("failed to release leadership lock")
			} else {
				e.logger.Info().Msg("released leadership lock")
			}
			e.updateLeadershipStatus(false)
		}
		err = e.client.Close()
	})
	return err
}

// IsLeader returns whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	return e.isLeader.Load()
}

// InstanceID identifies this campaigner.
func (e *Election) InstanceID() string {
	return e.instanceID
}

// LeaderCh delivers leadership changes. Only the latest value is kept.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// GetLeader returns the current leader instance ID, or "" if none.
func (e *Election) GetLeader(ctx context.Context) (string, error) {
	leaderID, err := e.client.Get(ctx, e.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return leaderID, nil
}

func (e *Election) campaignLoop(ctx context.Context) {
	defer close(e.done)

	e.attemptLeadership(ctx)
	for {
		interval := e.config.RetryInterval
		if e.isLeader.Load() {
			interval = e.config.RenewalInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			e.attemptLeadership(ctx)
		}
	}
}

func (e *Election) attemptLeadership(ctx context.Context) {
	held, err := e.acquireLock(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Without Redis we cannot prove the lease is ours.
		e.logger.Error().Err(err).Msg("leadership check failed")
		e.updateLeadershipStatus(false)
		return
	}
	e.updateLeadershipStatus(held)
}

// acquireLock takes the lease if free, or renews it if already ours.
func (e *Election) acquireLock(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.key, e.instanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lock: %w", err)
	}
	if ok {
		return true, nil
	}
	renewed, err := renewScript.Run(ctx, e.client, []string{e.key}, e.instanceID, e.config.LeaseDuration.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	return renewed == 1, nil
}

func (e *Election) updateLeadershipStatus(isLeader bool) {
	if e.isLeader.Swap(isLeader) == isLeader {
		return
	}

	if isLeader {
		e.logger.Info().Str("instance_id", e.instanceID).Msg("acquired leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(e.instanceID).Set(1)
		telemetry.LeaderElectionChanges.WithLabelValues(e.instanceID, "acquired").Inc()
	} else {
		e.logger.Warn().Str("instance_id", e.instanceID).Msg("lost leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(e.instanceID).Set(0)
		telemetry.LeaderElectionChanges.WithLabelValues(e.instanceID, "lost").Inc()
	}

	// Replace any unread value so readers see the latest status.
	select {
	case <-e.leaderCh:
	default:
	}
	select {
	case e.leaderCh <- isLeader:
	default:
	}
}
