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
)

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	RetryInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		RetryInterval: 30 * time.Second,
	}
}

// RedisPublisher publishes to Redis pub/sub channels. After MaxFailures
// consecutive errors it opens its circuit and drops messages until a ping
// succeeds again, at most once per RetryInterval.
type RedisPublisher struct {
	client *redis.Client
	cfg    RedisConfig
	logger zerolog.Logger

	mu        sync.Mutex
	open      bool
	failCount int
	lastCheck time.Time
}

// NewRedisPublisher connects to Redis. An unreachable server is not an
// error: the publisher starts with its circuit open.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) *RedisPublisher {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	rp := &RedisPublisher{
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
		cfg:    cfg,
		logger: logger.With().Str("component", "eventbus").Str("backend", "redis").Logger(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rp.client.Ping(pingCtx).Err(); err != nil {
		rp.logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unreachable, events will not be forwarded until it recovers")
		rp.open = true
		rp.lastCheck = time.Now()
	} else {
		rp.logger.Info().Str("addr", cfg.Addr).Msg("redis event forwarding enabled")
	}
	return rp
}

// Name implements Publisher.
func (rp *RedisPublisher) Name() string { return "redis" }

// Publish implements Publisher.
func (rp *RedisPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if !rp.allow(ctx) {
		return ErrUnavailable
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rp.client.Publish(pubCtx, subject, data).Err(); err != nil {
		rp.handleFailure()
		return fmt.Errorf("redis publish %s: %w", subject, err)
	}

	rp.mu.Lock()
	rp.failCount = 0
	rp.mu.Unlock()
	return nil
}

// allow reports whether the circuit is closed, probing Redis when the retry
// interval has passed.
func (rp *RedisPublisher) allow(ctx context.Context) bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if !rp.open {
		return true
	}
	if time.Since(rp.lastCheck) < rp.cfg.RetryInterval {
		return false
	}
	rp.lastCheck = time.Now()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rp.client.Ping(pingCtx).Err(); err != nil {
		return false
	}
	rp.open = false
	rp.failCount = 0
	rp.logger.Info().Msg("reconnected to redis")
	return true
}

// handleFailure implements circuit breaker logic.
func (rp *RedisPublisher) handleFailure() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	rp.failCount++
	if rp.failCount >= rp.cfg.MaxFailures && !rp.open {
		rp.logger.Warn().
			Int("fail_count", rp.failCount).
			Msg("redis failure threshold reached, pausing event forwarding")
		rp.open = true
		rp.lastCheck = time.Now()
	}
}

// Available reports whether the circuit is closed.
func (rp *RedisPublisher) Available() bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return !rp.open
}

// Close closes the Redis client.
func (rp *RedisPublisher) Close() error {
	return rp.client.Close()
}
