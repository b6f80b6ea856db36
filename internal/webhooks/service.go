/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks posts engine events to operator-configured URLs.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/config"
	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// Payload is the body sent to webhook endpoints.
type Payload struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	StationID string         `json:"station_id"`
	Data      events.Payload `json:"data"`
}

type target struct {
	config.Webhook
	events map[events.EventType]struct{}
}

func (t target) wants(eventType events.EventType) bool {
	if len(t.events) == 0 {
		return true
	}
	_, ok := t.events[eventType]
	return ok
}

type delivery struct {
	eventType events.EventType
	payload   events.Payload
}

// Service handles webhook delivery.
type Service struct {
	stationID string
	bus       *events.Bus
	targets   []target
	subs      map[events.EventType]events.Subscriber
	logger    zerolog.Logger
	client    *http.Client
}

// NewService subscribes to the events the targets ask for. Subscribing here
// rather than in Start means events published before Start are not lost.
func NewService(stationID string, hooks []config.Webhook, bus *events.Bus, logger zerolog.Logger) (*Service, error) {
	s := &Service{
		stationID: stationID,
		bus:       bus,
		subs:      make(map[events.EventType]events.Subscriber),
		logger:    logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	known := make(map[events.EventType]struct{})
	for _, t := range events.All() {
		known[t] = struct{}{}
	}
	wanted := make(map[events.EventType]struct{})
	for i, hook := range hooks {
		if hook.ID == "" {
			hook.ID = fmt.Sprintf("webhook-%d", i+1)
		}
		t := target{Webhook: hook, events: make(map[events.EventType]struct{})}
		for _, name := range hook.Events {
			eventType := events.EventType(name)
			if _, ok := known[eventType]; !ok {
				return nil, fmt.Errorf("webhook %s: unknown event %q", hook.ID, name)
			}
			t.events[eventType] = struct{}{}
		}
		if len(t.events) == 0 {
			for eventType := range known {
				wanted[eventType] = struct{}{}
			}
		}
		for eventType := range t.events {
			wanted[eventType] = struct{}{}
		}
		s.targets = append(s.targets, t)
	}
	for eventType := range wanted {
		s.subs[eventType] = bus.SubscribeBuffered(eventType, 32)
	}
	return s, nil
}

// WithClient replaces the HTTP client, mainly for tests.
func (s *Service) WithClient(c *http.Client) *Service {
	s.client = c
	return s
}

// Start delivers events until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Int("targets", len(s.targets)).Msg("webhook service starting")

	merged := make(chan delivery, 64)
	for eventType, sub := range s.subs {
		go func(eventType events.EventType, sub events.Subscriber) {
			for payload := range sub {
				select {
				case merged <- delivery{eventType: eventType, payload: payload}:
				case <-ctx.Done():
					return
				}
			}
		}(eventType, sub)
	}
	defer func() {
		for eventType, sub := range s.subs {
			s.bus.Unsubscribe(eventType, sub)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("webhook service stopping")
			return
		case d := <-merged:
			s.dispatch(ctx, d)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, d delivery) {
	body, err := json.Marshal(Payload{
		ID:        uuid.NewString(),
		Event:     string(d.eventType),
		Timestamp: time.Now().UTC(),
		StationID: s.stationID,
		Data:      d.payload,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event", string(d.eventType)).Msg("failed to marshal webhook payload")
		return
	}
	for _, t := range s.targets {
		if t.wants(d.eventType) {
			s.deliver(ctx, t, string(d.eventType), body)
		}
	}
}

func (s *Service) deliver(ctx context.Context, t target, eventType string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error().Err(err).Str("webhook", t.ID).Msg("failed to create webhook request")
		telemetry.WebhookDeliveries.WithLabelValues(t.ID, "error").Inc()
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Grimnir-Playout-Webhook/1.0")
	req.Header.Set("X-Grimnir-Event", eventType)
	req.Header.Set("X-Grimnir-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if t.Secret != "" {
		req.Header.Set("X-Grimnir-Signature", Sign(body, t.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error().Err(err).Str("webhook", t.ID).Str("url", t.URL).Msg("webhook delivery failed")
		telemetry.WebhookDeliveries.WithLabelValues(t.ID, "error").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.logger.Debug().Str("webhook", t.ID).Str("event", eventType).Int("status", resp.StatusCode).Msg("webhook delivered")
		telemetry.WebhookDeliveries.WithLabelValues(t.ID, "ok").Inc()
		return
	}
	s.logger.Warn().Str("webhook", t.ID).Str("event", eventType).Int("status", resp.StatusCode).Msg("webhook returned error status")
	telemetry.WebhookDeliveries.WithLabelValues(t.ID, "rejected").Inc()
}

// Sign returns the X-Grimnir-Signature value for body.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
