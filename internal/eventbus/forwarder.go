/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// Forwarder copies every local bus event to a Publisher.
type Forwarder struct {
	bus    *events.Bus
	pub    Publisher
	nodeID string
	logger zerolog.Logger
}

// NewForwarder creates a forwarder for pub.
func NewForwarder(bus *events.Bus, pub Publisher, nodeID string, logger zerolog.Logger) *Forwarder {
	return &Forwarder{
		bus:    bus,
		pub:    pub,
		nodeID: nodeID,
		logger: logger.With().Str("component", "eventbus").Str("backend", pub.Name()).Logger(),
	}
}

type envelope struct {
	eventType events.EventType
	payload   events.Payload
}

// Run forwards events until ctx is done.
func (f *Forwarder) Run(ctx context.Context) {
	merged := make(chan envelope, 128)
	subs := make(map[events.EventType]events.Subscriber)
	for _, eventType := range events.All() {
		sub := f.bus.SubscribeBuffered(eventType, 32)
		subs[eventType] = sub
		go func(eventType events.EventType, sub events.Subscriber) {
			for payload := range sub {
				select {
				case merged <- envelope{eventType: eventType, payload: payload}:
				case <-ctx.Done():
					return
				}
			}
		}(eventType, sub)
	}
	defer func() {
		for eventType, sub := range subs {
			f.bus.Unsubscribe(eventType, sub)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-merged:
			f.forward(ctx, env.eventType, env.payload)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, eventType events.EventType, payload events.Payload) {
	msg, data, err := Marshal(eventType, payload, f.nodeID)
	if err != nil {
		telemetry.EventBusPublished.WithLabelValues(f.pub.Name(), "encode_error").Inc()
		f.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to encode event")
		return
	}
	if err := f.pub.Publish(ctx, Subject(msg.StationID, eventType), data); err != nil {
		result := "error"
		if errors.Is(err, ErrUnavailable) {
			result = "dropped"
		} else {
			f.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("failed to forward event")
		}
		telemetry.EventBusPublished.WithLabelValues(f.pub.Name(), result).Inc()
		return
	}
	telemetry.EventBusPublished.WithLabelValues(f.pub.Name(), "ok").Inc()
}
