/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventNowPlaying    EventType = "now_playing"
	EventPrefetch      EventType = "prefetch"
	EventTrackFinished EventType = "track.finished"
	EventStateChange   EventType = "state.change"
	EventSkip          EventType = "skip"

	EventLivePreempt  EventType = "live.preempt"
	EventLiveUpcoming EventType = "live.upcoming"
	EventLiveFailed   EventType = "live.failed"
	EventLiveEnded    EventType = "live.ended"

	EventStarved   EventType = "starved"
	EventRecovered EventType = "recovered"

	EventCatalogReloaded  EventType = "catalog.reloaded"
	EventCatalogRejected  EventType = "catalog.rejected"
	EventScheduleReloaded EventType = "schedule.reloaded"
	EventScheduleRejected EventType = "schedule.rejected"
	EventStrategyChanged  EventType = "strategy.changed"

	EventUpdateAvailable EventType = "update.available"
)

// All lists every event type, in a stable order.
func All() []EventType {
	return []EventType{
		EventNowPlaying, EventPrefetch, EventTrackFinished, EventStateChange, EventSkip,
		EventLivePreempt, EventLiveUpcoming, EventLiveFailed, EventLiveEnded,
		EventStarved, EventRecovered,
		EventCatalogReloaded, EventCatalogRejected, EventScheduleReloaded, EventScheduleRejected, EventStrategyChanged,
		EventUpdateAvailable,
	}
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub. Publishing never blocks; slow
// subscribers miss events.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	return b.SubscribeBuffered(eventType, 8)
}

// SubscribeBuffered registers a subscriber with a custom buffer size.
func (b *Bus) SubscribeBuffered(eventType EventType, size int) Subscriber {
	ch := make(Subscriber, size)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	if b == nil {
		return
	}
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}
