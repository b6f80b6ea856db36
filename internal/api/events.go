/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

const eventsPingInterval = 15 * time.Second

type streamedEvent struct {
	eventType events.EventType
	payload   events.Payload
}

// handleEvents streams engine events over a websocket. The optional types
// query parameter narrows the stream to a comma separated list.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	eventTypes, ok := parseEventTypes(r.URL.Query().Get("types"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown_event_type")
		return
	}
	if len(eventTypes) == 0 {
		eventTypes = events.All()
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.WebsocketConnections.Inc()
	defer telemetry.WebsocketConnections.Dec()

	// Clients only listen; CloseRead handles their control frames and
	// cancels ctx when they go away.
	ctx := conn.CloseRead(r.Context())

	bus := a.station.Bus()
	merged := make(chan streamedEvent, 64)
	subscribers := make([]events.Subscriber, len(eventTypes))
	for i, eventType := range eventTypes {
		sub := bus.Subscribe(eventType)
		subscribers[i] = sub
		go relay(ctx, eventType, sub, merged)
	}
	defer func() {
		for i, eventType := range eventTypes {
			bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case ev := <-merged:
			if err := a.writeEvent(ctx, conn, ev.eventType, ev.payload); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func relay(ctx context.Context, eventType events.EventType, sub events.Subscriber, out chan<- streamedEvent) {
	for payload := range sub {
		select {
		case out <- streamedEvent{eventType: eventType, payload: payload}:
		case <-ctx.Done():
			return
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, ws.MessageText, bytes)
}

// parseEventTypes splits a comma separated list, rejecting unknown names.
func parseEventTypes(raw string) ([]events.EventType, bool) {
	if raw == "" {
		return nil, true
	}
	known := events.All()
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t := events.EventType(part)
		if !slices.Contains(known, t) {
			return nil, false
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, true
}
