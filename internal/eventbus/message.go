/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards engine events to an external broker so
// dashboards and standby instances can follow a station.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/grimnir_playout/internal/events"
)

// ErrUnavailable indicates the broker is unreachable and messages are dropped.
var ErrUnavailable = errors.New("event broker unavailable")

// SubjectPrefix is prepended to every broker subject or channel.
const SubjectPrefix = "playout"

// Publisher delivers encoded messages to a broker.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// Message is the wire envelope for a forwarded event.
type Message struct {
	MessageID string           `json:"message_id"`
	EventType events.EventType `json:"event_type"`
	StationID string           `json:"station_id,omitempty"`
	NodeID    string           `json:"node_id"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   events.Payload   `json:"payload"`
}

// Subject returns "playout.<station>.<event>".
func Subject(stationID string, eventType events.EventType) string {
	if stationID == "" {
		stationID = "_"
	}
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, stationID, eventType)
}

// Marshal wraps a payload in an envelope.
func Marshal(eventType events.EventType, payload events.Payload, nodeID string) (Message, []byte, error) {
	stationID, _ := payload["station_id"].(string)
	msg := Message{
		MessageID: uuid.NewString(),
		EventType: eventType,
		StationID: stationID,
		NodeID:    nodeID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return msg, nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return msg, data, nil
}

// Unmarshal parses an envelope.
func Unmarshal(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}

// NodeID returns hostname-uuid, identifying this process on the broker.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}
