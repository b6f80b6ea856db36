/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

// actions maps audited engine events to audit actions.
var actions = map[events.EventType]models.AuditAction{
	events.EventSkip:             models.AuditActionSkip,
	events.EventStrategyChanged:  models.AuditActionStrategyChange,
	events.EventLiveFailed:       models.AuditActionLiveFailed,
	events.EventLivePreempt:      models.AuditActionLivePreempt,
	events.EventStarved:          models.AuditActionStarved,
	events.EventRecovered:        models.AuditActionRecovered,
	events.EventCatalogReloaded:  models.AuditActionCatalogReload,
	events.EventCatalogRejected:  models.AuditActionCatalogRejected,
	events.EventScheduleReloaded: models.AuditActionScheduleReload,
	events.EventScheduleRejected: models.AuditActionScheduleRejected,
	events.EventUpdateAvailable:  models.AuditActionUpdateAvailable,
}

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

type tagged struct {
	action  models.AuditAction
	payload events.Payload
}

// Start subscribes to audited events and stores them until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("audit service starting")

	merged := make(chan tagged, 64)
	subs := make(map[events.EventType]events.Subscriber, len(actions))
	for eventType, action := range actions {
		sub := s.bus.Subscribe(eventType)
		subs[eventType] = sub
		go func(action models.AuditAction, sub events.Subscriber) {
			for payload := range sub {
				select {
				case merged <- tagged{action: action, payload: payload}:
				case <-ctx.Done():
					return
				}
			}
		}(action, sub)
	}
	defer func() {
		for eventType, sub := range subs {
			s.bus.Unsubscribe(eventType, sub)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return
		case msg := <-merged:
			s.logAuditEntry(ctx, msg.action, msg.payload)
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		Action:  action,
		Details: make(map[string]any),
	}
	if stationID, ok := payload["station_id"].(string); ok {
		entry.StationID = stationID
	}
	entry.ResourceType, entry.ResourceID = resourceOf(payload)

	for k, v := range payload {
		if k == "station_id" {
			continue
		}
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		entry.Details[k] = v
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

func resourceOf(payload events.Payload) (string, string) {
	if id, ok := payload["entry_id"].(string); ok {
		return "live_entry", id
	}
	if id, ok := payload["item_id"].(string); ok {
		return "item", id
	}
	if gen, ok := payload["generation"]; ok {
		return "catalog", fmt.Sprint(gen)
	}
	if latest, ok := payload["latest"].(string); ok {
		return "release", latest
	}
	return "station", ""
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	StationID string
	Action    models.AuditAction
	Since     time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit logs, most recent first, with the total match count.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if filters.StationID != "" {
		query = query.Where("station_id = ?", filters.StationID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if !filters.Since.IsZero() {
		query = query.Where("timestamp >= ?", filters.Since)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	query = query.Limit(limit)
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
