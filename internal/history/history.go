/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package history persists what went on air and the station's durable
// operator settings.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// Recorder writes play history rows from engine events.
type Recorder struct {
	db       *gorm.DB
	bus      *events.Bus
	started  events.Subscriber
	finished events.Subscriber
	logger   zerolog.Logger
}

// NewRecorder creates a play history recorder. It subscribes immediately so
// events published before Start are not lost.
func NewRecorder(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Recorder {
	return &Recorder{
		db:       db,
		bus:      bus,
		started:  bus.SubscribeBuffered(events.EventNowPlaying, 64),
		finished: bus.SubscribeBuffered(events.EventTrackFinished, 64),
		logger:   logger.With().Str("component", "history").Logger(),
	}
}

// Start records now-playing and finished events until ctx is done.
func (r *Recorder) Start(ctx context.Context) {
	defer r.bus.Unsubscribe(events.EventNowPlaying, r.started)
	defer r.bus.Unsubscribe(events.EventTrackFinished, r.finished)

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-r.started:
			r.write(ctx, "start", r.RecordStart(ctx, payload))
		case payload := <-r.finished:
			r.write(ctx, "finish", r.RecordFinish(ctx, payload))
		}
	}
}

func (r *Recorder) write(_ context.Context, op string, err error) {
	if err != nil {
		telemetry.PlayHistoryWrites.WithLabelValues("error").Inc()
		r.logger.Warn().Err(err).Str("op", op).Msg("play history write failed")
		return
	}
	telemetry.PlayHistoryWrites.WithLabelValues("ok").Inc()
}

// RecordStart inserts the row for an item that just went on air.
func (r *Recorder) RecordStart(ctx context.Context, payload events.Payload) error {
	id, _ := payload["item_id"].(string)
	if id == "" {
		return errors.New("now playing event without item_id")
	}
	row := models.PlayHistory{
		ID:        id,
		StationID: str(payload, "station_id"),
		Kind:      str(payload, "kind"),
		SourceID:  str(payload, "source_id"),
		Locator:   str(payload, "locator"),
		Title:     str(payload, "title"),
		Host:      str(payload, "host"),
		Reason:    str(payload, "reason"),
		StartedAt: timeOf(payload, "decided_at"),
	}
	if ms, ok := payload["duration_ms"].(int64); ok {
		row.Metadata = map[string]any{"duration_ms": ms}
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

// RecordFinish closes the row for an item that left the air.
func (r *Recorder) RecordFinish(ctx context.Context, payload events.Payload) error {
	id, _ := payload["item_id"].(string)
	if id == "" {
		return errors.New("finished event without item_id")
	}
	ended := timeOf(payload, "ended_at")
	res := r.db.WithContext(ctx).
		Model(&models.PlayHistory{}).
		Where("id = ?", id).
		Updates(map[string]any{"ended_at": ended, "outcome": str(payload, "outcome")})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no play history row for item %s", id)
	}
	return nil
}

// Recent returns the latest rows for a station, newest first.
func Recent(ctx context.Context, db *gorm.DB, stationID string, limit int) ([]models.PlayHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []models.PlayHistory
	err := db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// SaveStrategy stores the operator-selected ordering strategy.
func SaveStrategy(ctx context.Context, db *gorm.DB, stationID, strategy string) error {
	state := models.StationState{StationID: stationID, Strategy: strategy, UpdatedAt: time.Now()}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "station_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"strategy", "updated_at"}),
		}).
		Create(&state).Error
}

// LoadStrategy returns the stored strategy, or "" when none was saved.
func LoadStrategy(ctx context.Context, db *gorm.DB, stationID string) (string, error) {
	var state models.StationState
	err := db.WithContext(ctx).First(&state, "station_id = ?", stationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return state.Strategy, nil
}

func str(p events.Payload, key string) string {
	s, _ := p[key].(string)
	return s
}

func timeOf(p events.Payload, key string) time.Time {
	if t, ok := p[key].(time.Time); ok {
		return t
	}
	return time.Now()
}
