/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"
)

// PlayHistory is one item that went on air.
type PlayHistory struct {
	ID        string         `gorm:"type:uuid;primaryKey"` // playback item id
	StationID string         `gorm:"type:varchar(64);index"`
	Kind      string         `gorm:"type:varchar(16);index"`
	SourceID  string         `gorm:"type:varchar(512);index"`
	Locator   string         `gorm:"type:varchar(1024)"`
	Title     string         `gorm:"index"`
	Host      string
	Reason    string         `gorm:"type:varchar(32)"`
	Outcome   string         `gorm:"type:varchar(32)"` // empty while on air
	StartedAt time.Time      `gorm:"index"`
	EndedAt   *time.Time
	Metadata  map[string]any `gorm:"serializer:json"`
}

// TableName returns the table name for GORM.
func (PlayHistory) TableName() string {
	return "play_history"
}

// OnAir reports whether the item has not finished yet.
func (p PlayHistory) OnAir() bool {
	return p.EndedAt == nil
}

// MetadataString retrieves string metadata with fallback to struct fields.
func (p PlayHistory) MetadataString(key string) string {
	if p.Metadata != nil {
		if val, ok := p.Metadata[key]; ok {
			if str, ok := val.(string); ok {
				return str
			}
		}
	}
	switch strings.ToLower(key) {
	case "title":
		return p.Title
	case "host":
		return p.Host
	case "source_id":
		return p.SourceID
	}
	return ""
}

// StationState persists operator choices that survive restarts.
type StationState struct {
	StationID string `gorm:"type:varchar(64);primaryKey"`
	Strategy  string `gorm:"type:varchar(32)"`
	LastState string `gorm:"type:varchar(32)"`
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (StationState) TableName() string {
	return "station_state"
}
