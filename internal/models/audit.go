/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants for operator and failure events.
const (
	AuditActionSkip             AuditAction = "playout.skip"
	AuditActionStrategyChange   AuditAction = "playout.strategy_change"
	AuditActionLiveFailed       AuditAction = "live.failed"
	AuditActionLivePreempt      AuditAction = "live.preempt"
	AuditActionStarved          AuditAction = "playout.starved"
	AuditActionRecovered        AuditAction = "playout.recovered"
	AuditActionCatalogReload    AuditAction = "catalog.reload"
	AuditActionCatalogRejected  AuditAction = "catalog.rejected"
	AuditActionScheduleReload   AuditAction = "schedule.reload"
	AuditActionScheduleRejected AuditAction = "schedule.rejected"
	AuditActionUpdateAvailable  AuditAction = "release.available"
)

// AuditLog records control actions and failures for later review.
type AuditLog struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	StationID    string         `gorm:"type:varchar(64);index:idx_audit_station"`
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	ResourceType string         `gorm:"type:varchar(64)"` // "item", "live_entry", "catalog", etc.
	ResourceID   string         `gorm:"type:varchar(512)"`
	Details      map[string]any `gorm:"serializer:json"`
	CreatedAt    time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
