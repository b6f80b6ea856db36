/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

const startTimeKey = "telemetry:start_time"

// RegisterCallbacks times every CRUD statement into the database metrics.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	steps := []func() error{
		func() error { return cb.Query().Before("gorm:query").Register("telemetry:before_query", beforeCallback) },
		func() error { return cb.Query().After("gorm:query").Register("telemetry:after_query", afterCallback("query")) },
		func() error { return cb.Create().Before("gorm:create").Register("telemetry:before_create", beforeCallback) },
		func() error { return cb.Create().After("gorm:create").Register("telemetry:after_create", afterCallback("create")) },
		func() error { return cb.Update().Before("gorm:update").Register("telemetry:before_update", beforeCallback) },
		func() error { return cb.Update().After("gorm:update").Register("telemetry:after_update", afterCallback("update")) },
		func() error { return cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", beforeCallback) },
		func() error { return cb.Delete().After("gorm:delete").Register("telemetry:after_delete", afterCallback("delete")) },
	}
	for _, register := range steps {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

func beforeCallback(db *gorm.DB) {
	db.InstanceSet(startTimeKey, time.Now())
}

func afterCallback(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(startTimeKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())

		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, "query_error").Inc()
		}
	}
}

// UpdateConnectionMetrics samples the connection pool.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsActive.Set(float64(sqlDB.Stats().OpenConnections))
}
