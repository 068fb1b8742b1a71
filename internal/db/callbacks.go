/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_voice/internal/models"
	"github.com/friendsincode/grimnir_voice/internal/telemetry"
)

const startedKey = "journal:started_at"

// otherTable labels statements outside the journal.
const otherTable = "other"

var journalTables = func() map[string]bool {
	tables := make(map[string]bool)
	for _, m := range models.JournalModels() {
		if t, ok := m.(interface{ TableName() string }); ok {
			tables[t.TableName()] = true
		}
	}
	return tables
}()

// RegisterCallbacks times the statements the journal issues: inserts from
// the bus subscriber, reads behind /api/v1/journal and retention deletes.
// Durations and errors are labeled by journal table.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("journal:before_create", markStart),
		cb.Create().After("gorm:create").Register("journal:after_create", observe("create")),
		cb.Query().Before("gorm:query").Register("journal:before_query", markStart),
		cb.Query().After("gorm:query").Register("journal:after_query", observe("query")),
		cb.Delete().Before("gorm:delete").Register("journal:before_delete", markStart),
		cb.Delete().After("gorm:delete").Register("journal:after_delete", observe("delete")),
	)
}

func markStart(db *gorm.DB) {
	db.InstanceSet(startedKey, time.Now())
}

func observe(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		table := tableLabel(db.Statement.Table)
		if v, ok := db.InstanceGet(startedKey); ok {
			if started, ok := v.(time.Time); ok {
				telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(started).Seconds())
			}
		}
		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, table).Inc()
		}
	}
}

// tableLabel keeps label cardinality to the journal's own tables.
func tableLabel(table string) string {
	if journalTables[table] {
		return table
	}
	return otherTable
}

// UpdateConnectionMetrics samples the pool. The server calls it on a ticker.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsOpen.Set(float64(sqlDB.Stats().OpenConnections))
}
