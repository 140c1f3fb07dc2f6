// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

// Package sqlite provides the SQLite-backed persistence layer for the
// monitor. All five sub-stores share one database file so that a probe
// result, its history event, and any incident transition live in the same
// WAL.
package sqlite

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pharos-dev/pharos/internal/store"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
)

// Compile-time interface checks.
var (
	_ store.HealthStore    = (*healthStore)(nil)
	_ store.IncidentStore  = (*incidentStore)(nil)
	_ store.EventStore     = (*eventStore)(nil)
	_ store.AggregateStore = (*aggregateStore)(nil)
	_ store.DowntimeStore  = (*downtimeStore)(nil)
)

// NewMonitorStore opens (or creates) the monitor database at dbPath and
// returns the composed store set. The shared connection is closed once,
// by the composite.
func NewMonitorStore(dbPath string) (store.MonitorStore, error) {
	db, err := openMonitorDB(dbPath)
	if err != nil {
		return nil, err
	}
	return store.NewComposite(
		&healthStore{db: db},
		&incidentStore{db: db},
		&eventStore{db: db},
		&aggregateStore{db: db},
		&downtimeStore{db: db},
		db,
	), nil
}

func openMonitorDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, pharoserr.Errorf(pharoserr.CodeStoreDatabaseFailure, "opening monitor db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, pharoserr.Errorf(pharoserr.CodeStoreDatabaseFailure, "pinging monitor db: %w", err)
	}

	if err := migrateMonitor(db); err != nil {
		_ = db.Close()
		return nil, pharoserr.Errorf(pharoserr.CodeStoreDatabaseFailure, "migrating monitor db: %w", err)
	}

	return db, nil
}

func migrateMonitor(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS health_records (
	provider               TEXT NOT NULL,
	model                  TEXT NOT NULL,
	gateway                TEXT NOT NULL DEFAULT '',
	tier                   TEXT NOT NULL DEFAULT 'on_demand',
	check_interval_seconds INTEGER NOT NULL DEFAULT 14400,
	last_status            TEXT NOT NULL DEFAULT '',
	last_response_time_ms  INTEGER NOT NULL DEFAULT 0,
	last_called_at         TEXT NOT NULL DEFAULT '',
	last_success_at        TEXT NOT NULL DEFAULT '',
	last_failure_at        TEXT NOT NULL DEFAULT '',
	last_error_message     TEXT NOT NULL DEFAULT '',
	call_count             INTEGER NOT NULL DEFAULT 0,
	success_count          INTEGER NOT NULL DEFAULT 0,
	error_count            INTEGER NOT NULL DEFAULT 0,
	avg_response_time_ms   REAL NOT NULL DEFAULT 0,
	consecutive_failures   INTEGER NOT NULL DEFAULT 0,
	consecutive_successes  INTEGER NOT NULL DEFAULT 0,
	breaker_state          TEXT NOT NULL DEFAULT 'closed',
	uptime_pct_24h         REAL NOT NULL DEFAULT 100,
	uptime_pct_7d          REAL NOT NULL DEFAULT 100,
	uptime_pct_30d         REAL NOT NULL DEFAULT 100,
	usage_count_24h        INTEGER NOT NULL DEFAULT 0,
	usage_count_7d         INTEGER NOT NULL DEFAULT 0,
	usage_count_30d        INTEGER NOT NULL DEFAULT 0,
	priority_score         REAL NOT NULL DEFAULT 0,
	next_check_at          TEXT NOT NULL,
	enabled                INTEGER NOT NULL DEFAULT 1,
	claimed_until          TEXT NOT NULL DEFAULT '0001-01-01T00:00:00.000000000Z',
	created_at             TEXT NOT NULL,
	updated_at             TEXT NOT NULL,
	PRIMARY KEY (provider, model)
);

CREATE INDEX IF NOT EXISTS idx_health_records_due
	ON health_records(enabled, next_check_at);

CREATE TABLE IF NOT EXISTS incidents (
	id                TEXT PRIMARY KEY,
	provider          TEXT NOT NULL,
	model             TEXT NOT NULL,
	gateway           TEXT NOT NULL DEFAULT '',
	type              TEXT NOT NULL,
	severity          TEXT NOT NULL,
	state             TEXT NOT NULL DEFAULT 'active',
	started_at        TEXT NOT NULL,
	resolved_at       TEXT NOT NULL DEFAULT '',
	duration_seconds  INTEGER NOT NULL DEFAULT 0,
	error_count       INTEGER NOT NULL DEFAULT 0,
	affected_requests INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_incidents_one_unresolved
	ON incidents(provider, model) WHERE state != 'resolved';
CREATE INDEX IF NOT EXISTS idx_incidents_target
	ON incidents(provider, model, started_at);
CREATE INDEX IF NOT EXISTS idx_incidents_started ON incidents(started_at);

CREATE TABLE IF NOT EXISTS health_check_events (
	id               TEXT PRIMARY KEY,
	provider         TEXT NOT NULL,
	model            TEXT NOT NULL,
	gateway          TEXT NOT NULL DEFAULT '',
	checked_at       TEXT NOT NULL,
	status           TEXT NOT NULL,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	breaker_state    TEXT NOT NULL DEFAULT 'closed'
);

CREATE INDEX IF NOT EXISTS idx_events_target_time
	ON health_check_events(provider, model, checked_at);
CREATE INDEX IF NOT EXISTS idx_events_time ON health_check_events(checked_at);

CREATE TABLE IF NOT EXISTS hourly_aggregates (
	provider         TEXT NOT NULL,
	model            TEXT NOT NULL,
	hour             TEXT NOT NULL,
	total_requests   INTEGER NOT NULL DEFAULT 0,
	success_requests INTEGER NOT NULL DEFAULT 0,
	failed_requests  INTEGER NOT NULL DEFAULT 0,
	total_tokens     INTEGER NOT NULL DEFAULT 0,
	total_cost_usd   REAL NOT NULL DEFAULT 0,
	avg_latency_ms   REAL NOT NULL DEFAULT 0,
	p50_latency_ms   REAL NOT NULL DEFAULT 0,
	p95_latency_ms   REAL NOT NULL DEFAULT 0,
	p99_latency_ms   REAL NOT NULL DEFAULT 0,
	error_rate       REAL NOT NULL DEFAULT 0,
	sample_count     INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	PRIMARY KEY (provider, model, hour)
);

CREATE TABLE IF NOT EXISTS downtime_incidents (
	id               TEXT PRIMARY KEY,
	started_at       TEXT NOT NULL,
	detected_at      TEXT NOT NULL,
	ended_at         TEXT NOT NULL DEFAULT '',
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'ongoing',
	logs_snapshot    TEXT NOT NULL DEFAULT '',
	metrics_snapshot TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_downtime_started ON downtime_incidents(started_at);
`
	if _, err := db.Exec(ddl); err != nil {
		return err
	}

	// Columns added after the initial release. Databases created by older
	// binaries pick them up here; fresh databases get them right after the
	// CREATE statements above.
	added := []struct {
		table, column, def string
	}{
		{"incidents", "ack_by", "TEXT NOT NULL DEFAULT ''"},
		{"incidents", "note", "TEXT NOT NULL DEFAULT ''"},
		{"health_check_events", "http_status_code", "INTEGER NOT NULL DEFAULT 0"},
	}
	for _, a := range added {
		if err := addColumnIfMissing(db, a.table, a.column, a.def); err != nil {
			return err
		}
	}
	return nil
}
