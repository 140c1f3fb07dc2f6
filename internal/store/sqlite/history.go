// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pharos-dev/pharos/internal/store"
	"github.com/pharos-dev/pharos/pkg/status"
)

// eventStore implements store.EventStore on the shared monitor database.
type eventStore struct {
	db *sql.DB
}

const eventColumns = `id, provider, model, gateway, checked_at, status,
	response_time_ms, error_message, http_status_code, breaker_state`

func scanEvent(row rowScanner) (*store.HealthCheckEvent, error) {
	var (
		ev           store.HealthCheckEvent
		checkedAt    string
		probeStatus  string
		breakerState string
	)
	if err := row.Scan(
		&ev.ID, &ev.Provider, &ev.Model, &ev.Gateway, &checkedAt, &probeStatus,
		&ev.ResponseTimeMS, &ev.ErrorMessage, &ev.HTTPStatusCode, &breakerState,
	); err != nil {
		return nil, err
	}

	ev.Status = status.ProbeStatus(probeStatus)
	ev.BreakerState = status.BreakerState(breakerState)

	var err error
	if ev.CheckedAt, err = parseTime(checkedAt); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *eventStore) Append(ctx context.Context, ev *store.HealthCheckEvent) error {
	const q = `INSERT INTO health_check_events (
	id, provider, model, gateway, checked_at, status,
	response_time_ms, error_message, http_status_code, breaker_state
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		ev.ID, ev.Provider, ev.Model, ev.Gateway, formatTime(ev.CheckedAt), string(ev.Status),
		ev.ResponseTimeMS, ev.ErrorMessage, ev.HTTPStatusCode, string(ev.BreakerState),
	)
	if err != nil {
		return fmt.Errorf("appending health check event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *eventStore) ListByTarget(ctx context.Context, provider, model string, from, to time.Time, opts store.ListOpts) ([]*store.HealthCheckEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM health_check_events
WHERE provider = ? AND model = ? AND checked_at >= ? AND checked_at < ?
ORDER BY checked_at ASC LIMIT ? OFFSET ?`

	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, q,
		provider, model, formatTime(from), formatTime(to), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing events for %s/%s: %w", provider, model, err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	return collectEvents(rows)
}

func (s *eventStore) ListBetween(ctx context.Context, from, to time.Time) ([]*store.HealthCheckEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM health_check_events
WHERE checked_at >= ? AND checked_at < ?
ORDER BY checked_at ASC`

	rows, err := s.db.QueryContext(ctx, q, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("listing events between %s and %s: %w", from, to, err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]*store.HealthCheckEvent, error) {
	var events []*store.HealthCheckEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning health check event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating health check events: %w", err)
	}
	return events, nil
}

func (s *eventStore) UptimeSince(ctx context.Context, provider, model string, since time.Time) (int64, int64, error) {
	const q = `SELECT
	COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
	COUNT(*)
FROM health_check_events
WHERE provider = ? AND model = ? AND checked_at >= ?`

	var ok, total int64
	err := s.db.QueryRowContext(ctx, q,
		string(status.ProbeOK), provider, model, formatTime(since)).Scan(&ok, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("counting uptime for %s/%s: %w", provider, model, err)
	}
	return ok, total, nil
}

func (s *eventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM health_check_events WHERE checked_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting events before %s: %w", cutoff, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking deleted event rows: %w", err)
	}
	return rows, nil
}

func (s *eventStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM health_check_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting health check events: %w", err)
	}
	return n, nil
}

// Close is a no-op; the composite closes the shared connection.
func (s *eventStore) Close() error { return nil }
