// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/pharos-dev/pharos/internal/store"
	"github.com/pharos-dev/pharos/pkg/status"
)

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure, which the partial index on unresolved incidents produces when
// a second incident is opened for the same target.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// ---------- incidentStore ----------

type incidentStore struct {
	db *sql.DB
}

const incidentColumns = `id, provider, model, gateway, type, severity, state,
	started_at, resolved_at, duration_seconds, error_count, affected_requests,
	ack_by, note, created_at, updated_at`

func scanIncident(row rowScanner) (*store.Incident, error) {
	var (
		inc        store.Incident
		incType    string
		severity   string
		state      string
		startedAt  string
		resolvedAt string
		created    string
		updated    string
	)
	if err := row.Scan(
		&inc.ID, &inc.Provider, &inc.Model, &inc.Gateway, &incType, &severity, &state,
		&startedAt, &resolvedAt, &inc.DurationSeconds, &inc.ErrorCount, &inc.AffectedRequests,
		&inc.AckBy, &inc.Note, &created, &updated,
	); err != nil {
		return nil, err
	}

	inc.Type = status.IncidentType(incType)
	inc.Severity = status.Severity(severity)
	inc.State = status.IncidentState(state)

	var err error
	if inc.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if inc.ResolvedAt, err = parseTimePtr(resolvedAt); err != nil {
		return nil, err
	}
	if inc.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if inc.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &inc, nil
}

func (s *incidentStore) Open(ctx context.Context, inc *store.Incident) error {
	const q = `INSERT INTO incidents (
	id, provider, model, gateway, type, severity, state,
	started_at, resolved_at, duration_seconds, error_count, affected_requests,
	ack_by, note, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		inc.ID, inc.Provider, inc.Model, inc.Gateway,
		string(inc.Type), string(inc.Severity), string(inc.State),
		formatTime(inc.StartedAt), formatTimePtr(inc.ResolvedAt), inc.DurationSeconds,
		inc.ErrorCount, inc.AffectedRequests, inc.AckBy, inc.Note,
		formatTime(inc.CreatedAt), formatTime(inc.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("incident for %s/%s: %w", inc.Provider, inc.Model, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("opening incident %s: %w", inc.ID, err)
	}
	return nil
}

func (s *incidentStore) Get(ctx context.Context, id string) (*store.Incident, error) {
	q := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = ?`

	inc, err := scanIncident(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("incident %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting incident %s: %w", id, err)
	}
	return inc, nil
}

func (s *incidentStore) GetUnresolved(ctx context.Context, provider, model string) (*store.Incident, error) {
	q := `SELECT ` + incidentColumns + ` FROM incidents
WHERE provider = ? AND model = ? AND state != ?`

	inc, err := scanIncident(s.db.QueryRowContext(ctx, q, provider, model, string(status.IncidentResolved)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unresolved incident for %s/%s: %w", provider, model, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting unresolved incident for %s/%s: %w", provider, model, err)
	}
	return inc, nil
}

func (s *incidentStore) Update(ctx context.Context, inc *store.Incident) error {
	const q = `UPDATE incidents SET
	type = ?, severity = ?, state = ?, resolved_at = ?, duration_seconds = ?,
	error_count = ?, affected_requests = ?, ack_by = ?, note = ?, updated_at = ?
WHERE id = ?`

	result, err := s.db.ExecContext(ctx, q,
		string(inc.Type), string(inc.Severity), string(inc.State),
		formatTimePtr(inc.ResolvedAt), inc.DurationSeconds,
		inc.ErrorCount, inc.AffectedRequests, inc.AckBy, inc.Note,
		formatTime(time.Now()), inc.ID,
	)
	if err != nil {
		return fmt.Errorf("updating incident %s: %w", inc.ID, err)
	}
	return requireRow(result, "incident", inc.ID)
}

func (s *incidentStore) List(ctx context.Context, filter store.IncidentFilter) ([]*store.Incident, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT ` + incidentColumns + ` FROM incidents`)

	var conditions []string
	var args []any

	if filter.Provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.Model != "" {
		conditions = append(conditions, "model = ?")
		args = append(args, filter.Model)
	}
	if filter.UnresolvedOnly {
		conditions = append(conditions, "state != ?")
		args = append(args, string(status.IncidentResolved))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, formatTime(filter.Since))
	}

	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	// Newest first; incident lists are an ops view.
	qb.WriteString(" ORDER BY started_at DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing incidents: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var incidents []*store.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating incidents: %w", err)
	}
	return incidents, nil
}

func (s *incidentStore) CountUnresolved(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(*) FROM incidents WHERE state != ?`

	var n int64
	if err := s.db.QueryRowContext(ctx, q, string(status.IncidentResolved)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting unresolved incidents: %w", err)
	}
	return n, nil
}

// Close is a no-op; the composite closes the shared connection.
func (s *incidentStore) Close() error { return nil }

// ---------- downtimeStore ----------

type downtimeStore struct {
	db *sql.DB
}

const downtimeColumns = `id, started_at, detected_at, ended_at, duration_seconds,
	status, logs_snapshot, metrics_snapshot, created_at, updated_at`

func scanDowntime(row rowScanner) (*store.DowntimeIncident, error) {
	var (
		d         store.DowntimeIncident
		dStatus   string
		startedAt string
		detected  string
		endedAt   string
		created   string
		updated   string
	)
	if err := row.Scan(
		&d.ID, &startedAt, &detected, &endedAt, &d.DurationSeconds,
		&dStatus, &d.LogsSnapshot, &d.MetricsSnapshot, &created, &updated,
	); err != nil {
		return nil, err
	}

	d.Status = status.DowntimeStatus(dStatus)

	var err error
	if d.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if d.DetectedAt, err = parseTime(detected); err != nil {
		return nil, err
	}
	if d.EndedAt, err = parseTimePtr(endedAt); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *downtimeStore) Open(ctx context.Context, d *store.DowntimeIncident) error {
	// The one-unresolved invariant spans a whole table, not a key, so it
	// cannot ride on an index. Check and insert inside one transaction.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx for downtime %s: %w", d.ID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var unresolved int64
	const check = `SELECT COUNT(*) FROM downtime_incidents WHERE status != ?`
	if err := tx.QueryRowContext(ctx, check, string(status.DowntimeResolved)).Scan(&unresolved); err != nil {
		return fmt.Errorf("checking ongoing downtime: %w", err)
	}
	if unresolved > 0 {
		return fmt.Errorf("downtime already ongoing: %w", store.ErrConflict)
	}

	const q = `INSERT INTO downtime_incidents (
	id, started_at, detected_at, ended_at, duration_seconds,
	status, logs_snapshot, metrics_snapshot, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, q,
		d.ID, formatTime(d.StartedAt), formatTime(d.DetectedAt), formatTimePtr(d.EndedAt),
		d.DurationSeconds, string(d.Status), d.LogsSnapshot, d.MetricsSnapshot,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("opening downtime %s: %w", d.ID, err)
	}

	return tx.Commit()
}

func (s *downtimeStore) Get(ctx context.Context, id string) (*store.DowntimeIncident, error) {
	q := `SELECT ` + downtimeColumns + ` FROM downtime_incidents WHERE id = ?`

	d, err := scanDowntime(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("downtime %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting downtime %s: %w", id, err)
	}
	return d, nil
}

func (s *downtimeStore) GetOngoing(ctx context.Context) (*store.DowntimeIncident, error) {
	q := `SELECT ` + downtimeColumns + ` FROM downtime_incidents
WHERE status != ? ORDER BY started_at DESC LIMIT 1`

	d, err := scanDowntime(s.db.QueryRowContext(ctx, q, string(status.DowntimeResolved)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ongoing downtime: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting ongoing downtime: %w", err)
	}
	return d, nil
}

func (s *downtimeStore) Update(ctx context.Context, d *store.DowntimeIncident) error {
	const q = `UPDATE downtime_incidents SET
	ended_at = ?, duration_seconds = ?, status = ?, logs_snapshot = ?, metrics_snapshot = ?, updated_at = ?
WHERE id = ?`

	result, err := s.db.ExecContext(ctx, q,
		formatTimePtr(d.EndedAt), d.DurationSeconds, string(d.Status),
		d.LogsSnapshot, d.MetricsSnapshot, formatTime(time.Now()), d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating downtime %s: %w", d.ID, err)
	}
	return requireRow(result, "downtime", d.ID)
}

func (s *downtimeStore) List(ctx context.Context, opts store.ListOpts) ([]*store.DowntimeIncident, error) {
	q := `SELECT ` + downtimeColumns + ` FROM downtime_incidents ORDER BY started_at DESC LIMIT ? OFFSET ?`

	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, q, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing downtime incidents: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var list []*store.DowntimeIncident
	for rows.Next() {
		d, err := scanDowntime(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning downtime: %w", err)
		}
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating downtime incidents: %w", err)
	}
	return list, nil
}

// Close is a no-op; the composite closes the shared connection.
func (s *downtimeStore) Close() error { return nil }
