// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pharos-dev/pharos/internal/store"
	"github.com/pharos-dev/pharos/pkg/status"
)

// healthStore implements store.HealthStore on the shared monitor database.
type healthStore struct {
	db *sql.DB
}

// healthColumns is the scan order shared by every SELECT in this file.
const healthColumns = `provider, model, gateway, tier, check_interval_seconds,
	last_status, last_response_time_ms, last_called_at, last_success_at, last_failure_at,
	last_error_message, call_count, success_count, error_count, avg_response_time_ms,
	consecutive_failures, consecutive_successes, breaker_state,
	uptime_pct_24h, uptime_pct_7d, uptime_pct_30d,
	usage_count_24h, usage_count_7d, usage_count_30d,
	priority_score, next_check_at, enabled, claimed_until, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHealthRecord(row rowScanner) (*store.HealthRecord, error) {
	var (
		rec          store.HealthRecord
		tier         string
		lastStatus   string
		breakerState string
		lastCalled   string
		lastSuccess  string
		lastFailure  string
		nextCheck    string
		claimedUntil string
		created      string
		updated      string
	)
	if err := row.Scan(
		&rec.Provider, &rec.Model, &rec.Gateway, &tier, &rec.CheckIntervalSeconds,
		&lastStatus, &rec.LastResponseTimeMS, &lastCalled, &lastSuccess, &lastFailure,
		&rec.LastErrorMessage, &rec.CallCount, &rec.SuccessCount, &rec.ErrorCount,
		&rec.AverageResponseTimeMS, &rec.ConsecutiveFailures, &rec.ConsecutiveSuccesses,
		&breakerState, &rec.UptimePct24h, &rec.UptimePct7d, &rec.UptimePct30d,
		&rec.UsageCount24h, &rec.UsageCount7d, &rec.UsageCount30d,
		&rec.PriorityScore, &nextCheck, &rec.Enabled, &claimedUntil, &created, &updated,
	); err != nil {
		return nil, err
	}

	rec.Tier = status.Tier(tier)
	rec.LastStatus = status.ProbeStatus(lastStatus)
	rec.BreakerState = status.BreakerState(breakerState)

	var err error
	if rec.LastCalledAt, err = parseTimePtr(lastCalled); err != nil {
		return nil, err
	}
	if rec.LastSuccessAt, err = parseTimePtr(lastSuccess); err != nil {
		return nil, err
	}
	if rec.LastFailureAt, err = parseTimePtr(lastFailure); err != nil {
		return nil, err
	}
	if rec.NextCheckAt, err = parseTime(nextCheck); err != nil {
		return nil, err
	}
	if rec.ClaimedUntil, err = parseTime(claimedUntil); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *healthStore) Upsert(ctx context.Context, rec *store.HealthRecord) error {
	const q = `INSERT INTO health_records (
	provider, model, gateway, tier, check_interval_seconds,
	last_status, last_response_time_ms, last_called_at, last_success_at, last_failure_at,
	last_error_message, call_count, success_count, error_count, avg_response_time_ms,
	consecutive_failures, consecutive_successes, breaker_state,
	uptime_pct_24h, uptime_pct_7d, uptime_pct_30d,
	usage_count_24h, usage_count_7d, usage_count_30d,
	priority_score, next_check_at, enabled, claimed_until, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, model) DO UPDATE SET
	gateway    = excluded.gateway,
	enabled    = excluded.enabled,
	updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, q,
		rec.Provider, rec.Model, rec.Gateway, string(rec.Tier), rec.CheckIntervalSeconds,
		string(rec.LastStatus), rec.LastResponseTimeMS,
		formatTimePtr(rec.LastCalledAt), formatTimePtr(rec.LastSuccessAt), formatTimePtr(rec.LastFailureAt),
		rec.LastErrorMessage, rec.CallCount, rec.SuccessCount, rec.ErrorCount, rec.AverageResponseTimeMS,
		rec.ConsecutiveFailures, rec.ConsecutiveSuccesses, string(rec.BreakerState),
		rec.UptimePct24h, rec.UptimePct7d, rec.UptimePct30d,
		rec.UsageCount24h, rec.UsageCount7d, rec.UsageCount30d,
		rec.PriorityScore, formatTime(rec.NextCheckAt), rec.Enabled,
		formatTime(rec.ClaimedUntil), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting health record %s/%s: %w", rec.Provider, rec.Model, err)
	}
	return nil
}

func (s *healthStore) Get(ctx context.Context, provider, model string) (*store.HealthRecord, error) {
	q := `SELECT ` + healthColumns + ` FROM health_records WHERE provider = ? AND model = ?`

	rec, err := scanHealthRecord(s.db.QueryRowContext(ctx, q, provider, model))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("health record %s/%s: %w", provider, model, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting health record %s/%s: %w", provider, model, err)
	}
	return rec, nil
}

func (s *healthStore) List(ctx context.Context, filter store.HealthFilter) ([]*store.HealthRecord, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT ` + healthColumns + ` FROM health_records`)

	var conditions []string
	var args []any

	if filter.Provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.EnabledOnly {
		conditions = append(conditions, "enabled = 1")
	}

	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	qb.WriteString(" ORDER BY provider ASC, model ASC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing health records: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var records []*store.HealthRecord
	for rows.Next() {
		rec, err := scanHealthRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning health record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating health records: %w", err)
	}
	return records, nil
}

func (s *healthStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*store.HealthRecord, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT ` + healthColumns + ` FROM health_records
WHERE enabled = 1 AND next_check_at <= ?
ORDER BY priority_score DESC, next_check_at ASC`)

	args := []any{formatTime(now)}
	if limit > 0 {
		qb.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing due health records: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var records []*store.HealthRecord
	for rows.Next() {
		rec, err := scanHealthRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning due health record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating due health records: %w", err)
	}
	return records, nil
}

func (s *healthStore) Claim(ctx context.Context, provider, model string, now, until time.Time) (bool, error) {
	// Single-statement compare-and-set on the lease column. A live lease
	// (claimed_until in the future) makes the WHERE clause miss, so exactly
	// one instance wins per expiry window. The due gate catches the other
	// race: applying a result releases the lease and pushes next_check_at
	// forward, so an instance holding a stale due list must not reclaim a
	// target that was already checked this interval.
	const q = `UPDATE health_records SET claimed_until = ?
WHERE provider = ? AND model = ? AND claimed_until <= ? AND next_check_at <= ?`

	result, err := s.db.ExecContext(ctx, q, formatTime(until), provider, model,
		formatTime(now), formatTime(now))
	if err != nil {
		return false, fmt.Errorf("claiming health record %s/%s: %w", provider, model, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking claim rows for %s/%s: %w", provider, model, err)
	}
	return rows > 0, nil
}

func (s *healthStore) ApplyProbeResult(ctx context.Context, rec *store.HealthRecord) error {
	const q = `UPDATE health_records SET
	last_status = ?, last_response_time_ms = ?,
	last_called_at = ?, last_success_at = ?, last_failure_at = ?, last_error_message = ?,
	call_count = ?, success_count = ?, error_count = ?, avg_response_time_ms = ?,
	consecutive_failures = ?, consecutive_successes = ?, breaker_state = ?,
	priority_score = ?, next_check_at = ?, claimed_until = ?, updated_at = ?
WHERE provider = ? AND model = ?`

	result, err := s.db.ExecContext(ctx, q,
		string(rec.LastStatus), rec.LastResponseTimeMS,
		formatTimePtr(rec.LastCalledAt), formatTimePtr(rec.LastSuccessAt), formatTimePtr(rec.LastFailureAt),
		rec.LastErrorMessage,
		rec.CallCount, rec.SuccessCount, rec.ErrorCount, rec.AverageResponseTimeMS,
		rec.ConsecutiveFailures, rec.ConsecutiveSuccesses, string(rec.BreakerState),
		rec.PriorityScore, formatTime(rec.NextCheckAt), zeroTime, formatTime(time.Now()),
		rec.Provider, rec.Model,
	)
	if err != nil {
		return fmt.Errorf("applying probe result for %s/%s: %w", rec.Provider, rec.Model, err)
	}
	return requireRow(result, "health record", rec.Provider+"/"+rec.Model)
}

func (s *healthStore) UpdateTier(ctx context.Context, provider, model string, tier status.Tier, intervalSeconds int) error {
	const q = `UPDATE health_records SET tier = ?, check_interval_seconds = ?, updated_at = ?
WHERE provider = ? AND model = ?`

	result, err := s.db.ExecContext(ctx, q, string(tier), intervalSeconds, formatTime(time.Now()), provider, model)
	if err != nil {
		return fmt.Errorf("updating tier for %s/%s: %w", provider, model, err)
	}
	return requireRow(result, "health record", provider+"/"+model)
}

func (s *healthStore) UpdateUsage(ctx context.Context, provider, model string, usage store.UsageCounts) error {
	const q = `UPDATE health_records SET usage_count_24h = ?, usage_count_7d = ?, usage_count_30d = ?, updated_at = ?
WHERE provider = ? AND model = ?`

	result, err := s.db.ExecContext(ctx, q,
		usage.Count24h, usage.Count7d, usage.Count30d, formatTime(time.Now()), provider, model)
	if err != nil {
		return fmt.Errorf("updating usage for %s/%s: %w", provider, model, err)
	}
	return requireRow(result, "health record", provider+"/"+model)
}

func (s *healthStore) UpdateUptime(ctx context.Context, provider, model string, uptime store.UptimeWindows) error {
	const q = `UPDATE health_records SET uptime_pct_24h = ?, uptime_pct_7d = ?, uptime_pct_30d = ?, updated_at = ?
WHERE provider = ? AND model = ?`

	result, err := s.db.ExecContext(ctx, q,
		uptime.Pct24h, uptime.Pct7d, uptime.Pct30d, formatTime(time.Now()), provider, model)
	if err != nil {
		return fmt.Errorf("updating uptime for %s/%s: %w", provider, model, err)
	}
	return requireRow(result, "health record", provider+"/"+model)
}

func (s *healthStore) SetEnabled(ctx context.Context, provider, model string, enabled bool) error {
	const q = `UPDATE health_records SET enabled = ?, updated_at = ? WHERE provider = ? AND model = ?`

	result, err := s.db.ExecContext(ctx, q, enabled, formatTime(time.Now()), provider, model)
	if err != nil {
		return fmt.Errorf("setting enabled for %s/%s: %w", provider, model, err)
	}
	return requireRow(result, "health record", provider+"/"+model)
}

func (s *healthStore) SetNextCheckAt(ctx context.Context, provider, model string, at time.Time) error {
	const q = `UPDATE health_records SET next_check_at = ?, updated_at = ? WHERE provider = ? AND model = ?`

	result, err := s.db.ExecContext(ctx, q, formatTime(at), formatTime(time.Now()), provider, model)
	if err != nil {
		return fmt.Errorf("setting next check for %s/%s: %w", provider, model, err)
	}
	return requireRow(result, "health record", provider+"/"+model)
}

func (s *healthStore) Delete(ctx context.Context, provider, model string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM health_records WHERE provider = ? AND model = ?`, provider, model)
	if err != nil {
		return fmt.Errorf("deleting health record %s/%s: %w", provider, model, err)
	}
	return requireRow(result, "health record", provider+"/"+model)
}

// Close is a no-op; the composite closes the shared connection.
func (s *healthStore) Close() error { return nil }

// requireRow converts a zero-row write into ErrNotFound.
func requireRow(result sql.Result, kind, key string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows for %s %s: %w", kind, key, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, key, store.ErrNotFound)
	}
	return nil
}
