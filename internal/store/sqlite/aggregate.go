// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pharos-dev/pharos/internal/store"
)

// aggregateStore implements store.AggregateStore on the shared monitor
// database.
type aggregateStore struct {
	db *sql.DB
}

const aggregateColumns = `provider, model, hour, total_requests, success_requests, failed_requests,
	total_tokens, total_cost_usd, avg_latency_ms, p50_latency_ms, p95_latency_ms, p99_latency_ms,
	error_rate, sample_count, created_at, updated_at`

func scanAggregate(row rowScanner) (*store.HourlyAggregate, error) {
	var (
		agg     store.HourlyAggregate
		hour    string
		created string
		updated string
	)
	if err := row.Scan(
		&agg.Provider, &agg.Model, &hour, &agg.TotalRequests, &agg.SuccessRequests, &agg.FailedRequests,
		&agg.TotalTokens, &agg.TotalCostUSD, &agg.AvgLatencyMS, &agg.P50LatencyMS, &agg.P95LatencyMS,
		&agg.P99LatencyMS, &agg.ErrorRate, &agg.SampleCount, &created, &updated,
	); err != nil {
		return nil, err
	}

	var err error
	if agg.Hour, err = parseTime(hour); err != nil {
		return nil, err
	}
	if agg.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if agg.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &agg, nil
}

func (s *aggregateStore) Upsert(ctx context.Context, agg *store.HourlyAggregate) error {
	const q = `INSERT INTO hourly_aggregates (
	provider, model, hour, total_requests, success_requests, failed_requests,
	total_tokens, total_cost_usd, avg_latency_ms, p50_latency_ms, p95_latency_ms, p99_latency_ms,
	error_rate, sample_count, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, model, hour) DO UPDATE SET
	total_requests   = excluded.total_requests,
	success_requests = excluded.success_requests,
	failed_requests  = excluded.failed_requests,
	total_tokens     = excluded.total_tokens,
	total_cost_usd   = excluded.total_cost_usd,
	avg_latency_ms   = excluded.avg_latency_ms,
	p50_latency_ms   = excluded.p50_latency_ms,
	p95_latency_ms   = excluded.p95_latency_ms,
	p99_latency_ms   = excluded.p99_latency_ms,
	error_rate       = excluded.error_rate,
	sample_count     = excluded.sample_count,
	updated_at       = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, q,
		agg.Provider, agg.Model, formatTime(agg.Hour),
		agg.TotalRequests, agg.SuccessRequests, agg.FailedRequests,
		agg.TotalTokens, agg.TotalCostUSD,
		agg.AvgLatencyMS, agg.P50LatencyMS, agg.P95LatencyMS, agg.P99LatencyMS,
		agg.ErrorRate, agg.SampleCount,
		formatTime(agg.CreatedAt), formatTime(agg.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting aggregate %s/%s@%s: %w", agg.Provider, agg.Model, agg.Hour, err)
	}
	return nil
}

func (s *aggregateStore) Get(ctx context.Context, provider, model string, hour time.Time) (*store.HourlyAggregate, error) {
	q := `SELECT ` + aggregateColumns + ` FROM hourly_aggregates
WHERE provider = ? AND model = ? AND hour = ?`

	agg, err := scanAggregate(s.db.QueryRowContext(ctx, q, provider, model, formatTime(hour)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("aggregate %s/%s@%s: %w", provider, model, hour, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting aggregate %s/%s@%s: %w", provider, model, hour, err)
	}
	return agg, nil
}

func (s *aggregateStore) ListRange(ctx context.Context, provider, model string, from, to time.Time) ([]*store.HourlyAggregate, error) {
	q := `SELECT ` + aggregateColumns + ` FROM hourly_aggregates
WHERE provider = ? AND model = ? AND hour >= ? AND hour < ?
ORDER BY hour ASC`

	rows, err := s.db.QueryContext(ctx, q, provider, model, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("listing aggregates for %s/%s: %w", provider, model, err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var aggs []*store.HourlyAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning aggregate: %w", err)
		}
		aggs = append(aggs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating aggregates: %w", err)
	}
	return aggs, nil
}

func (s *aggregateStore) ProviderSummaries(ctx context.Context, from, to time.Time) ([]*store.ProviderSummary, error) {
	// Sums happen in SQL; the latency average is weighted by request count
	// so providers with busy hours are not skewed by quiet ones.
	const q = `SELECT provider,
	COALESCE(SUM(total_requests), 0),
	COALESCE(SUM(success_requests), 0),
	COALESCE(SUM(failed_requests), 0),
	COALESCE(SUM(avg_latency_ms * total_requests), 0)
FROM hourly_aggregates
WHERE hour >= ? AND hour < ?
GROUP BY provider
ORDER BY provider ASC`

	rows, err := s.db.QueryContext(ctx, q, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("summarizing providers: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var sums []*store.ProviderSummary
	for rows.Next() {
		var (
			s           store.ProviderSummary
			weightedSum float64
		)
		if err := rows.Scan(&s.Provider, &s.Requests, &s.Successes, &s.Failures, &weightedSum); err != nil {
			return nil, fmt.Errorf("scanning provider summary: %w", err)
		}
		if s.Requests > 0 {
			s.AvgLatencyMS = weightedSum / float64(s.Requests)
			s.ErrorRate = float64(s.Failures) / float64(s.Requests)
		}
		sums = append(sums, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider summaries: %w", err)
	}
	return sums, nil
}

// Close is a no-op; the composite closes the shared connection.
func (s *aggregateStore) Close() error { return nil }
