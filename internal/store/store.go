// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package store

import (
	"context"
	"time"

	"github.com/pharos-dev/pharos/pkg/status"
)

// MonitorStore groups the five persistence concerns of the monitor.
type MonitorStore interface {
	Health() HealthStore
	Incidents() IncidentStore
	Events() EventStore
	Aggregates() AggregateStore
	Downtime() DowntimeStore
	Close() error
}

// HealthStore manages per-target health records. Every mutation is atomic
// per record; writers touching disjoint column sets (probe results, tier,
// usage, uptime) never clobber each other.
type HealthStore interface {
	// Upsert registers a target or replaces its registration fields
	// (gateway, enabled). Counters of an existing record are preserved.
	Upsert(ctx context.Context, rec *HealthRecord) error
	Get(ctx context.Context, provider, model string) (*HealthRecord, error)
	List(ctx context.Context, filter HealthFilter) ([]*HealthRecord, error)

	// ListDue returns enabled records with nextCheckAt <= now, most urgent
	// first by last persisted priority score.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*HealthRecord, error)

	// Claim atomically takes the scheduling lease on a record until the
	// given deadline. It returns false when another instance holds a live
	// lease or the record is no longer due (someone already checked it
	// this interval); the caller must skip the record this tick.
	Claim(ctx context.Context, provider, model string, now, until time.Time) (bool, error)

	// ApplyProbeResult writes the probe-owned columns of rec (streaks,
	// breaker state, last* fields, counters, running average, next check,
	// priority score) and releases the lease.
	ApplyProbeResult(ctx context.Context, rec *HealthRecord) error

	// UpdateTier writes the classifier-owned columns only.
	UpdateTier(ctx context.Context, provider, model string, tier status.Tier, intervalSeconds int) error

	UpdateUsage(ctx context.Context, provider, model string, usage UsageCounts) error
	UpdateUptime(ctx context.Context, provider, model string, uptime UptimeWindows) error
	SetEnabled(ctx context.Context, provider, model string, enabled bool) error

	// SetNextCheckAt forces the next check time, used by the immediate
	// re-check path to pull a target forward in the queue.
	SetNextCheckAt(ctx context.Context, provider, model string, at time.Time) error

	Delete(ctx context.Context, provider, model string) error
	Close() error
}
