// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pharos-dev/pharos/internal/store"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
)

// DefaultRetentionDays is how long probe events are kept before sweeps
// remove them.
const DefaultRetentionDays = 90

// HistoryRecorder appends one event per probe to the append-only log.
type HistoryRecorder struct {
	events store.EventStore
}

// NewHistoryRecorder creates a recorder over the given event store.
func NewHistoryRecorder(events store.EventStore) (*HistoryRecorder, error) {
	if events == nil {
		return nil, pharoserr.New(pharoserr.CodeConfigValidateInvalidValue,
			"history recorder requires an event store")
	}
	return &HistoryRecorder{events: events}, nil
}

// Record appends the outcome of one probe. The stored breaker state is the
// state after the result was applied, so openings and closings are visible
// in the log itself.
func (r *HistoryRecorder) Record(ctx context.Context, rec *store.HealthRecord, res ProbeResult, at time.Time) error {
	ev := &store.HealthCheckEvent{
		ID:             uuid.New().String(),
		Provider:       rec.Provider,
		Model:          rec.Model,
		Gateway:        rec.Gateway,
		CheckedAt:      at,
		Status:         res.Status,
		ResponseTimeMS: res.ResponseTimeMS,
		ErrorMessage:   res.ErrorMessage,
		HTTPStatusCode: res.HTTPStatusCode,
		BreakerState:   rec.BreakerState,
	}
	if err := r.events.Append(ctx, ev); err != nil {
		return pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"appending health check event for %s/%s", rec.Provider, rec.Model)
	}
	return nil
}

// Retention removes probe events past the retention window. Incidents and
// aggregates are never swept; events are leaves with no inbound references.
type Retention struct {
	events        store.EventStore
	retentionDays int
	nowFunc       func() time.Time
}

// NewRetention creates a sweeper. Non-positive retentionDays falls back to
// the default.
func NewRetention(events store.EventStore, retentionDays int) (*Retention, error) {
	if events == nil {
		return nil, pharoserr.New(pharoserr.CodeConfigValidateInvalidValue,
			"retention requires an event store")
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Retention{
		events:        events,
		retentionDays: retentionDays,
		nowFunc:       time.Now,
	}, nil
}

// SetNowFunc overrides the time source (for testing).
func (r *Retention) SetNowFunc(fn func() time.Time) { r.nowFunc = fn }

// RetentionDays returns the configured window.
func (r *Retention) RetentionDays() int { return r.retentionDays }

// Sweep deletes events older than the retention window and reports how
// many went away. An event exactly at the cutoff survives.
func (r *Retention) Sweep(ctx context.Context) (int64, error) {
	cutoff := r.nowFunc().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)
	deleted, err := r.events.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, pharoserr.Wrapf(err, pharoserr.CodeMonitorSweepFailure,
			"sweeping events older than %s", cutoff.UTC().Format(time.RFC3339))
	}
	if deleted > 0 {
		slog.Info("retention sweep completed", "deleted", deleted, "retention_days", r.retentionDays)
	}
	return deleted, nil
}
