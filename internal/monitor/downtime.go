// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pharos-dev/pharos/internal/store"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
)

// DowntimeTracker manages platform-level downtime incidents fed by the
// external liveness probe. At most one is ongoing at a time; the store
// rejects a second open with a conflict.
type DowntimeTracker struct {
	downtime store.DowntimeStore
	nowFunc  func() time.Time
}

// NewDowntimeTracker creates a tracker over the given downtime store.
func NewDowntimeTracker(downtime store.DowntimeStore) (*DowntimeTracker, error) {
	if downtime == nil {
		return nil, pharoserr.New(pharoserr.CodeConfigValidateInvalidValue,
			"downtime tracker requires a downtime store")
	}
	return &DowntimeTracker{downtime: downtime, nowFunc: time.Now}, nil
}

// SetNowFunc overrides the time source (for testing).
func (d *DowntimeTracker) SetNowFunc(fn func() time.Time) { d.nowFunc = fn }

// Open records a new platform downtime. startedAt may predate detection;
// a zero startedAt means the outage was first seen now.
func (d *DowntimeTracker) Open(ctx context.Context, startedAt time.Time, logsSnapshot, metricsSnapshot string) (*store.DowntimeIncident, error) {
	now := d.nowFunc()
	if startedAt.IsZero() {
		startedAt = now
	}

	inc := &store.DowntimeIncident{
		ID:              uuid.New().String(),
		StartedAt:       startedAt,
		DetectedAt:      now,
		Status:          status.DowntimeOngoing,
		LogsSnapshot:    logsSnapshot,
		MetricsSnapshot: metricsSnapshot,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.downtime.Open(ctx, inc); err != nil {
		return nil, err
	}

	slog.Warn("platform downtime opened", "downtime_id", inc.ID, "started_at", startedAt)
	return inc, nil
}

// Resolve closes a downtime, stamping endedAt and the duration exactly
// once. Resolving an already-resolved downtime returns it unchanged.
func (d *DowntimeTracker) Resolve(ctx context.Context, id string) (*store.DowntimeIncident, error) {
	inc, err := d.downtime.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.Status == status.DowntimeResolved {
		return inc, nil
	}

	now := d.nowFunc()
	ended := now
	inc.EndedAt = &ended
	inc.DurationSeconds = int64(ended.Sub(inc.StartedAt).Seconds())
	inc.Status = status.DowntimeResolved
	inc.UpdatedAt = now

	if err := d.downtime.Update(ctx, inc); err != nil {
		return nil, pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"resolving downtime %s", id)
	}

	slog.Info("platform downtime resolved",
		"downtime_id", inc.ID, "duration_seconds", inc.DurationSeconds)
	return inc, nil
}

// Ongoing reports the current unresolved downtime, or nil when the
// platform is up.
func (d *DowntimeTracker) Ongoing(ctx context.Context) (*store.DowntimeIncident, error) {
	inc, err := d.downtime.GetOngoing(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// List returns past and current downtimes, newest first.
func (d *DowntimeTracker) List(ctx context.Context, opts store.ListOpts) ([]*store.DowntimeIncident, error) {
	return d.downtime.List(ctx, opts)
}
