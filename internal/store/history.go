// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package store

import (
	"context"
	"time"
)

// EventStore manages the append-only health check log.
type EventStore interface {
	Append(ctx context.Context, ev *HealthCheckEvent) error

	// ListByTarget returns a target's events in [from, to), oldest first.
	ListByTarget(ctx context.Context, provider, model string, from, to time.Time, opts ListOpts) ([]*HealthCheckEvent, error)

	// ListBetween returns all events in [from, to), oldest first. The
	// aggregator uses this to roll one hour at a time.
	ListBetween(ctx context.Context, from, to time.Time) ([]*HealthCheckEvent, error)

	// UptimeSince counts a target's ok and total probes since the cutoff.
	UptimeSince(ctx context.Context, provider, model string, since time.Time) (ok int64, total int64, err error)

	// DeleteOlderThan removes events with checkedAt strictly before the
	// cutoff and reports how many rows went away.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	Count(ctx context.Context) (int64, error)
	Close() error
}
