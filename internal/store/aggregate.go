// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package store

import (
	"context"
	"time"
)

// AggregateStore manages hourly rollup rows. The store itself is dumb about
// open versus closed hours; the aggregator decides what may still be
// upserted.
type AggregateStore interface {
	Upsert(ctx context.Context, agg *HourlyAggregate) error
	Get(ctx context.Context, provider, model string, hour time.Time) (*HourlyAggregate, error)

	// ListRange returns a target's aggregates with hour in [from, to),
	// oldest first.
	ListRange(ctx context.Context, provider, model string, from, to time.Time) ([]*HourlyAggregate, error)

	// ProviderSummaries sums aggregates with hour in [from, to) per
	// provider. ComputedAt is left for the caller to stamp.
	ProviderSummaries(ctx context.Context, from, to time.Time) ([]*ProviderSummary, error)

	Close() error
}
