// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"context"
	"log/slog"

	"github.com/pharos-dev/pharos/internal/stats"
	"github.com/pharos-dev/pharos/internal/store"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
)

// Check cadence per tier, in seconds.
const (
	intervalCritical = 300
	intervalPopular  = 1800
	intervalStandard = 7200
	intervalOnDemand = 14400
)

// IntervalForTier returns a tier's check cadence in seconds. Unknown tiers
// get the on-demand cadence.
func IntervalForTier(t status.Tier) int {
	switch t {
	case status.TierCritical:
		return intervalCritical
	case status.TierPopular:
		return intervalPopular
	case status.TierStandard:
		return intervalStandard
	default:
		return intervalOnDemand
	}
}

// TierClassifier periodically re-buckets every enabled record by where its
// 24h usage sits in the fleet-wide distribution.
type TierClassifier struct {
	health store.HealthStore
}

// NewTierClassifier creates a classifier over the given health store.
func NewTierClassifier(health store.HealthStore) (*TierClassifier, error) {
	if health == nil {
		return nil, pharoserr.New(pharoserr.CodeConfigValidateInvalidValue,
			"tier classifier requires a health store")
	}
	return &TierClassifier{health: health}, nil
}

// Run reclassifies all enabled records and returns how many changed.
// Records already in their correct tier are not rewritten, which makes a
// second run over unchanged usage a no-op.
func (c *TierClassifier) Run(ctx context.Context) (int, error) {
	recs, err := listAllEnabled(ctx, c.health)
	if err != nil {
		return 0, pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"listing records for tier classification")
	}

	var active []int64
	for _, rec := range recs {
		if rec.UsageCount24h > 0 {
			active = append(active, rec.UsageCount24h)
		}
	}
	p95, ok95 := stats.PercentileInt(active, 95)
	p75, ok75 := stats.PercentileInt(active, 75)

	changed := 0
	for _, rec := range recs {
		want := classifyUsage(rec.UsageCount24h, p95, ok95, p75, ok75)
		interval := IntervalForTier(want)
		if rec.Tier == want && rec.CheckIntervalSeconds == interval {
			continue
		}

		if err := c.health.UpdateTier(ctx, rec.Provider, rec.Model, want, interval); err != nil {
			// One bad row must not stop the batch.
			slog.Warn("tier update failed",
				"provider", rec.Provider, "model", rec.Model, "error", err)
			continue
		}
		slog.Info("tier reclassified",
			"provider", rec.Provider, "model", rec.Model,
			"from", rec.Tier, "to", want, "interval_seconds", interval)
		changed++
	}
	return changed, nil
}

// classifyUsage buckets one 24h usage count against the distribution
// thresholds. An undefined percentile (empty active population) leaves only
// the zero-usage rule, so nothing classifies above on_demand.
func classifyUsage(usage, p95 int64, ok95 bool, p75 int64, ok75 bool) status.Tier {
	if usage <= 0 {
		return status.TierOnDemand
	}
	if !ok95 || !ok75 {
		return status.TierOnDemand
	}
	switch {
	case usage >= p95:
		return status.TierCritical
	case usage >= p75:
		return status.TierPopular
	default:
		return status.TierStandard
	}
}
