// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pharos-dev/pharos/internal/store"
)

// UsageSample is one usage-feed entry for a target.
type UsageSample struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Count24h int64  `json:"count_24h"`
	Count7d  int64  `json:"count_7d"`
	Count30d int64  `json:"count_30d"`
}

// applyUsage writes a usage-feed batch, last write wins per target.
// Samples for unknown targets are skipped, not fatal: the feed covers the
// whole gateway catalog and monitoring may track a subset.
func applyUsage(ctx context.Context, health store.HealthStore, samples []UsageSample) (int, error) {
	applied := 0
	for _, s := range samples {
		err := health.UpdateUsage(ctx, s.Provider, s.Model, store.UsageCounts{
			Count24h: s.Count24h,
			Count7d:  s.Count7d,
			Count30d: s.Count30d,
		})
		if errors.Is(err, store.ErrNotFound) {
			slog.Debug("usage sample for unmonitored target skipped",
				"provider", s.Provider, "model", s.Model)
			continue
		}
		if err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
