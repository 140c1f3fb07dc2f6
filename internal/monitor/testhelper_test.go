// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pharos-dev/pharos/internal/store"
	"github.com/pharos-dev/pharos/internal/store/sqlite"
	"github.com/pharos-dev/pharos/pkg/status"
	"github.com/stretchr/testify/require"
)

// testBase is the fixed wall clock the monitor tests run against.
var testBase = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

// newTestStore opens a throwaway SQLite monitor store.
func newTestStore(t *testing.T) store.MonitorStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "pharos-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	ms, err := sqlite.NewMonitorStore(filepath.Join(dir, "monitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ms.Close() })
	return ms
}

// seedTarget registers a healthy enabled target due at testBase and returns
// the stored record. Mutators adjust the record before it is written.
func seedTarget(t *testing.T, ms store.MonitorStore, provider, model string, mutate ...func(*store.HealthRecord)) *store.HealthRecord {
	t.Helper()
	ctx := context.Background()

	rec := &store.HealthRecord{
		Provider:             provider,
		Model:                model,
		Gateway:              "openrouter",
		Tier:                 status.TierOnDemand,
		CheckIntervalSeconds: 14400,
		BreakerState:         status.BreakerClosed,
		UptimePct24h:         100,
		UptimePct7d:          100,
		UptimePct30d:         100,
		NextCheckAt:          testBase,
		Enabled:              true,
		CreatedAt:            testBase,
		UpdatedAt:            testBase,
	}
	for _, m := range mutate {
		m(rec)
	}
	require.NoError(t, ms.Health().Upsert(ctx, rec))

	got, err := ms.Health().Get(ctx, provider, model)
	require.NoError(t, err)
	return got
}

// seedEvent appends one probe event for a target.
func seedEvent(t *testing.T, ms store.MonitorStore, provider, model string, at time.Time, st status.ProbeStatus, latencyMS int64) {
	t.Helper()
	require.NoError(t, ms.Events().Append(context.Background(), &store.HealthCheckEvent{
		ID:             provider + "/" + model + "/" + at.Format(time.RFC3339Nano),
		Provider:       provider,
		Model:          model,
		Gateway:        "openrouter",
		CheckedAt:      at,
		Status:         st,
		ResponseTimeMS: latencyMS,
		BreakerState:   status.BreakerClosed,
	}))
}
