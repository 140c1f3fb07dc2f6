// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/pharos-dev/pharos/internal/monitor"
	"github.com/pharos-dev/pharos/internal/store"
	"github.com/pharos-dev/pharos/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAggregator(t *testing.T, ms store.MonitorStore, now *time.Time) *monitor.Aggregator {
	t.Helper()
	agg, err := monitor.NewAggregator(monitor.AggregatorConfig{
		Aggregates: ms.Aggregates(),
		Events:     ms.Events(),
		Health:     ms.Health(),
	})
	require.NoError(t, err)
	agg.SetNowFunc(func() time.Time { return *now })
	return agg
}

func requestMetric(at time.Time, success bool, latencyMS float64, tokens int64, costUSD float64) monitor.RequestMetric {
	return monitor.RequestMetric{
		Provider:  "openai",
		Model:     "gpt-4o",
		Timestamp: at,
		Success:   success,
		LatencyMS: latencyMS,
		Tokens:    tokens,
		CostUSD:   costUSD,
	}
}

func TestAggregator_Ingest_DropsClosedHours(t *testing.T) {
	ms := newTestStore(t)

	// 09:10: the 09:00 hour is open, 08:00 left its grace at 09:05.
	now := testBase.Add(10 * time.Minute)
	agg := newAggregator(t, ms, &now)

	accepted := agg.Ingest([]monitor.RequestMetric{
		requestMetric(testBase.Add(5*time.Minute), true, 400, 100, 0.01),
		requestMetric(testBase.Add(9*time.Minute), true, 500, 120, 0.01),
		requestMetric(testBase.Add(-30*time.Minute), true, 300, 80, 0.01),
		requestMetric(testBase.Add(-2*time.Hour), false, 0, 0, 0),
	})
	assert.Equal(t, 2, accepted)
}

func TestAggregator_Ingest_AcceptsPreviousHourInGrace(t *testing.T) {
	ms := newTestStore(t)

	// 09:03: the 08:00 hour is still inside its 5 minute grace.
	now := testBase.Add(3 * time.Minute)
	agg := newAggregator(t, ms, &now)

	accepted := agg.Ingest([]monitor.RequestMetric{
		requestMetric(testBase.Add(-20*time.Minute), true, 420, 90, 0.02),
	})
	assert.Equal(t, 1, accepted)
}

func TestAggregator_Rollup_MergesProbesAndRequests(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)

	now := testBase.Add(30 * time.Minute)
	agg := newAggregator(t, ms, &now)

	// Probe history for two targets inside the 09:00 hour.
	seedEvent(t, ms, "openai", "gpt-4o", testBase.Add(5*time.Minute), status.ProbeOK, 100)
	seedEvent(t, ms, "openai", "gpt-4o", testBase.Add(10*time.Minute), status.ProbeOK, 200)
	seedEvent(t, ms, "openai", "gpt-4o", testBase.Add(15*time.Minute), status.ProbeTimeout, 300)
	seedEvent(t, ms, "openai", "gpt-4o-mini", testBase.Add(6*time.Minute), status.ProbeOK, 150)
	seedEvent(t, ms, "openai", "gpt-4o-mini", testBase.Add(12*time.Minute), status.ProbeOK, 250)

	// Real traffic arrived for gpt-4o only.
	accepted := agg.Ingest([]monitor.RequestMetric{
		requestMetric(testBase.Add(7*time.Minute), true, 350, 200, 0.02),
		requestMetric(testBase.Add(12*time.Minute), true, 450, 300, 0.03),
		requestMetric(testBase.Add(18*time.Minute), true, 400, 250, 0.02),
		requestMetric(testBase.Add(22*time.Minute), false, 900, 250, 0.03),
	})
	require.Equal(t, 4, accepted)

	written, err := agg.Rollup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	// gpt-4o: request metrics own the counts, probe events own the
	// percentiles.
	row, err := ms.Aggregates().Get(ctx, "openai", "gpt-4o", testBase)
	require.NoError(t, err)
	assert.Equal(t, int64(4), row.TotalRequests)
	assert.Equal(t, int64(3), row.SuccessRequests)
	assert.Equal(t, int64(1), row.FailedRequests)
	assert.Equal(t, int64(1000), row.TotalTokens)
	assert.InDelta(t, 0.10, row.TotalCostUSD, 1e-9)
	assert.InDelta(t, 0.25, row.ErrorRate, 1e-9)
	assert.InDelta(t, (350+450+400+900)/4.0, row.AvgLatencyMS, 1e-9)
	assert.Equal(t, float64(200), row.P50LatencyMS)
	assert.Equal(t, float64(300), row.P95LatencyMS)
	assert.Equal(t, float64(300), row.P99LatencyMS)
	assert.Equal(t, int64(3), row.SampleCount)

	// gpt-4o-mini: no traffic, so probe counts stand in.
	row, err = ms.Aggregates().Get(ctx, "openai", "gpt-4o-mini", testBase)
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.TotalRequests)
	assert.Equal(t, int64(2), row.SuccessRequests)
	assert.Zero(t, row.FailedRequests)
	assert.Zero(t, row.ErrorRate)
	assert.Equal(t, float64(150), row.P50LatencyMS)
	assert.Equal(t, float64(200), row.AvgLatencyMS)
}

func TestAggregator_Rollup_Idempotent(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)

	now := testBase.Add(30 * time.Minute)
	agg := newAggregator(t, ms, &now)

	seedEvent(t, ms, "openai", "gpt-4o", testBase.Add(5*time.Minute), status.ProbeOK, 100)
	agg.Ingest([]monitor.RequestMetric{
		requestMetric(testBase.Add(7*time.Minute), true, 350, 200, 0.02),
	})

	_, err := agg.Rollup(ctx)
	require.NoError(t, err)
	first, err := ms.Aggregates().Get(ctx, "openai", "gpt-4o", testBase)
	require.NoError(t, err)

	// A second pass over the same inputs recomputes the identical row;
	// buckets are cumulative, not drained.
	_, err = agg.Rollup(ctx)
	require.NoError(t, err)
	second, err := ms.Aggregates().Get(ctx, "openai", "gpt-4o", testBase)
	require.NoError(t, err)

	assert.Equal(t, first.TotalRequests, second.TotalRequests)
	assert.Equal(t, first.TotalTokens, second.TotalTokens)
	assert.Equal(t, first.TotalCostUSD, second.TotalCostUSD)
	assert.Equal(t, first.AvgLatencyMS, second.AvgLatencyMS)
	assert.Equal(t, first.SampleCount, second.SampleCount)
}

func TestAggregator_Rollup_ClosedHourStaysImmutable(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)

	now := testBase.Add(30 * time.Minute)
	agg := newAggregator(t, ms, &now)

	agg.Ingest([]monitor.RequestMetric{
		requestMetric(testBase.Add(10*time.Minute), true, 400, 100, 0.01),
		requestMetric(testBase.Add(20*time.Minute), true, 500, 100, 0.01),
	})
	_, err := agg.Rollup(ctx)
	require.NoError(t, err)

	row, err := ms.Aggregates().Get(ctx, "openai", "gpt-4o", testBase)
	require.NoError(t, err)
	require.Equal(t, int64(2), row.TotalRequests)

	// Jump past the grace: 10:06 is after 10:05, so the 09:00 hour is
	// sealed. Late metrics are dropped and further rollups skip the hour.
	now = testBase.Add(time.Hour + 6*time.Minute)

	accepted := agg.Ingest([]monitor.RequestMetric{
		requestMetric(testBase.Add(50*time.Minute), true, 9999, 9999, 9.99),
	})
	assert.Zero(t, accepted)

	_, err = agg.Rollup(ctx)
	require.NoError(t, err)

	row, err = ms.Aggregates().Get(ctx, "openai", "gpt-4o", testBase)
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.TotalRequests)
	assert.Equal(t, int64(200), row.TotalTokens)
}

func TestAggregator_Rollup_FlushesInGraceMetricsBeforePrune(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)

	now := testBase.Add(30 * time.Minute)
	agg := newAggregator(t, ms, &now)

	agg.Ingest([]monitor.RequestMetric{
		requestMetric(testBase.Add(10*time.Minute), true, 400, 100, 0.01),
	})
	_, err := agg.Rollup(ctx)
	require.NoError(t, err)

	// 10:02: the 09:00 hour is inside its grace, so this metric is
	// accepted after the last rollup pass that covered the hour.
	now = testBase.Add(time.Hour + 2*time.Minute)
	accepted := agg.Ingest([]monitor.RequestMetric{
		requestMetric(testBase.Add(50*time.Minute), true, 600, 150, 0.02),
	})
	require.Equal(t, 1, accepted)

	// 10:06: the hour has closed. The rollup must still flush the
	// buffered delta before the bucket is pruned; accepted data is never
	// silently dropped.
	now = testBase.Add(time.Hour + 6*time.Minute)
	_, err = agg.Rollup(ctx)
	require.NoError(t, err)

	row, err := ms.Aggregates().Get(ctx, "openai", "gpt-4o", testBase)
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.TotalRequests)
	assert.Equal(t, int64(250), row.TotalTokens)
	assert.InDelta(t, 0.03, row.TotalCostUSD, 1e-9)
	assert.InDelta(t, 500, row.AvgLatencyMS, 1e-9)

	// The bucket is gone now: later rollups leave the sealed row alone.
	_, err = agg.Rollup(ctx)
	require.NoError(t, err)
	row, err = ms.Aggregates().Get(ctx, "openai", "gpt-4o", testBase)
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.TotalRequests)
}

func TestAggregator_Rollup_EmptyHourWritesNothing(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)

	now := testBase.Add(30 * time.Minute)
	agg := newAggregator(t, ms, &now)

	written, err := agg.Rollup(ctx)
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestAggregator_RefreshSummaries(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)

	now := testBase
	agg := newAggregator(t, ms, &now)

	upsert := func(provider, model string, hour time.Time, total, failed int64, avg float64) {
		t.Helper()
		require.NoError(t, ms.Aggregates().Upsert(ctx, &store.HourlyAggregate{
			Provider: provider, Model: model, Hour: hour,
			TotalRequests: total, SuccessRequests: total - failed, FailedRequests: failed,
			AvgLatencyMS: avg,
			ErrorRate:    float64(failed) / float64(total),
			CreatedAt:    hour, UpdatedAt: hour,
		}))
	}

	upsert("openai", "gpt-4o", testBase.Add(-2*time.Hour), 100, 10, 500)
	upsert("anthropic", "claude-sonnet", testBase.Add(-3*time.Hour), 50, 0, 200)
	// Outside the 24h window: must not leak into the cache.
	upsert("openai", "gpt-4o", testBase.Add(-30*time.Hour), 999, 999, 9999)

	require.NoError(t, agg.RefreshSummaries(ctx))

	sums := agg.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, "anthropic", sums[0].Provider)
	assert.Equal(t, "openai", sums[1].Provider)

	openai, ok := agg.ProviderSummary("openai")
	require.True(t, ok)
	assert.Equal(t, int64(100), openai.Requests)
	assert.Equal(t, int64(10), openai.Failures)
	assert.InDelta(t, 0.1, openai.ErrorRate, 1e-9)
	assert.True(t, openai.ComputedAt.Equal(now))

	_, ok = agg.ProviderSummary("mistral")
	assert.False(t, ok)
}

func TestAggregator_RefreshUptime(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)

	now := testBase
	agg := newAggregator(t, ms, &now)

	seedTarget(t, ms, "openai", "gpt-4o")

	// Last 24h: three OK, one timeout. Older failures widen the gap
	// between the windows.
	seedEvent(t, ms, "openai", "gpt-4o", testBase.Add(-1*time.Hour), status.ProbeOK, 400)
	seedEvent(t, ms, "openai", "gpt-4o", testBase.Add(-2*time.Hour), status.ProbeOK, 410)
	seedEvent(t, ms, "openai", "gpt-4o", testBase.Add(-3*time.Hour), status.ProbeOK, 390)
	seedEvent(t, ms, "openai", "gpt-4o", testBase.Add(-4*time.Hour), status.ProbeTimeout, 10000)
	seedEvent(t, ms, "openai", "gpt-4o", testBase.Add(-30*time.Hour), status.ProbeError, 0)
	seedEvent(t, ms, "openai", "gpt-4o", testBase.Add(-10*24*time.Hour), status.ProbeError, 0)

	updated, err := agg.RefreshUptime(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	rec, err := ms.Health().Get(ctx, "openai", "gpt-4o")
	require.NoError(t, err)
	assert.InDelta(t, 75, rec.UptimePct24h, 1e-9)
	assert.InDelta(t, 60, rec.UptimePct7d, 1e-9)
	assert.InDelta(t, 50, rec.UptimePct30d, 1e-9)
}

func TestAggregator_RefreshUptime_NoEventsKeepsPerfectScore(t *testing.T) {
	ctx := context.Background()
	ms := newTestStore(t)

	now := testBase
	agg := newAggregator(t, ms, &now)

	seedTarget(t, ms, "openai", "gpt-4o")

	updated, err := agg.RefreshUptime(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	// No probes means no evidence of downtime; the windows stay at 100
	// so the priority scorer does not punish brand-new targets.
	rec, err := ms.Health().Get(ctx, "openai", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, float64(100), rec.UptimePct24h)
	assert.Equal(t, float64(100), rec.UptimePct7d)
	assert.Equal(t, float64(100), rec.UptimePct30d)
}
