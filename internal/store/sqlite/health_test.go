// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pharos-dev/pharos/internal/store"
	"github.com/pharos-dev/pharos/internal/store/sqlite"
	"github.com/pharos-dev/pharos/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBase = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

// newHealthRecord builds a registration-shaped record the way the monitor
// registers targets: defaults everywhere, due immediately.
func newHealthRecord(provider, model string) *store.HealthRecord {
	return &store.HealthRecord{
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
}

func TestHealthStore_Upsert_and_Get(t *testing.T) {
	ctx := context.Background()
	ms, err := sqlite.NewMonitorStore(testDBPath(t, "health-upsert"))
	require.NoError(t, err)
	defer func() { _ = ms.Close() }()

	lastCalled := testBase.Add(-5 * time.Minute)
	rec := newHealthRecord("openai", "gpt-4o")
	rec.Tier = status.TierCritical
	rec.CheckIntervalSeconds = 300
	rec.LastStatus = status.ProbeOK
	rec.LastResponseTimeMS = 812
	rec.LastCalledAt = &lastCalled
	rec.LastSuccessAt = &lastCalled
	rec.CallCount = 42
	rec.SuccessCount = 40
	rec.ErrorCount = 2
	rec.AverageResponseTimeMS = 650.5
	rec.ConsecutiveSuccesses = 7
	rec.UptimePct24h = 99.2
	rec.UsageCount24h = 1200
	rec.PriorityScore = 1071.0

	require.NoError(t, ms.Health().Upsert(ctx, rec))

	got, err := ms.Health().Get(ctx, "openai", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai", got.Provider)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, "openrouter", got.Gateway)
	assert.Equal(t, status.TierCritical, got.Tier)
	assert.Equal(t, 300, got.CheckIntervalSeconds)
	assert.Equal(t, status.ProbeOK, got.LastStatus)
	assert.Equal(t, int64(812), got.LastResponseTimeMS)
	require.NotNil(t, got.LastCalledAt)
	assert.True(t, got.LastCalledAt.Equal(lastCalled))
	require.NotNil(t, got.LastSuccessAt)
	assert.Nil(t, got.LastFailureAt)
	assert.Equal(t, int64(42), got.CallCount)
	assert.Equal(t, int64(40), got.SuccessCount)
	assert.Equal(t, int64(2), got.ErrorCount)
	assert.InDelta(t, 650.5, got.AverageResponseTimeMS, 0.001)
	assert.Equal(t, 7, got.ConsecutiveSuccesses)
	assert.Equal(t, status.BreakerClosed, got.BreakerState)
	assert.InDelta(t, 99.2, got.UptimePct24h, 0.001)
	assert.Equal(t, int64(1200), got.UsageCount24h)
	assert.InDelta(t, 1071.0, got.PriorityScore, 0.001)
	assert.True(t, got.NextCheckAt.Equal(testBase))
	assert.True(t, got.Enabled)
	assert.True(t, got.ClaimedUntil.IsZero(), "fresh record must be unclaimed")
}

func TestHealthStore_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	ms, err := sqlite.NewMonitorStore(testDBPath(t, "health-notfound"))
	require.NoError(t, err)
	defer func() { _ = ms.Close() }()

	_, err = ms.Health().Get(ctx, "openai", "nonexistent")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestHealthStore_Upsert_PreservesCounters(t *testing.T) {
	ctx := context.Background()
	ms, err := sqlite.NewMonitorStore(testDBPath(t, "health-reregister"))
	require.NoError(t, err)
	defer func() { _ = ms.Close() }()

	rec := newHealthRecord("anthropic", "claude-sonnet")
	require.NoError(t, ms.Health().Upsert(ctx, rec))

	// Simulate accumulated probe history.
	probed := *rec
	probed.LastStatus = status.ProbeOK
	probed.CallCount = 10
	probed.SuccessCount = 9
	probed.ErrorCount = 1
	probed.ConsecutiveSuccesses = 3
	probed.NextCheckAt = testBase.Add(30 * time.Minute)
	require.NoError(t, ms.Health().ApplyProbeResult(ctx, &probed))
	require.NoError(t, ms.Health().UpdateTier(ctx, "anthropic", "claude-sonnet", status.TierPopular, 1800))

	// Re-registration replaces routing fields only.
	again := newHealthRecord("anthropic", "claude-sonnet")
	again.Gateway = "portkey"
	again.Enabled = false
	require.NoError(t, ms.Health().Upsert(ctx, again))

	got, err := ms.Health().Get(ctx, "anthropic", "claude-sonnet")
	require.NoError(t, err)
	assert.Equal(t, "portkey", got.Gateway)
	assert.False(t, got.Enabled)
	assert.Equal(t, int64(10), got.CallCount, "counters survive re-registration")
	assert.Equal(t, int64(9), got.SuccessCount)
	assert.Equal(t, 3, got.ConsecutiveSuccesses)
	assert.Equal(t, status.TierPopular, got.Tier, "classifier state survives re-registration")
	assert.Equal(t, 1800, got.CheckIntervalSeconds)
	assert.True(t, got.NextCheckAt.Equal(testBase.Add(30*time.Minute)), "schedule survives re-registration")
}

func TestHealthStore_List(t *testing.T) {
	ctx := context.Background()
	ms, err := sqlite.NewMonitorStore(testDBPath(t, "health-list"))
	require.NoError(t, err)
	defer func() { _ = ms.Close() }()

	for _, target := range []struct {
		provider, model string
		enabled         bool
	}{
		{"openai", "gpt-4o", true},
		{"openai", "gpt-4o-mini", false},
		{"anthropic", "claude-sonnet", true},
		{"anthropic", "claude-haiku", true},
	} {
		rec := newHealthRecord(target.provider, target.model)
		rec.Enabled = target.enabled
		require.NoError(t, ms.Health().Upsert(ctx, rec))
	}

	all, err := ms.Health().List(ctx, store.HealthFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	// Ordered by (provider, model).
	assert.Equal(t, "anthropic", all[0].Provider)
	assert.Equal(t, "claude-haiku", all[0].Model)

	openai, err := ms.Health().List(ctx, store.HealthFilter{Provider: "openai"})
	require.NoError(t, err)
	assert.Len(t, openai, 2)

	enabled, err := ms.Health().List(ctx, store.HealthFilter{EnabledOnly: true})
	require.NoError(t, err)
	assert.Len(t, enabled, 3)

	paged, err := ms.Health().List(ctx, store.HealthFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 2)
}

func TestHealthStore_ListDue(t *testing.T) {
	ctx := context.Background()
	ms, err := sqlite.NewMonitorStore(testDBPath(t, "health-due"))
	require.NoError(t, err)
	defer func() { _ = ms.Close() }()

	now := testBase

	due := newHealthRecord("openai", "gpt-4o")
	due.NextCheckAt = now.Add(-10 * time.Second)
	due.PriorityScore = 1000
	require.NoError(t, ms.Health().Upsert(ctx, due))

	urgent := newHealthRecord("openai", "gpt-4o-mini")
	urgent.NextCheckAt = now.Add(-5 * time.Minute)
	urgent.PriorityScore = 1400
	require.NoError(t, ms.Health().Upsert(ctx, urgent))

	notYet := newHealthRecord("anthropic", "claude-sonnet")
	notYet.NextCheckAt = now.Add(time.Hour)
	require.NoError(t, ms.Health().Upsert(ctx, notYet))

	disabled := newHealthRecord("anthropic", "claude-haiku")
	disabled.NextCheckAt = now.Add(-time.Hour)
	disabled.Enabled = false
	require.NoError(t, ms.Health().Upsert(ctx, disabled))

	got, err := ms.Health().ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 2, "only enabled, due records")
	assert.Equal(t, "gpt-4o-mini", got[0].Model, "highest stored priority first")
	assert.Equal(t, "gpt-4o", got[1].Model)

	limited, err := ms.Health().ListDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "gpt-4o-mini", limited[0].Model)

	// A record due exactly at now is due.
	exact := newHealthRecord("google", "gemini-pro")
	exact.NextCheckAt = now
	require.NoError(t, ms.Health().Upsert(ctx, exact))

	got, err = ms.Health().ListDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestHealthStore_Claim(t *testing.T) {
	ctx := context.Background()
	ms, err := sqlite.NewMonitorStore(testDBPath(t, "health-claim"))
	require.NoError(t, err)
	defer func() { _ = ms.Close() }()

	require.NoError(t, ms.Health().Upsert(ctx, newHealthRecord("openai", "gpt-4o")))

	now := testBase
	until := now.Add(30 * time.Second)

	won, err := ms.Health().Claim(ctx, "openai", "gpt-4o", now, until)
	require.NoError(t, err)
	assert.True(t, won, "first claim wins")

	// A second instance inside the lease window loses.
	won, err = ms.Health().Claim(ctx, "openai", "gpt-4o", now.Add(10*time.Second), now.Add(40*time.Second))
	require.NoError(t, err)
	assert.False(t, won)

	// After the lease expires the record is up for grabs again.
	won, err = ms.Health().Claim(ctx, "openai", "gpt-4o", until.Add(time.Second), until.Add(31*time.Second))
	require.NoError(t, err)
	assert.True(t, won, "expired lease is reclaimable")

	// Claiming a record that does not exist is a quiet loss, not an error;
	// the record may have been deleted between selection and claim.
	won, err = ms.Health().Claim(ctx, "openai", "nonexistent", now, until)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestHealthStore_Claim_NotDue(t *testing.T) {
	ctx := context.Background()
	ms, err := sqlite.NewMonitorStore(testDBPath(t, "health-claim-notdue"))
	require.NoError(t, err)
	defer func() { _ = ms.Close() }()

	rec := newHealthRecord("openai", "gpt-4o")
	rec.NextCheckAt = testBase.Add(2 * time.Hour)
	require.NoError(t, ms.Health().Upsert(ctx, rec))

	// Unleased but not due: the claim must miss.
	won, err := ms.Health().Claim(ctx, "openai", "gpt-4o", testBase, testBase.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, won, "a target that is not due must not be claimable")

	// SetNextCheckAt pulls the target forward for a forced check.
	require.NoError(t, ms.Health().SetNextCheckAt(ctx, "openai", "gpt-4o", testBase))
	won, err = ms.Health().Claim(ctx, "openai", "gpt-4o", testBase, testBase.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, won)
}

func TestHealthStore_ApplyProbeResult(t *testing.T) {
	ctx := context.Background()
	ms, err := sqlite.NewMonitorStore(testDBPath(t, "health-apply"))
	require.NoError(t, err)
	defer func() { _ = ms.Close() }()

	rec := newHealthRecord("openai", "gpt-4o")
	require.NoError(t, ms.Health().Upsert(ctx, rec))

	now := testBase
	won, err := ms.Health().Claim(ctx, "openai", "gpt-4o", now, now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, won)

	checked := now.Add(2 * time.Second)
	result := *rec
	result.LastStatus = status.ProbeTimeout
	result.LastResponseTimeMS = 10000
	result.LastCalledAt = &checked
	result.LastFailureAt = &checked
	result.LastErrorMessage = "context deadline exceeded"
	result.CallCount = 1
	result.ErrorCount = 1
	result.ConsecutiveFailures = 1
	result.PriorityScore = 1100
	result.NextCheckAt = now.Add(4 * time.Hour)
	require.NoError(t, ms.Health().ApplyProbeResult(ctx, &result))

	got, err := ms.Health().Get(ctx, "openai", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, status.ProbeTimeout, got.LastStatus)
	assert.Equal(t, "context deadline exceeded", got.LastErrorMessage)
	assert.Equal(t, 1, got.ConsecutiveFailures)
	assert.Equal(t, 0, got.ConsecutiveSuccesses)
	require.NotNil(t, got.LastFailureAt)
	assert.Nil(t, got.LastSuccessAt)
	assert.True(t, got.NextCheckAt.Equal(now.Add(4*time.Hour)))
	assert.True(t, got.ClaimedUntil.IsZero(), "apply releases the lease")

	// The lease is free but the record is no longer due, so an instance
	// still working off a due list from before the apply must lose the
	// claim instead of re-probing the target this interval.
	won, err = ms.Health().Claim(ctx, "openai", "gpt-4o", now.Add(3*time.Second), now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, won, "stale-list claim must lose once the target was checked")

	// Once the restamped next check comes due the record is claimable again.
	won, err = ms.Health().Claim(ctx, "openai", "gpt-4o", now.Add(4*time.Hour), now.Add(4*time.Hour+time.Minute))
	require.NoError(t, err)
	assert.True(t, won)

	err = ms.Health().ApplyProbeResult(ctx, newHealthRecord("openai", "nonexistent"))
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestHealthStore_NarrowUpdates_AreDisjoint(t *testing.T) {
	ctx := context.Background()
	ms, err := sqlite.NewMonitorStore(testDBPath(t, "health-disjoint"))
	require.NoError(t, err)
	defer func() { _ = ms.Close() }()

	rec := newHealthRecord("openai", "gpt-4o")
	require.NoError(t, ms.Health().Upsert(ctx, rec))

	probed := *rec
	probed.LastStatus = status.ProbeOK
	probed.CallCount = 5
	probed.SuccessCount = 5
	probed.ConsecutiveSuccesses = 5
	probed.NextCheckAt = testBase.Add(time.Hour)
	require.NoError(t, ms.Health().ApplyProbeResult(ctx, &probed))

	require.NoError(t, ms.Health().UpdateTier(ctx, "openai", "gpt-4o", status.TierCritical, 300))
	require.NoError(t, ms.Health().UpdateUsage(ctx, "openai", "gpt-4o", store.UsageCounts{
		Count24h: 5000, Count7d: 30000, Count30d: 100000,
	}))
	require.NoError(t, ms.Health().UpdateUptime(ctx, "openai", "gpt-4o", store.UptimeWindows{
		Pct24h: 98.5, Pct7d: 99.1, Pct30d: 99.7,
	}))

	got, err := ms.Health().Get(ctx, "openai", "gpt-4o")
	require.NoError(t, err)

	// Each writer's columns landed.
	assert.Equal(t, status.TierCritical, got.Tier)
	assert.Equal(t, 300, got.CheckIntervalSeconds)
	assert.Equal(t, int64(5000), got.UsageCount24h)
	assert.InDelta(t, 98.5, got.UptimePct24h, 0.001)

	// No writer clobbered another's columns.
	assert.Equal(t, int64(5), got.CallCount)
	assert.Equal(t, 5, got.ConsecutiveSuccesses)
	assert.Equal(t, status.ProbeOK, got.LastStatus)
	assert.True(t, got.NextCheckAt.Equal(testBase.Add(time.Hour)))
}

func TestHealthStore_SetEnabled_and_SetNextCheckAt(t *testing.T) {
	ctx := context.Background()
	ms, err := sqlite.NewMonitorStore(testDBPath(t, "health-toggles"))
	require.NoError(t, err)
	defer func() { _ = ms.Close() }()

	require.NoError(t, ms.Health().Upsert(ctx, newHealthRecord("openai", "gpt-4o")))

	require.NoError(t, ms.Health().SetEnabled(ctx, "openai", "gpt-4o", false))
	got, err := ms.Health().Get(ctx, "openai", "gpt-4o")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	forced := testBase.Add(-time.Second)
	require.NoError(t, ms.Health().SetNextCheckAt(ctx, "openai", "gpt-4o", forced))
	got, err = ms.Health().Get(ctx, "openai", "gpt-4o")
	require.NoError(t, err)
	assert.True(t, got.NextCheckAt.Equal(forced))

	assert.True(t, errors.Is(
		ms.Health().SetEnabled(ctx, "openai", "nonexistent", true), store.ErrNotFound))
	assert.True(t, errors.Is(
		ms.Health().SetNextCheckAt(ctx, "openai", "nonexistent", forced), store.ErrNotFound))
	assert.True(t, errors.Is(
		ms.Health().UpdateTier(ctx, "openai", "nonexistent", status.TierCritical, 300), store.ErrNotFound))
	assert.True(t, errors.Is(
		ms.Health().UpdateUsage(ctx, "openai", "nonexistent", store.UsageCounts{}), store.ErrNotFound))
	assert.True(t, errors.Is(
		ms.Health().UpdateUptime(ctx, "openai", "nonexistent", store.UptimeWindows{}), store.ErrNotFound))
}

func TestHealthStore_Delete(t *testing.T) {
	ctx := context.Background()
	ms, err := sqlite.NewMonitorStore(testDBPath(t, "health-delete"))
	require.NoError(t, err)
	defer func() { _ = ms.Close() }()

	require.NoError(t, ms.Health().Upsert(ctx, newHealthRecord("openai", "gpt-4o")))
	require.NoError(t, ms.Health().Delete(ctx, "openai", "gpt-4o"))

	_, err = ms.Health().Get(ctx, "openai", "gpt-4o")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	err = ms.Health().Delete(ctx, "openai", "gpt-4o")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
