// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pharos-dev/pharos/internal/stats"
	"github.com/pharos-dev/pharos/internal/store"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
)

// DefaultHourGrace is how long after an hour ends its aggregate row stays
// writable. Past the grace the row is immutable.
const DefaultHourGrace = 5 * time.Minute

// RequestMetric is one gateway request observation fed in by the routing
// layer. Latency percentiles are not computed from these (batches may be
// partial); they come from the probe event log.
type RequestMetric struct {
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	LatencyMS float64   `json:"latency_ms"`
	Tokens    int64     `json:"tokens"`
	CostUSD   float64   `json:"cost_usd"`
}

type aggKey struct {
	provider string
	model    string
	hour     time.Time
}

// bucket accumulates one open hour of request metrics for one target.
// Only sums are kept; the full row is recomputed from the bucket on every
// rollup pass, so buckets live until their hour closes.
type bucket struct {
	total      int64
	success    int64
	failed     int64
	tokens     int64
	costUSD    float64
	latencySum float64
}

// Aggregator maintains hourly rollup rows and the fast last-24h provider
// summary cache.
type Aggregator struct {
	aggregates store.AggregateStore
	events     store.EventStore
	health     store.HealthStore

	grace   time.Duration
	nowFunc func() time.Time

	mu     sync.Mutex
	buffer map[aggKey]*bucket

	sumMu     sync.RWMutex
	summaries map[string]*store.ProviderSummary
}

// AggregatorConfig carries the aggregator's dependencies.
type AggregatorConfig struct {
	Aggregates store.AggregateStore
	Events     store.EventStore
	Health     store.HealthStore

	// HourGrace defaults to DefaultHourGrace when zero.
	HourGrace time.Duration
}

// NewAggregator creates an Aggregator from cfg.
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	var missing []string
	if cfg.Aggregates == nil {
		missing = append(missing, "aggregates")
	}
	if cfg.Events == nil {
		missing = append(missing, "events")
	}
	if cfg.Health == nil {
		missing = append(missing, "health")
	}
	if len(missing) > 0 {
		return nil, pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
			"aggregator config missing required stores: %v", missing)
	}

	grace := cfg.HourGrace
	if grace <= 0 {
		grace = DefaultHourGrace
	}

	return &Aggregator{
		aggregates: cfg.Aggregates,
		events:     cfg.Events,
		health:     cfg.Health,
		grace:      grace,
		nowFunc:    time.Now,
		buffer:     make(map[aggKey]*bucket),
		summaries:  make(map[string]*store.ProviderSummary),
	}, nil
}

// SetNowFunc overrides the time source (for testing).
func (a *Aggregator) SetNowFunc(fn func() time.Time) { a.nowFunc = fn }

// hourOf truncates t to its UTC hour.
func hourOf(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// closed reports whether the aggregate row for hour is immutable at now.
func (a *Aggregator) closed(hour, now time.Time) bool {
	return !now.Before(hour.Add(time.Hour + a.grace))
}

// Ingest buffers a batch of request metrics and returns how many were
// accepted. Metrics for hours already closed are dropped: closed rows are
// immutable and late data must not reopen them.
func (a *Aggregator) Ingest(metrics []RequestMetric) int {
	now := a.nowFunc()

	a.mu.Lock()
	defer a.mu.Unlock()

	accepted := 0
	dropped := 0
	for _, m := range metrics {
		hour := hourOf(m.Timestamp)
		if a.closed(hour, now) {
			dropped++
			continue
		}

		key := aggKey{provider: m.Provider, model: m.Model, hour: hour}
		b := a.buffer[key]
		if b == nil {
			b = &bucket{}
			a.buffer[key] = b
		}

		b.total++
		if m.Success {
			b.success++
		} else {
			b.failed++
		}
		b.tokens += m.Tokens
		b.costUSD += m.CostUSD
		b.latencySum += m.LatencyMS
		accepted++
	}

	if dropped > 0 {
		slog.Warn("dropped request metrics for closed hours", "dropped", dropped)
	}
	return accepted
}

// Rollup recomputes the aggregate rows of every hour still open, merging
// buffered request metrics with the hour's probe events, and prunes
// buckets whose hour has closed. It returns the number of rows written.
func (a *Aggregator) Rollup(ctx context.Context) (int, error) {
	now := a.nowFunc()

	current := hourOf(now)
	hourSet := map[time.Time]struct{}{current: {}}
	if prev := current.Add(-time.Hour); !a.closed(prev, now) {
		hourSet[prev] = struct{}{}
	}

	// Metrics accepted inside the grace can land after the last pass that
	// covered their hour. Every hour with a buffered bucket gets written,
	// closed or not, so accepted data is persisted before the prune below
	// discards the bucket.
	a.mu.Lock()
	for key := range a.buffer {
		hourSet[key.hour] = struct{}{}
	}
	a.mu.Unlock()

	hours := make([]time.Time, 0, len(hourSet))
	for hour := range hourSet {
		hours = append(hours, hour)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

	written := 0
	for _, hour := range hours {
		n, err := a.rollupHour(ctx, hour, now)
		if err != nil {
			return written, err
		}
		written += n
	}

	a.pruneClosed(now)
	return written, nil
}

func (a *Aggregator) rollupHour(ctx context.Context, hour, now time.Time) (int, error) {
	events, err := a.events.ListBetween(ctx, hour, hour.Add(time.Hour))
	if err != nil {
		return 0, pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"listing events for hour %s", hour.Format(time.RFC3339))
	}

	type probeStats struct {
		latencies []float64
		ok        int64
		total     int64
	}
	probes := make(map[aggKey]*probeStats)
	for _, ev := range events {
		key := aggKey{provider: ev.Provider, model: ev.Model, hour: hour}
		ps := probes[key]
		if ps == nil {
			ps = &probeStats{}
			probes[key] = ps
		}
		ps.latencies = append(ps.latencies, float64(ev.ResponseTimeMS))
		ps.total++
		if !ev.Status.Failure() {
			ps.ok++
		}
	}

	// Snapshot the hour's buckets so store writes happen outside the lock.
	buckets := make(map[aggKey]bucket)
	a.mu.Lock()
	for key, b := range a.buffer {
		if key.hour.Equal(hour) {
			buckets[key] = *b
		}
	}
	a.mu.Unlock()

	keys := make(map[aggKey]struct{}, len(probes)+len(buckets))
	for key := range probes {
		keys[key] = struct{}{}
	}
	for key := range buckets {
		keys[key] = struct{}{}
	}

	written := 0
	for key := range keys {
		agg := &store.HourlyAggregate{
			Provider:  key.provider,
			Model:     key.model,
			Hour:      hour,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if ps := probes[key]; ps != nil {
			if p50, ok := stats.Percentile(ps.latencies, 50); ok {
				agg.P50LatencyMS = p50
			}
			if p95, ok := stats.Percentile(ps.latencies, 95); ok {
				agg.P95LatencyMS = p95
			}
			if p99, ok := stats.Percentile(ps.latencies, 99); ok {
				agg.P99LatencyMS = p99
			}
			agg.SampleCount = int64(len(ps.latencies))

			// Probe counts stand in for traffic when no request
			// metrics arrived for this target-hour.
			agg.TotalRequests = ps.total
			agg.SuccessRequests = ps.ok
			agg.FailedRequests = ps.total - ps.ok
			if mean, ok := stats.Mean(ps.latencies); ok {
				agg.AvgLatencyMS = mean
			}
		}

		if b, ok := buckets[key]; ok && b.total > 0 {
			agg.TotalRequests = b.total
			agg.SuccessRequests = b.success
			agg.FailedRequests = b.failed
			agg.TotalTokens = b.tokens
			agg.TotalCostUSD = b.costUSD
			agg.AvgLatencyMS = b.latencySum / float64(b.total)
		}

		if agg.TotalRequests > 0 {
			agg.ErrorRate = float64(agg.FailedRequests) / float64(agg.TotalRequests)
		}

		if err := a.aggregates.Upsert(ctx, agg); err != nil {
			return written, pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
				"upserting aggregate %s/%s@%s", key.provider, key.model, hour.Format(time.RFC3339))
		}
		written++
	}
	return written, nil
}

// pruneClosed drops buffer buckets whose hour can no longer be written.
// Rollup covers every buffered hour before calling this, so a pruned
// bucket's final content has always been persisted.
func (a *Aggregator) pruneClosed(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key := range a.buffer {
		if a.closed(key.hour, now) {
			delete(a.buffer, key)
		}
	}
}

// RefreshSummaries recomputes the last-24h per-provider summary cache.
// Readers see the previous snapshot until the swap, bounding staleness at
// the refresh cadence instead of paying the query per read.
func (a *Aggregator) RefreshSummaries(ctx context.Context) error {
	now := a.nowFunc()
	sums, err := a.aggregates.ProviderSummaries(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		return pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"summarizing providers for the last 24h")
	}

	next := make(map[string]*store.ProviderSummary, len(sums))
	for _, s := range sums {
		s.ComputedAt = now
		next[s.Provider] = s
	}

	a.sumMu.Lock()
	a.summaries = next
	a.sumMu.Unlock()
	return nil
}

// ProviderSummary returns the cached last-24h summary for one provider.
func (a *Aggregator) ProviderSummary(provider string) (*store.ProviderSummary, bool) {
	a.sumMu.RLock()
	defer a.sumMu.RUnlock()
	s, ok := a.summaries[provider]
	return s, ok
}

// Summaries returns all cached provider summaries, ordered by provider.
func (a *Aggregator) Summaries() []*store.ProviderSummary {
	a.sumMu.RLock()
	defer a.sumMu.RUnlock()

	out := make([]*store.ProviderSummary, 0, len(a.summaries))
	for _, s := range a.summaries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// RefreshUptime recomputes the rolling uptime windows of every enabled
// record from the event log. The per-probe path keeps recently probed
// records fresh; this pass catches the ones whose windows drift between
// probes as old events age out.
func (a *Aggregator) RefreshUptime(ctx context.Context) (int, error) {
	recs, err := listAllEnabled(ctx, a.health)
	if err != nil {
		return 0, pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"listing records for uptime refresh")
	}

	now := a.nowFunc()
	updated := 0
	for _, rec := range recs {
		w, err := uptimeWindows(ctx, a.events, rec.Provider, rec.Model, now)
		if err != nil {
			slog.Warn("uptime window refresh failed",
				"provider", rec.Provider, "model", rec.Model, "error", err)
			continue
		}
		if err := a.health.UpdateUptime(ctx, rec.Provider, rec.Model, w); err != nil {
			slog.Warn("uptime update failed",
				"provider", rec.Provider, "model", rec.Model, "error", err)
			continue
		}
		updated++
	}
	return updated, nil
}
