// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

// Package monitor watches the health of every (provider, model) target the
// gateway routes to. A tiered scheduler probes targets on a cadence set by
// their traffic share, a per-target circuit breaker gates probe storms
// against dead upstreams, and the outcomes feed an append-only event log,
// per-target incidents, hourly aggregates, and the public status rollup.
package monitor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pharos-dev/pharos/internal/metrics"
	"github.com/pharos-dev/pharos/internal/store"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
)

// Maintenance cadences. The scheduler tick lives in scheduler.go; these
// cover the slower background passes Run drives alongside it.
const (
	// DefaultClassifierInterval is how often tiers are recomputed from the
	// fleet usage distribution.
	DefaultClassifierInterval = 5 * time.Minute

	// DefaultRollupInterval is how often open hours are re-aggregated and
	// rolling uptime windows refreshed.
	DefaultRollupInterval = 5 * time.Minute

	// DefaultSummaryInterval is how often the cached 24h provider
	// summaries are rebuilt.
	DefaultSummaryInterval = time.Minute

	// DefaultSweepInterval is how often retention deletes expired events.
	DefaultSweepInterval = 6 * time.Hour
)

// Config carries the service's dependencies and tuning. Zero tuning values
// fall back to the defaults.
type Config struct {
	Store  store.MonitorStore
	Prober Prober

	// Metrics is the shared instrument set; the server exposes its
	// registry on /metrics.
	Metrics *metrics.Set

	// Breaker thresholds; zero means the defaults (5 failures to open,
	// 2 recovery successes to close).
	BreakerOpenThreshold     int
	BreakerRecoveryThreshold int

	// Scheduler tuning, passed through to SchedulerConfig.
	TickInterval  time.Duration
	ProbeTimeout  time.Duration
	TrialInterval time.Duration
	Concurrency   int
	BatchLimit    int

	// RetentionDays bounds the event log; zero means 90.
	RetentionDays int

	// HourGrace is how long past the hour boundary late request metrics
	// are still accepted; zero means 5 minutes.
	HourGrace time.Duration

	ClassifierInterval time.Duration
	RollupInterval     time.Duration
	SummaryInterval    time.Duration
	SweepInterval      time.Duration
}

func (cfg *Config) validate() error {
	var missing []string
	if cfg.Store == nil {
		missing = append(missing, "Store")
	}
	if cfg.Prober == nil {
		missing = append(missing, "Prober")
	}
	if cfg.Metrics == nil {
		missing = append(missing, "Metrics")
	}
	if len(missing) > 0 {
		return pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
			"monitor service config missing required fields: %s", strings.Join(missing, ", "))
	}
	return ValidateThresholds(cfg.BreakerOpenThreshold, cfg.BreakerRecoveryThreshold)
}

// Service owns the monitor's moving parts and exposes the operations the
// server and CLI call. One Service runs per process; Run drives the
// scheduler and the maintenance loops until its context is cancelled.
type Service struct {
	store   store.MonitorStore
	metrics *metrics.Set

	scheduler  *Scheduler
	classifier *TierClassifier
	aggregator *Aggregator
	retention  *Retention
	tracker    *IncidentTracker
	downtime   *DowntimeTracker

	classifierInterval time.Duration
	rollupInterval     time.Duration
	summaryInterval    time.Duration
	sweepInterval      time.Duration

	nowFunc func() time.Time // for testing
}

// New assembles a monitor service from its configuration.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	breaker := NewBreaker(cfg.BreakerOpenThreshold, cfg.BreakerRecoveryThreshold)

	recorder, err := NewHistoryRecorder(cfg.Store.Events())
	if err != nil {
		return nil, err
	}
	tracker, err := NewIncidentTracker(cfg.Store.Incidents())
	if err != nil {
		return nil, err
	}
	classifier, err := NewTierClassifier(cfg.Store.Health())
	if err != nil {
		return nil, err
	}
	aggregator, err := NewAggregator(AggregatorConfig{
		Aggregates: cfg.Store.Aggregates(),
		Events:     cfg.Store.Events(),
		Health:     cfg.Store.Health(),
		HourGrace:  cfg.HourGrace,
	})
	if err != nil {
		return nil, err
	}
	retention, err := NewRetention(cfg.Store.Events(), cfg.RetentionDays)
	if err != nil {
		return nil, err
	}
	downtime, err := NewDowntimeTracker(cfg.Store.Downtime())
	if err != nil {
		return nil, err
	}
	scheduler, err := NewScheduler(SchedulerConfig{
		Health:        cfg.Store.Health(),
		Events:        cfg.Store.Events(),
		Prober:        cfg.Prober,
		Breaker:       breaker,
		Recorder:      recorder,
		Tracker:       tracker,
		Metrics:       cfg.Metrics,
		TickInterval:  cfg.TickInterval,
		ProbeTimeout:  cfg.ProbeTimeout,
		TrialInterval: cfg.TrialInterval,
		Concurrency:   cfg.Concurrency,
		BatchLimit:    cfg.BatchLimit,
	})
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:              cfg.Store,
		metrics:            cfg.Metrics,
		scheduler:          scheduler,
		classifier:         classifier,
		aggregator:         aggregator,
		retention:          retention,
		tracker:            tracker,
		downtime:           downtime,
		classifierInterval: cfg.ClassifierInterval,
		rollupInterval:     cfg.RollupInterval,
		summaryInterval:    cfg.SummaryInterval,
		sweepInterval:      cfg.SweepInterval,
		nowFunc:            time.Now,
	}
	if s.classifierInterval <= 0 {
		s.classifierInterval = DefaultClassifierInterval
	}
	if s.rollupInterval <= 0 {
		s.rollupInterval = DefaultRollupInterval
	}
	if s.summaryInterval <= 0 {
		s.summaryInterval = DefaultSummaryInterval
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = DefaultSweepInterval
	}
	return s, nil
}

// SetNowFunc overrides the service clock and the clocks of every component
// it assembled. Tests use it to drive deterministic time.
func (s *Service) SetNowFunc(fn func() time.Time) {
	s.nowFunc = fn
	s.scheduler.SetNowFunc(fn)
	s.aggregator.SetNowFunc(fn)
	s.retention.SetNowFunc(fn)
	s.tracker.SetNowFunc(fn)
	s.downtime.SetNowFunc(fn)
}

// Run drives the scheduler and the maintenance loops until ctx is
// cancelled. It always returns nil after both loops have stopped.
func (s *Service) Run(ctx context.Context) error {
	slog.Info("monitor service starting",
		"classifier_interval", s.classifierInterval,
		"rollup_interval", s.rollupInterval,
		"summary_interval", s.summaryInterval,
		"sweep_interval", s.sweepInterval,
		"retention_days", s.retention.RetentionDays())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.scheduler.Run(ctx); err != nil {
			slog.Error("scheduler stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		s.maintenanceLoop(ctx)
	}()
	wg.Wait()

	slog.Info("monitor service stopped")
	return nil
}

// maintenanceLoop drives the classifier, rollup, summary, and retention
// cadences. Every pass logs failures and carries on; a broken store cycle
// must not take the prober down with it.
func (s *Service) maintenanceLoop(ctx context.Context) {
	classify := time.NewTicker(s.classifierInterval)
	defer classify.Stop()
	rollup := time.NewTicker(s.rollupInterval)
	defer rollup.Stop()
	summary := time.NewTicker(s.summaryInterval)
	defer summary.Stop()
	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()

	// Prime the summary cache so the status API has data before the first
	// summary tick fires.
	s.refreshSummaries(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-classify.C:
			if n, err := s.classifier.Run(ctx); err != nil {
				slog.Error("tier classification failed", "error", err)
			} else if n > 0 {
				slog.Info("tier classification pass complete", "changed", n)
			}
		case <-rollup.C:
			s.runRollup(ctx)
		case <-summary.C:
			s.refreshSummaries(ctx)
		case <-sweep.C:
			if _, err := s.SweepNow(ctx); err != nil {
				slog.Error("retention sweep failed", "error", err)
			}
		}
	}
}

func (s *Service) runRollup(ctx context.Context) {
	if _, err := s.aggregator.Rollup(ctx); err != nil {
		slog.Error("aggregate rollup failed", "error", err)
	} else {
		s.metrics.AggregatorRollups.Inc()
	}
	// Uptime reads the same event log the rollup just walked, so it
	// piggybacks on the rollup cadence.
	if _, err := s.aggregator.RefreshUptime(ctx); err != nil {
		slog.Error("uptime refresh failed", "error", err)
	}
}

func (s *Service) refreshSummaries(ctx context.Context) {
	if err := s.aggregator.RefreshSummaries(ctx); err != nil {
		slog.Error("provider summary refresh failed", "error", err)
	}
	if n, err := s.store.Incidents().CountUnresolved(ctx); err != nil {
		slog.Warn("unresolved incident count failed", "error", err)
	} else {
		s.metrics.IncidentsOpen.Set(float64(n))
	}
}

// --- Target registration and control ---

// RegisterTarget adds a target to the monitored fleet or refreshes the
// registration fields of an existing one. New targets start on the
// on-demand cadence with a closed breaker and are due immediately.
func (s *Service) RegisterTarget(ctx context.Context, provider, model, gateway string, enabled bool) (*store.HealthRecord, error) {
	now := s.nowFunc()
	rec := &store.HealthRecord{
		Provider:             provider,
		Model:                model,
		Gateway:              gateway,
		Tier:                 status.TierOnDemand,
		CheckIntervalSeconds: intervalOnDemand,
		BreakerState:         status.BreakerClosed,
		UptimePct24h:         100,
		UptimePct7d:          100,
		UptimePct30d:         100,
		NextCheckAt:          now,
		Enabled:              enabled,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Health().Upsert(ctx, rec); err != nil {
		return nil, err
	}
	slog.Info("target registered",
		"provider", provider, "model", model, "gateway", gateway, "enabled", enabled)
	return s.store.Health().Get(ctx, provider, model)
}

// Target returns one health record.
func (s *Service) Target(ctx context.Context, provider, model string) (*store.HealthRecord, error) {
	return s.store.Health().Get(ctx, provider, model)
}

// Targets lists health records matching the filter.
func (s *Service) Targets(ctx context.Context, filter store.HealthFilter) ([]*store.HealthRecord, error) {
	return s.store.Health().List(ctx, filter)
}

// SetEnabled flips monitoring for one target. Disabling stops scheduling
// but keeps the record and its history.
func (s *Service) SetEnabled(ctx context.Context, provider, model string, enabled bool) error {
	if err := s.store.Health().SetEnabled(ctx, provider, model, enabled); err != nil {
		return err
	}
	slog.Info("target monitoring toggled",
		"provider", provider, "model", model, "enabled", enabled)
	return nil
}

// CheckNow probes one target immediately, bypassing its cadence, and
// returns the record as the probe left it.
func (s *Service) CheckNow(ctx context.Context, provider, model string) (*store.HealthRecord, error) {
	return s.scheduler.CheckTarget(ctx, provider, model)
}

// --- Status rollups ---

// PlatformStatus builds the full status page: every provider, every
// target, open incident count, and any ongoing platform downtime.
func (s *Service) PlatformStatus(ctx context.Context) (*status.PlatformStatus, error) {
	recs, err := listRecords(ctx, s.store.Health(), store.HealthFilter{})
	if err != nil {
		return nil, err
	}
	open, err := s.store.Incidents().CountUnresolved(ctx)
	if err != nil {
		return nil, err
	}
	ongoing, err := s.downtime.Ongoing(ctx)
	if err != nil {
		return nil, err
	}
	plat := BuildPlatformStatus(groupByProvider(recs), open, ongoing != nil, s.nowFunc())
	return &plat, nil
}

// ProviderStatus builds the status rollup for one provider.
func (s *Service) ProviderStatus(ctx context.Context, provider string) (*status.ProviderStatus, error) {
	recs, err := listRecords(ctx, s.store.Health(), store.HealthFilter{Provider: provider})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, pharoserr.Errorf(pharoserr.CodeMonitorTargetNotFound,
			"provider %s has no monitored targets", provider)
	}
	ps := BuildProviderStatus(provider, recs)
	return &ps, nil
}

// TargetStatus builds the status view of one target.
func (s *Service) TargetStatus(ctx context.Context, provider, model string) (*status.TargetStatus, error) {
	rec, err := s.store.Health().Get(ctx, provider, model)
	if err != nil {
		return nil, err
	}
	ts := BuildTargetStatus(rec)
	return &ts, nil
}

// ProviderSummaries returns the cached last-24h request summaries, newest
// cache generation, sorted by provider.
func (s *Service) ProviderSummaries() []*store.ProviderSummary {
	return s.aggregator.Summaries()
}

// --- Incidents ---

// Incidents lists incidents matching the filter.
func (s *Service) Incidents(ctx context.Context, filter store.IncidentFilter) ([]*store.Incident, error) {
	return s.store.Incidents().List(ctx, filter)
}

// Incident returns one incident by ID.
func (s *Service) Incident(ctx context.Context, id string) (*store.Incident, error) {
	return s.store.Incidents().Get(ctx, id)
}

// AcknowledgeIncident marks an unresolved incident as acknowledged and
// optionally annotates it.
func (s *Service) AcknowledgeIncident(ctx context.Context, id, by, note string) (*store.Incident, error) {
	return s.tracker.Acknowledge(ctx, id, by, note)
}

// --- History and aggregates ---

// Events lists a target's probe history in [from, to).
func (s *Service) Events(ctx context.Context, provider, model string, from, to time.Time, opts store.ListOpts) ([]*store.HealthCheckEvent, error) {
	return s.store.Events().ListByTarget(ctx, provider, model, from, to, opts)
}

// Aggregates lists a target's hourly aggregates with hour in [from, to).
func (s *Service) Aggregates(ctx context.Context, provider, model string, from, to time.Time) ([]*store.HourlyAggregate, error) {
	return s.store.Aggregates().ListRange(ctx, provider, model, from, to)
}

// IngestRequestMetrics buffers gateway request metrics for the hourly
// rollup and returns how many were accepted.
func (s *Service) IngestRequestMetrics(batch []RequestMetric) int {
	return s.aggregator.Ingest(batch)
}

// ApplyUsage applies an external usage feed batch and returns how many
// targets were updated.
func (s *Service) ApplyUsage(ctx context.Context, samples []UsageSample) (int, error) {
	return applyUsage(ctx, s.store.Health(), samples)
}

// SweepNow runs a retention sweep immediately and returns how many events
// it deleted.
func (s *Service) SweepNow(ctx context.Context) (int64, error) {
	deleted, err := s.retention.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.RetentionDeleted.Add(float64(deleted))
	return deleted, nil
}

// RetentionDays reports the configured event retention.
func (s *Service) RetentionDays() int { return s.retention.RetentionDays() }

// --- Platform downtime ---

// OpenDowntime records the start of a platform-wide outage.
func (s *Service) OpenDowntime(ctx context.Context, startedAt time.Time, logsSnapshot, metricsSnapshot string) (*store.DowntimeIncident, error) {
	return s.downtime.Open(ctx, startedAt, logsSnapshot, metricsSnapshot)
}

// ResolveDowntime closes a platform-wide outage.
func (s *Service) ResolveDowntime(ctx context.Context, id string) (*store.DowntimeIncident, error) {
	return s.downtime.Resolve(ctx, id)
}

// OngoingDowntime returns the current platform outage, or nil.
func (s *Service) OngoingDowntime(ctx context.Context) (*store.DowntimeIncident, error) {
	return s.downtime.Ongoing(ctx)
}

// Downtimes lists recorded platform outages, newest first.
func (s *Service) Downtimes(ctx context.Context, opts store.ListOpts) ([]*store.DowntimeIncident, error) {
	return s.downtime.List(ctx, opts)
}
