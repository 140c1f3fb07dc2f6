// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pharos-dev/pharos/internal/metrics"
	"github.com/pharos-dev/pharos/internal/store"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
)

const (
	// DefaultTickInterval is how often the scheduler looks for due targets.
	DefaultTickInterval = 15 * time.Second

	// DefaultProbeTimeout bounds one probe; a hung probe is cancelled and
	// reported as a timeout failure.
	DefaultProbeTimeout = 10 * time.Second

	// DefaultTrialInterval is the retry cadence while a breaker is open or
	// half-open, replacing the tier cadence until the target closes again.
	DefaultTrialInterval = 60 * time.Second

	// DefaultConcurrency bounds in-flight probes per tick.
	DefaultConcurrency = 8

	// DefaultBatchLimit caps how many due targets one tick pulls. Anything
	// beyond it stays due and leads the next tick.
	DefaultBatchLimit = 64
)

// SchedulerConfig carries the scheduler's dependencies and tuning. Zero
// tuning values fall back to the defaults.
type SchedulerConfig struct {
	Health   store.HealthStore
	Events   store.EventStore
	Prober   Prober
	Breaker  *Breaker
	Recorder *HistoryRecorder
	Tracker  *IncidentTracker
	Metrics  *metrics.Set

	TickInterval  time.Duration
	ProbeTimeout  time.Duration
	TrialInterval time.Duration
	Concurrency   int
	BatchLimit    int
}

func (cfg *SchedulerConfig) validate() error {
	var missing []string
	if cfg.Health == nil {
		missing = append(missing, "health")
	}
	if cfg.Events == nil {
		missing = append(missing, "events")
	}
	if cfg.Prober == nil {
		missing = append(missing, "prober")
	}
	if cfg.Breaker == nil {
		missing = append(missing, "breaker")
	}
	if cfg.Recorder == nil {
		missing = append(missing, "recorder")
	}
	if cfg.Tracker == nil {
		missing = append(missing, "tracker")
	}
	if cfg.Metrics == nil {
		missing = append(missing, "metrics")
	}
	if len(missing) > 0 {
		return pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
			"scheduler config missing required fields: %v", missing)
	}
	return nil
}

// Scheduler drives the probe loop: claim due targets, dispatch bounded
// probes, apply results through the breaker, recorder and tracker.
type Scheduler struct {
	health   store.HealthStore
	events   store.EventStore
	prober   Prober
	breaker  *Breaker
	recorder *HistoryRecorder
	tracker  *IncidentTracker
	metrics  *metrics.Set

	tick          time.Duration
	probeTimeout  time.Duration
	trialInterval time.Duration
	concurrency   int
	batchLimit    int
	nowFunc       func() time.Time
}

// NewScheduler creates a Scheduler from cfg.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.TrialInterval <= 0 {
		cfg.TrialInterval = DefaultTrialInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}

	return &Scheduler{
		health:        cfg.Health,
		events:        cfg.Events,
		prober:        cfg.Prober,
		breaker:       cfg.Breaker,
		recorder:      cfg.Recorder,
		tracker:       cfg.Tracker,
		metrics:       cfg.Metrics,
		tick:          cfg.TickInterval,
		probeTimeout:  cfg.ProbeTimeout,
		trialInterval: cfg.TrialInterval,
		concurrency:   cfg.Concurrency,
		batchLimit:    cfg.BatchLimit,
		nowFunc:       time.Now,
	}, nil
}

// SetNowFunc overrides the time source (for testing).
func (s *Scheduler) SetNowFunc(fn func() time.Time) { s.nowFunc = fn }

// Run ticks until ctx is cancelled. Tick errors are logged, never fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler started",
		"tick", s.tick, "probe_timeout", s.probeTimeout, "concurrency", s.concurrency)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick claims and probes everything currently due, most urgent first, and
// returns how many probes it dispatched. It blocks until the batch is
// done; probes are individually bounded so a tick cannot hang.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.nowFunc()
	due, err := s.health.ListDue(ctx, now, s.batchLimit)
	if err != nil {
		return 0, pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"listing due targets")
	}

	s.metrics.TargetsDue.Set(float64(len(due)))
	if len(due) == 0 {
		return 0, nil
	}

	// Persisted scores may predate recent failures; order by fresh ones.
	sort.SliceStable(due, func(i, j int) bool {
		return PriorityScore(due[i], now) > PriorityScore(due[j], now)
	})

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	var probed atomic.Int64

	for _, rec := range due {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return int(probed.Load()), nil
		}

		wg.Add(1)
		go func(rec *store.HealthRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			claimedAt := s.nowFunc()
			claimed, err := s.health.Claim(ctx, rec.Provider, rec.Model,
				claimedAt, claimedAt.Add(s.leaseDuration()))
			if err != nil {
				slog.Warn("claim failed",
					"provider", rec.Provider, "model", rec.Model, "error", err)
				return
			}
			if !claimed {
				// Another instance holds the lease; skip this tick.
				return
			}

			probed.Add(1)
			s.probe(ctx, rec)
		}(rec)
	}

	wg.Wait()
	return int(probed.Load()), nil
}

// leaseDuration covers the probe deadline plus one tick, so a crashed
// instance's claims lapse before the next live tick could want them.
func (s *Scheduler) leaseDuration() time.Duration {
	return s.probeTimeout + s.tick
}

// CheckTarget probes one target immediately, bypassing nextCheckAt, and
// returns the refreshed record. Forced checks run even for disabled
// targets; the operator asked for this one explicitly.
func (s *Scheduler) CheckTarget(ctx context.Context, provider, model string) (*store.HealthRecord, error) {
	rec, err := s.health.Get(ctx, provider, model)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	// The claim is due-gated, so pull the target forward first; its real
	// cadence is restamped when the result applies.
	if err := s.health.SetNextCheckAt(ctx, provider, model, now); err != nil {
		return nil, pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"scheduling %s/%s for forced check", provider, model)
	}
	claimed, err := s.health.Claim(ctx, provider, model, now, now.Add(s.leaseDuration()))
	if err != nil {
		return nil, pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"claiming %s/%s for forced check", provider, model)
	}
	if !claimed {
		return nil, pharoserr.Errorf(pharoserr.CodeStoreHealthClaimConflict,
			"target %s/%s is already being checked", provider, model)
	}

	s.probe(ctx, rec)
	return s.health.Get(ctx, provider, model)
}

// probe runs one bounded probe and applies its outcome. Probe failures of
// any kind become failed checks, never scheduler faults.
func (s *Scheduler) probe(ctx context.Context, rec *store.HealthRecord) {
	target := Target{Provider: rec.Provider, Model: rec.Model, Gateway: rec.Gateway}

	pctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	start := time.Now()
	res, err := s.safeProbe(pctx, target)
	cancel()
	elapsed := time.Since(start)

	if err != nil {
		res = resultFromError(err, elapsed.Milliseconds())
	}
	if !res.Status.Valid() {
		res.Status = status.ProbeError
	}
	if res.ResponseTimeMS <= 0 {
		res.ResponseTimeMS = elapsed.Milliseconds()
	}

	at := s.nowFunc()
	if err := s.apply(ctx, rec, res, at); err != nil {
		// The lease lapses on its own; the target goes back in the queue.
		slog.Error("applying probe result failed",
			"provider", rec.Provider, "model", rec.Model, "error", err)
	}

	s.metrics.ChecksTotal.WithLabelValues(rec.Provider, rec.Gateway, string(res.Status)).Inc()
	s.metrics.ProbeDuration.WithLabelValues(rec.Provider).Observe(elapsed.Seconds())

	slog.Debug("probe finished",
		"provider", rec.Provider, "model", rec.Model,
		"status", res.Status, "response_time_ms", res.ResponseTimeMS)
}

// safeProbe shields the loop from panicking probers.
func (s *Scheduler) safeProbe(ctx context.Context, target Target) (res ProbeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pharoserr.Errorf(pharoserr.CodeMonitorProbeUpstreamFailure,
				"prober panicked: %v", r)
		}
	}()
	return s.prober.Probe(ctx, target)
}

// apply folds one probe result into the record and fans it out: breaker,
// event log, uptime windows, score, persistence, incident bookkeeping.
func (s *Scheduler) apply(ctx context.Context, rec *store.HealthRecord, res ProbeResult, at time.Time) error {
	ok := !res.Failed()

	tr := s.breaker.Next(rec, ok)
	rec.ConsecutiveFailures = tr.ConsecutiveFailures
	rec.ConsecutiveSuccesses = tr.ConsecutiveSuccesses
	rec.BreakerState = tr.To
	if tr.Changed() {
		s.metrics.BreakerTransitions.WithLabelValues(string(tr.To)).Inc()
		slog.Warn("breaker transition",
			"provider", rec.Provider, "model", rec.Model,
			"from", tr.From, "to", tr.To,
			"consecutive_failures", tr.ConsecutiveFailures)
	}

	called := at
	rec.LastStatus = res.Status
	rec.LastResponseTimeMS = res.ResponseTimeMS
	rec.LastCalledAt = &called
	rec.CallCount++
	if ok {
		rec.LastSuccessAt = &called
		rec.LastErrorMessage = ""
		rec.SuccessCount++
		// Running average over successful probes only; failures carry
		// timeout-shaped latencies that would poison it.
		rec.AverageResponseTimeMS += (float64(res.ResponseTimeMS) - rec.AverageResponseTimeMS) / float64(rec.SuccessCount)
	} else {
		rec.LastFailureAt = &called
		rec.LastErrorMessage = res.ErrorMessage
		rec.ErrorCount++
	}

	if rec.BreakerState == status.BreakerClosed {
		interval := rec.CheckIntervalSeconds
		if interval <= 0 {
			interval = intervalOnDemand
		}
		rec.NextCheckAt = at.Add(time.Duration(interval) * time.Second)
	} else {
		// Open and half-open targets run on the trial cadence until the
		// breaker closes again.
		rec.NextCheckAt = at.Add(s.trialInterval)
	}

	// The event goes in before the window math so this probe counts.
	if err := s.recorder.Record(ctx, rec, res, at); err != nil {
		slog.Error("recording health check event failed",
			"provider", rec.Provider, "model", rec.Model, "error", err)
	}

	if w, err := uptimeWindows(ctx, s.events, rec.Provider, rec.Model, at); err != nil {
		// Keep the previous window values; the refresh pass catches up.
		slog.Warn("uptime window refresh failed",
			"provider", rec.Provider, "model", rec.Model, "error", err)
	} else {
		rec.UptimePct24h, rec.UptimePct7d, rec.UptimePct30d = w.Pct24h, w.Pct7d, w.Pct30d
		if err := s.health.UpdateUptime(ctx, rec.Provider, rec.Model, w); err != nil {
			slog.Warn("uptime update failed",
				"provider", rec.Provider, "model", rec.Model, "error", err)
		}
	}

	rec.PriorityScore = PriorityScore(rec, at)

	if err := s.health.ApplyProbeResult(ctx, rec); err != nil {
		return pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"applying probe result for %s/%s", rec.Provider, rec.Model)
	}

	if !ok {
		if err := s.tracker.RecordFailure(ctx, rec, res, at); err != nil {
			slog.Error("incident tracking failed",
				"provider", rec.Provider, "model", rec.Model, "error", err)
		}
	} else if rec.BreakerState == status.BreakerClosed {
		if err := s.tracker.RecordRecovery(ctx, rec, at); err != nil {
			slog.Error("incident resolution failed",
				"provider", rec.Provider, "model", rec.Model, "error", err)
		}
	}
	return nil
}
