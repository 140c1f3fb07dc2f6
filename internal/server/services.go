// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package server

import (
	"context"
	"time"

	"github.com/pharos-dev/pharos/internal/monitor"
	"github.com/pharos-dev/pharos/internal/store"
	"github.com/pharos-dev/pharos/pkg/status"
)

// Monitor is the service surface the HTTP handlers consume. It is an
// interface so route tests can run against a mock instead of a live
// scheduler; *monitor.Service is the production implementation.
type Monitor interface {
	PlatformStatus(ctx context.Context) (*status.PlatformStatus, error)
	ProviderStatus(ctx context.Context, provider string) (*status.ProviderStatus, error)
	TargetStatus(ctx context.Context, provider, model string) (*status.TargetStatus, error)
	ProviderSummaries() []*store.ProviderSummary

	Targets(ctx context.Context, filter store.HealthFilter) ([]*store.HealthRecord, error)
	Target(ctx context.Context, provider, model string) (*store.HealthRecord, error)
	RegisterTarget(ctx context.Context, provider, model, gateway string, enabled bool) (*store.HealthRecord, error)
	SetEnabled(ctx context.Context, provider, model string, enabled bool) error
	CheckNow(ctx context.Context, provider, model string) (*store.HealthRecord, error)

	Incidents(ctx context.Context, filter store.IncidentFilter) ([]*store.Incident, error)
	AcknowledgeIncident(ctx context.Context, id, by, note string) (*store.Incident, error)

	Events(ctx context.Context, provider, model string, from, to time.Time, opts store.ListOpts) ([]*store.HealthCheckEvent, error)
	Aggregates(ctx context.Context, provider, model string, from, to time.Time) ([]*store.HourlyAggregate, error)
	IngestRequestMetrics(batch []monitor.RequestMetric) int
	ApplyUsage(ctx context.Context, samples []monitor.UsageSample) (int, error)

	SweepNow(ctx context.Context) (int64, error)

	OpenDowntime(ctx context.Context, startedAt time.Time, logsSnapshot, metricsSnapshot string) (*store.DowntimeIncident, error)
	ResolveDowntime(ctx context.Context, id string) (*store.DowntimeIncident, error)
	Downtimes(ctx context.Context, opts store.ListOpts) ([]*store.DowntimeIncident, error)
}

var _ Monitor = (*monitor.Service)(nil)

// RegisterMonitor sets the monitor dependency and registers the REST routes
// backed by it. Until it is called the server answers only /health,
// /metrics and the OpenAPI document.
func (s *Server) RegisterMonitor(m Monitor) {
	s.monitor = m
	s.registerRoutes()
}

// --- REST representations ---

// TargetDetail is the full REST representation of a monitored target's
// health record. Scheduler lease internals are not exposed.
type TargetDetail struct {
	Provider             string              `json:"provider" doc:"Upstream provider"`
	Model                string              `json:"model" doc:"Model identifier"`
	Gateway              string              `json:"gateway,omitempty" doc:"Gateway the probes travel through"`
	Tier                 status.Tier         `json:"tier" doc:"Scheduling tier (critical, popular, standard, on_demand)"`
	CheckIntervalSeconds int                 `json:"check_interval_seconds" doc:"Probe cadence in seconds"`
	Enabled              bool                `json:"enabled" doc:"Whether the target is scheduled"`
	BreakerState         status.BreakerState `json:"breaker_state" doc:"Circuit breaker state"`

	LastStatus         status.ProbeStatus `json:"last_status,omitempty" doc:"Outcome of the last probe"`
	LastResponseTimeMS int64              `json:"last_response_time_ms" doc:"Latency of the last probe"`
	LastCheckedAt      *time.Time         `json:"last_checked_at,omitempty"`
	LastSuccessAt      *time.Time         `json:"last_success_at,omitempty"`
	LastFailureAt      *time.Time         `json:"last_failure_at,omitempty"`
	LastError          string             `json:"last_error,omitempty" doc:"Message from the last failed probe"`

	CallCount            int64   `json:"call_count" doc:"Total probes"`
	SuccessCount         int64   `json:"success_count"`
	ErrorCount           int64   `json:"error_count"`
	AvgResponseTimeMS    float64 `json:"avg_response_time_ms" doc:"Running average over successful probes"`
	ConsecutiveFailures  int     `json:"consecutive_failures"`
	ConsecutiveSuccesses int     `json:"consecutive_successes"`

	UptimePct24h float64 `json:"uptime_pct_24h"`
	UptimePct7d  float64 `json:"uptime_pct_7d"`
	UptimePct30d float64 `json:"uptime_pct_30d"`

	UsageCount24h int64 `json:"usage_count_24h" doc:"Gateway requests in the last 24h (usage feed)"`
	UsageCount7d  int64 `json:"usage_count_7d"`
	UsageCount30d int64 `json:"usage_count_30d"`

	PriorityScore float64    `json:"priority_score" doc:"Last computed scheduling score"`
	NextCheckAt   *time.Time `json:"next_check_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toTargetDetail(rec *store.HealthRecord) TargetDetail {
	d := TargetDetail{
		Provider:             rec.Provider,
		Model:                rec.Model,
		Gateway:              rec.Gateway,
		Tier:                 rec.Tier,
		CheckIntervalSeconds: rec.CheckIntervalSeconds,
		Enabled:              rec.Enabled,
		BreakerState:         rec.BreakerState,
		LastStatus:           rec.LastStatus,
		LastResponseTimeMS:   rec.LastResponseTimeMS,
		LastCheckedAt:        rec.LastCalledAt,
		LastSuccessAt:        rec.LastSuccessAt,
		LastFailureAt:        rec.LastFailureAt,
		LastError:            rec.LastErrorMessage,
		CallCount:            rec.CallCount,
		SuccessCount:         rec.SuccessCount,
		ErrorCount:           rec.ErrorCount,
		AvgResponseTimeMS:    rec.AverageResponseTimeMS,
		ConsecutiveFailures:  rec.ConsecutiveFailures,
		ConsecutiveSuccesses: rec.ConsecutiveSuccesses,
		UptimePct24h:         rec.UptimePct24h,
		UptimePct7d:          rec.UptimePct7d,
		UptimePct30d:         rec.UptimePct30d,
		UsageCount24h:        rec.UsageCount24h,
		UsageCount7d:         rec.UsageCount7d,
		UsageCount30d:        rec.UsageCount30d,
		PriorityScore:        rec.PriorityScore,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
	}
	if !rec.NextCheckAt.IsZero() {
		next := rec.NextCheckAt
		d.NextCheckAt = &next
	}
	return d
}

// IncidentDetail is the REST representation of a per-target incident.
type IncidentDetail struct {
	ID       string `json:"id" doc:"Incident identifier"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Gateway  string `json:"gateway,omitempty"`

	Type     status.IncidentType  `json:"type" doc:"Failure class (outage, degradation, timeout, rate_limit)"`
	Severity status.Severity      `json:"severity"`
	State    status.IncidentState `json:"state" doc:"active, acknowledged or resolved"`

	StartedAt       time.Time  `json:"started_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	DurationSeconds int64      `json:"duration_seconds" doc:"Zero until resolved"`

	ErrorCount       int64 `json:"error_count" doc:"Failed probes attributed to this incident"`
	AffectedRequests int64 `json:"affected_requests"`

	AckBy string `json:"ack_by,omitempty" doc:"Who acknowledged the incident"`
	Note  string `json:"note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toIncidentDetail(inc *store.Incident) IncidentDetail {
	return IncidentDetail{
		ID:               inc.ID,
		Provider:         inc.Provider,
		Model:            inc.Model,
		Gateway:          inc.Gateway,
		Type:             inc.Type,
		Severity:         inc.Severity,
		State:            inc.State,
		StartedAt:        inc.StartedAt,
		ResolvedAt:       inc.ResolvedAt,
		DurationSeconds:  inc.DurationSeconds,
		ErrorCount:       inc.ErrorCount,
		AffectedRequests: inc.AffectedRequests,
		AckBy:            inc.AckBy,
		Note:             inc.Note,
		CreatedAt:        inc.CreatedAt,
		UpdatedAt:        inc.UpdatedAt,
	}
}

// AggregateRow is the REST representation of one hourly traffic aggregate.
type AggregateRow struct {
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Hour     time.Time `json:"hour" doc:"Start of the hour, UTC"`

	TotalRequests   int64 `json:"total_requests"`
	SuccessRequests int64 `json:"success_requests"`
	FailedRequests  int64 `json:"failed_requests"`

	TotalTokens  int64   `json:"total_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`

	AvgLatencyMS float64 `json:"avg_latency_ms"`
	P50LatencyMS float64 `json:"p50_latency_ms"`
	P95LatencyMS float64 `json:"p95_latency_ms"`
	P99LatencyMS float64 `json:"p99_latency_ms"`

	ErrorRate   float64 `json:"error_rate" doc:"FailedRequests / TotalRequests, range [0,1]"`
	SampleCount int64   `json:"sample_count" doc:"Latency samples behind the percentiles"`
}

func toAggregateRow(agg *store.HourlyAggregate) AggregateRow {
	return AggregateRow{
		Provider:        agg.Provider,
		Model:           agg.Model,
		Hour:            agg.Hour,
		TotalRequests:   agg.TotalRequests,
		SuccessRequests: agg.SuccessRequests,
		FailedRequests:  agg.FailedRequests,
		TotalTokens:     agg.TotalTokens,
		TotalCostUSD:    agg.TotalCostUSD,
		AvgLatencyMS:    agg.AvgLatencyMS,
		P50LatencyMS:    agg.P50LatencyMS,
		P95LatencyMS:    agg.P95LatencyMS,
		P99LatencyMS:    agg.P99LatencyMS,
		ErrorRate:       agg.ErrorRate,
		SampleCount:     agg.SampleCount,
	}
}

// EventRow is the REST representation of one probe outcome from the
// append-only history log.
type EventRow struct {
	Provider       string              `json:"provider"`
	Model          string              `json:"model"`
	Gateway        string              `json:"gateway,omitempty"`
	CheckedAt      time.Time           `json:"checked_at"`
	Status         status.ProbeStatus  `json:"status"`
	ResponseTimeMS int64               `json:"response_time_ms"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	HTTPStatusCode int                 `json:"http_status_code,omitempty"`
	BreakerState   status.BreakerState `json:"breaker_state" doc:"Breaker state after the result was applied"`
}

func toEventRow(ev *store.HealthCheckEvent) EventRow {
	return EventRow{
		Provider:       ev.Provider,
		Model:          ev.Model,
		Gateway:        ev.Gateway,
		CheckedAt:      ev.CheckedAt,
		Status:         ev.Status,
		ResponseTimeMS: ev.ResponseTimeMS,
		ErrorMessage:   ev.ErrorMessage,
		HTTPStatusCode: ev.HTTPStatusCode,
		BreakerState:   ev.BreakerState,
	}
}

// ProviderTraffic is the cached last-24h request rollup for one provider.
type ProviderTraffic struct {
	Provider     string    `json:"provider"`
	Requests     int64     `json:"requests"`
	Successes    int64     `json:"successes"`
	Failures     int64     `json:"failures"`
	AvgLatencyMS float64   `json:"avg_latency_ms"`
	ErrorRate    float64   `json:"error_rate"`
	ComputedAt   time.Time `json:"computed_at" doc:"When this rollup was computed"`
}

func toProviderTraffic(sum *store.ProviderSummary) ProviderTraffic {
	return ProviderTraffic{
		Provider:     sum.Provider,
		Requests:     sum.Requests,
		Successes:    sum.Successes,
		Failures:     sum.Failures,
		AvgLatencyMS: sum.AvgLatencyMS,
		ErrorRate:    sum.ErrorRate,
		ComputedAt:   sum.ComputedAt,
	}
}

// DowntimeDetail is the REST representation of a platform outage.
type DowntimeDetail struct {
	ID              string                `json:"id"`
	StartedAt       time.Time             `json:"started_at"`
	DetectedAt      time.Time             `json:"detected_at"`
	EndedAt         *time.Time            `json:"ended_at,omitempty"`
	DurationSeconds int64                 `json:"duration_seconds" doc:"Zero until resolved"`
	Status          status.DowntimeStatus `json:"status"`
	LogsSnapshot    string                `json:"logs_snapshot,omitempty"`
	MetricsSnapshot string                `json:"metrics_snapshot,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func toDowntimeDetail(d *store.DowntimeIncident) DowntimeDetail {
	return DowntimeDetail{
		ID:              d.ID,
		StartedAt:       d.StartedAt,
		DetectedAt:      d.DetectedAt,
		EndedAt:         d.EndedAt,
		DurationSeconds: d.DurationSeconds,
		Status:          d.Status,
		LogsSnapshot:    d.LogsSnapshot,
		MetricsSnapshot: d.MetricsSnapshot,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}
