// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package store

import (
	"time"

	"github.com/pharos-dev/pharos/pkg/status"
)

// --- Health record types ---

// HealthRecord is the persistent health state of one monitored
// (provider, model) target. The (Provider, Model) pair is the record key;
// Gateway names the route probes travel through.
type HealthRecord struct {
	Provider string
	Model    string
	Gateway  string

	// Tier and CheckIntervalSeconds are owned by the tier classifier.
	Tier                 status.Tier
	CheckIntervalSeconds int

	// Probe outcome fields, owned by the scheduler's result path.
	LastStatus         status.ProbeStatus
	LastResponseTimeMS int64
	LastCalledAt       *time.Time
	LastSuccessAt      *time.Time
	LastFailureAt      *time.Time
	LastErrorMessage   string

	CallCount             int64
	SuccessCount          int64
	ErrorCount            int64
	AverageResponseTimeMS float64

	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	BreakerState         status.BreakerState

	// Rolling uptime windows, refreshed from the event log.
	UptimePct24h float64
	UptimePct7d  float64
	UptimePct30d float64

	// Traffic volume, supplied by the external usage feed.
	UsageCount24h int64
	UsageCount7d  int64
	UsageCount30d int64

	// PriorityScore is the last computed scheduling score. Ordering always
	// uses freshly computed scores; this column exists for observability.
	PriorityScore float64

	NextCheckAt time.Time
	Enabled     bool

	// ClaimedUntil is the scheduler lease. Zero means unclaimed; a past
	// value means the previous claimant died and the record is up for grabs.
	ClaimedUntil time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UsageCounts is one usage-feed sample for a target.
type UsageCounts struct {
	Count24h int64
	Count7d  int64
	Count30d int64
}

// UptimeWindows carries refreshed rolling uptime percentages.
type UptimeWindows struct {
	Pct24h float64
	Pct7d  float64
	Pct30d float64
}

// --- Incident types ---

// Incident is a bounded interval during which one target was unhealthy.
// At most one unresolved incident exists per (provider, model); a failure
// after resolution opens a new incident, never reopens an old one.
type Incident struct {
	ID       string
	Provider string
	Model    string
	Gateway  string

	Type     status.IncidentType
	Severity status.Severity
	State    status.IncidentState

	StartedAt       time.Time
	ResolvedAt      *time.Time
	DurationSeconds int64

	ErrorCount       int64
	AffectedRequests int64

	// AckBy and Note are set by the ops acknowledge/annotate path.
	AckBy string
	Note  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// --- History types ---

// HealthCheckEvent is one appended probe outcome. Events are leaves:
// written once by the history recorder, read by the aggregator and uptime
// refresh, deleted only by retention.
type HealthCheckEvent struct {
	ID             string
	Provider       string
	Model          string
	Gateway        string
	CheckedAt      time.Time
	Status         status.ProbeStatus
	ResponseTimeMS int64
	ErrorMessage   string
	HTTPStatusCode int
	BreakerState   status.BreakerState
}

// --- Aggregate types ---

// HourlyAggregate is one hour of rolled-up traffic for one target.
// Rows are upsertable while the hour is open (plus a short grace window)
// and immutable afterwards; the aggregator enforces the cutoff.
type HourlyAggregate struct {
	Provider string
	Model    string
	Hour     time.Time // truncated to the hour, UTC

	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64

	TotalTokens  int64
	TotalCostUSD float64

	AvgLatencyMS float64
	P50LatencyMS float64
	P95LatencyMS float64
	P99LatencyMS float64

	// ErrorRate is FailedRequests / TotalRequests, 0 when there was no
	// traffic. Range [0, 1].
	ErrorRate float64

	// SampleCount is how many latency samples back the percentiles.
	SampleCount int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProviderSummary is the fast last-24h rollup for one provider, recomputed
// on a short cycle rather than on every write.
type ProviderSummary struct {
	Provider     string
	Requests     int64
	Successes    int64
	Failures     int64
	AvgLatencyMS float64
	ErrorRate    float64
	ComputedAt   time.Time
}

// --- Downtime types ---

// DowntimeIncident tracks a whole-service outage detected by an external
// liveness probe. Distinct from the per-target Incident.
type DowntimeIncident struct {
	ID              string
	StartedAt       time.Time
	DetectedAt      time.Time
	EndedAt         *time.Time
	DurationSeconds int64
	Status          status.DowntimeStatus

	// Free-form snapshots captured when the outage was detected.
	LogsSnapshot    string
	MetricsSnapshot string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// --- Query options ---

// ListOpts provides pagination parameters for list operations.
type ListOpts struct {
	Limit  int
	Offset int
}

// HealthFilter narrows health-record listings.
type HealthFilter struct {
	Provider    string
	EnabledOnly bool
	Limit       int
	Offset      int
}

// IncidentFilter narrows incident listings.
type IncidentFilter struct {
	Provider       string
	Model          string
	UnresolvedOnly bool
	Since          time.Time
	Limit          int
	Offset         int
}
