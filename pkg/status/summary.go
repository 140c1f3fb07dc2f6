// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package status

import "time"

// TargetStatus is the point-in-time public view of one monitored
// (provider, model) pair. All fields are snapshots safe to serialize to JSON;
// no credentials or probe internals are exposed.
type TargetStatus struct {
	Provider            string       `json:"provider"`
	Model               string       `json:"model"`
	Gateway             string       `json:"gateway,omitempty"`
	Indicator           Indicator    `json:"indicator"`
	Tier                Tier         `json:"tier"`
	BreakerState        BreakerState `json:"breaker_state"`
	Enabled             bool         `json:"enabled"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	UptimePct24h        float64      `json:"uptime_pct_24h"`
	UptimePct7d         float64      `json:"uptime_pct_7d"`
	AvgResponseMS       float64      `json:"avg_response_ms"`
	LastCheckedAt       *time.Time   `json:"last_checked_at,omitempty"`
	LastError           string       `json:"last_error,omitempty"`
	NextCheckAt         *time.Time   `json:"next_check_at,omitempty"`
}

// ProviderStatus rolls the targets of one provider up to a single indicator.
type ProviderStatus struct {
	Provider    string         `json:"provider"`
	Indicator   Indicator      `json:"indicator"`
	Operational int            `json:"operational"`
	Total       int            `json:"total"`
	Targets     []TargetStatus `json:"targets,omitempty"`
}

// PlatformStatus is the top of the status page: a single indicator for the
// whole platform plus the per-provider breakdown.
type PlatformStatus struct {
	Indicator       Indicator        `json:"indicator"`
	Providers       []ProviderStatus `json:"providers"`
	OpenIncidents   int              `json:"open_incidents"`
	OngoingDowntime bool             `json:"ongoing_downtime"`
	GeneratedAt     time.Time        `json:"generated_at"`
}
