// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package store

import (
	"time"

	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
)

// Validate checks that the HealthRecord is internally consistent.
func (r HealthRecord) Validate() error {
	if r.Provider == "" {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "health record: Provider is required")
	}
	if r.Model == "" {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "health record: Model is required")
	}
	if !r.Tier.Valid() {
		return pharoserr.Errorf(pharoserr.CodeStoreInvalidInput, "health record: invalid tier %q", r.Tier)
	}
	if !r.BreakerState.Valid() {
		return pharoserr.Errorf(pharoserr.CodeStoreInvalidInput, "health record: invalid breaker state %q", r.BreakerState)
	}
	if r.CheckIntervalSeconds <= 0 {
		return pharoserr.Errorf(pharoserr.CodeStoreInvalidInput, "health record: CheckIntervalSeconds must be > 0, got %d", r.CheckIntervalSeconds)
	}
	if r.ConsecutiveFailures < 0 || r.ConsecutiveSuccesses < 0 {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "health record: streak counters must be >= 0")
	}
	// A success resets the failure streak and vice versa; both being
	// nonzero means a writer skipped the breaker transition.
	if r.ConsecutiveFailures > 0 && r.ConsecutiveSuccesses > 0 {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "health record: failure and success streaks are mutually exclusive")
	}
	if r.CallCount < 0 || r.SuccessCount < 0 || r.ErrorCount < 0 {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "health record: counters must be >= 0")
	}
	if r.LastStatus != "" && !r.LastStatus.Valid() {
		return pharoserr.Errorf(pharoserr.CodeStoreInvalidInput, "health record: invalid last status %q", r.LastStatus)
	}
	return nil
}

// Validate checks that the Incident has all required fields set correctly.
func (i Incident) Validate() error {
	if i.ID == "" {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "incident: ID is required")
	}
	if i.Provider == "" {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "incident: Provider is required")
	}
	if i.Model == "" {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "incident: Model is required")
	}
	if !i.Type.Valid() {
		return pharoserr.Errorf(pharoserr.CodeStoreInvalidInput, "incident: invalid type %q", i.Type)
	}
	if !i.Severity.Valid() {
		return pharoserr.Errorf(pharoserr.CodeStoreInvalidInput, "incident: invalid severity %q", i.Severity)
	}
	if !i.State.Valid() {
		return pharoserr.Errorf(pharoserr.CodeStoreInvalidInput, "incident: invalid state %q", i.State)
	}
	if i.StartedAt.IsZero() {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "incident: StartedAt is required")
	}
	if i.State == status.IncidentResolved && i.ResolvedAt == nil {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "incident: resolved incidents require ResolvedAt")
	}
	return nil
}

// Validate checks that the HealthCheckEvent has all required fields set.
func (e HealthCheckEvent) Validate() error {
	if e.ID == "" {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "event: ID is required")
	}
	if e.Provider == "" {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "event: Provider is required")
	}
	if e.Model == "" {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "event: Model is required")
	}
	if !e.Status.Valid() {
		return pharoserr.Errorf(pharoserr.CodeStoreInvalidInput, "event: invalid status %q", e.Status)
	}
	if e.CheckedAt.IsZero() {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "event: CheckedAt is required")
	}
	return nil
}

// Validate checks that the HourlyAggregate has a well-formed key and sane
// counts.
func (a HourlyAggregate) Validate() error {
	if a.Provider == "" {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "aggregate: Provider is required")
	}
	if a.Model == "" {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "aggregate: Model is required")
	}
	if a.Hour.IsZero() {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "aggregate: Hour is required")
	}
	if !a.Hour.Equal(a.Hour.Truncate(time.Hour)) {
		return pharoserr.Errorf(pharoserr.CodeStoreInvalidInput, "aggregate: Hour must be truncated to the hour, got %s", a.Hour)
	}
	if a.TotalRequests < 0 || a.SuccessRequests < 0 || a.FailedRequests < 0 {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "aggregate: request counts must be >= 0")
	}
	if a.ErrorRate < 0 || a.ErrorRate > 1 {
		return pharoserr.Errorf(pharoserr.CodeStoreInvalidInput, "aggregate: ErrorRate must be in [0, 1], got %v", a.ErrorRate)
	}
	return nil
}

// Validate checks that the DowntimeIncident has all required fields set.
func (d DowntimeIncident) Validate() error {
	if d.ID == "" {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "downtime: ID is required")
	}
	if d.StartedAt.IsZero() {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "downtime: StartedAt is required")
	}
	if !d.Status.Valid() {
		return pharoserr.Errorf(pharoserr.CodeStoreInvalidInput, "downtime: invalid status %q", d.Status)
	}
	if d.Status == status.DowntimeResolved && d.EndedAt == nil {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "downtime: resolved downtime requires EndedAt")
	}
	return nil
}

// Validate checks that usage counts are non-negative.
func (u UsageCounts) Validate() error {
	if u.Count24h < 0 || u.Count7d < 0 || u.Count30d < 0 {
		return pharoserr.New(pharoserr.CodeStoreInvalidInput, "usage counts must be >= 0")
	}
	return nil
}
