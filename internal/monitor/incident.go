// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pharos-dev/pharos/internal/store"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
)

// IncidentTracker opens, escalates and resolves per-target incidents from
// probe outcomes. It keeps no state of its own; the incident store and the
// one-unresolved-per-target constraint it enforces are the ground truth.
type IncidentTracker struct {
	incidents store.IncidentStore
	nowFunc   func() time.Time
}

// NewIncidentTracker creates a tracker over the given incident store.
func NewIncidentTracker(incidents store.IncidentStore) (*IncidentTracker, error) {
	if incidents == nil {
		return nil, pharoserr.New(pharoserr.CodeConfigValidateInvalidValue,
			"incident tracker requires an incident store")
	}
	return &IncidentTracker{incidents: incidents, nowFunc: time.Now}, nil
}

// SetNowFunc overrides the time source (for testing).
func (t *IncidentTracker) SetNowFunc(fn func() time.Time) { t.nowFunc = fn }

// RecordFailure notes one failed probe for rec. The first failure out of a
// healthy state opens an incident; later failures escalate the one already
// open. rec must already carry the post-probe streaks and breaker state.
func (t *IncidentTracker) RecordFailure(ctx context.Context, rec *store.HealthRecord, res ProbeResult, at time.Time) error {
	inc, err := t.incidents.GetUnresolved(ctx, rec.Provider, rec.Model)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"looking up unresolved incident for %s/%s", rec.Provider, rec.Model)
	}

	if inc != nil {
		return t.escalate(ctx, inc, rec)
	}
	return t.open(ctx, rec, res, at)
}

func (t *IncidentTracker) open(ctx context.Context, rec *store.HealthRecord, res ProbeResult, at time.Time) error {
	now := t.nowFunc()
	inc := &store.Incident{
		ID:               uuid.New().String(),
		Provider:         rec.Provider,
		Model:            rec.Model,
		Gateway:          rec.Gateway,
		Type:             classifyIncidentType(res),
		Severity:         severityFor(rec.ConsecutiveFailures, rec.Tier),
		State:            status.IncidentActive,
		StartedAt:        at,
		ErrorCount:       1,
		AffectedRequests: 1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := t.incidents.Open(ctx, inc)
	if errors.Is(err, store.ErrConflict) {
		// Another instance opened one between our lookup and insert.
		// The invariant held; escalate that incident instead.
		existing, getErr := t.incidents.GetUnresolved(ctx, rec.Provider, rec.Model)
		if getErr != nil {
			return pharoserr.Wrapf(getErr, pharoserr.CodeStoreDatabaseFailure,
				"re-reading incident for %s/%s after open conflict", rec.Provider, rec.Model)
		}
		return t.escalate(ctx, existing, rec)
	}
	if err != nil {
		return pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"opening incident for %s/%s", rec.Provider, rec.Model)
	}

	slog.Warn("incident opened",
		"incident_id", inc.ID, "provider", inc.Provider, "model", inc.Model,
		"type", inc.Type, "severity", inc.Severity)
	return nil
}

func (t *IncidentTracker) escalate(ctx context.Context, inc *store.Incident, rec *store.HealthRecord) error {
	inc.ErrorCount++
	inc.AffectedRequests++
	inc.Severity = status.MaxSeverity(inc.Severity, severityFor(rec.ConsecutiveFailures, rec.Tier))
	inc.UpdatedAt = t.nowFunc()

	if err := t.incidents.Update(ctx, inc); err != nil {
		return pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"escalating incident %s", inc.ID)
	}
	return nil
}

// RecordRecovery resolves the unresolved incident for rec, if any. Callers
// invoke it only once the target is fully healthy again (breaker closed).
// Resolution stamps resolvedAt and the duration exactly once; a resolved
// incident is never reopened.
func (t *IncidentTracker) RecordRecovery(ctx context.Context, rec *store.HealthRecord, at time.Time) error {
	inc, err := t.incidents.GetUnresolved(ctx, rec.Provider, rec.Model)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"looking up unresolved incident for %s/%s", rec.Provider, rec.Model)
	}

	resolved := at
	inc.State = status.IncidentResolved
	inc.ResolvedAt = &resolved
	inc.DurationSeconds = int64(resolved.Sub(inc.StartedAt).Seconds())
	inc.UpdatedAt = t.nowFunc()

	if err := t.incidents.Update(ctx, inc); err != nil {
		return pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"resolving incident %s", inc.ID)
	}

	slog.Info("incident resolved",
		"incident_id", inc.ID, "provider", inc.Provider, "model", inc.Model,
		"duration_seconds", inc.DurationSeconds)
	return nil
}

// Acknowledge marks an unresolved incident as acknowledged and annotates
// it. Acknowledged incidents still count as open.
func (t *IncidentTracker) Acknowledge(ctx context.Context, id, by, note string) (*store.Incident, error) {
	inc, err := t.incidents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.State == status.IncidentResolved {
		return nil, pharoserr.Errorf(pharoserr.CodeStoreConflict,
			"incident %s is already resolved", id)
	}

	inc.State = status.IncidentAcknowledged
	inc.AckBy = by
	if note != "" {
		inc.Note = note
	}
	inc.UpdatedAt = t.nowFunc()

	if err := t.incidents.Update(ctx, inc); err != nil {
		return nil, pharoserr.Wrapf(err, pharoserr.CodeStoreDatabaseFailure,
			"acknowledging incident %s", id)
	}
	return inc, nil
}

// classifyIncidentType maps the first failure's category to an incident
// type. The type is fixed at creation; only severity escalates later.
func classifyIncidentType(res ProbeResult) status.IncidentType {
	switch res.Status {
	case status.ProbeTimeout:
		return status.IncidentTimeout
	case status.ProbeRateLimited:
		return status.IncidentRateLimit
	default:
		// Connection failures carry no HTTP status; they and 5xx mean
		// the target is down, anything else is a degradation.
		if res.HTTPStatusCode == 0 || res.HTTPStatusCode >= 500 {
			return status.IncidentOutage
		}
		return status.IncidentDegradation
	}
}

// severityFor grades an incident from the failure streak, bumping targets
// in the critical tier one level up.
func severityFor(consecutiveFailures int, tier status.Tier) status.Severity {
	var sev status.Severity
	switch {
	case consecutiveFailures >= 10:
		sev = status.SeverityCritical
	case consecutiveFailures >= 5:
		sev = status.SeverityHigh
	case consecutiveFailures >= 3:
		sev = status.SeverityMedium
	default:
		sev = status.SeverityLow
	}

	if tier == status.TierCritical {
		switch sev {
		case status.SeverityLow:
			sev = status.SeverityMedium
		case status.SeverityMedium:
			sev = status.SeverityHigh
		case status.SeverityHigh:
			sev = status.SeverityCritical
		}
	}
	return sev
}
