// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package status

// IncidentType classifies what kind of failure opened an incident. The type
// is fixed when the incident opens and never rewritten.
type IncidentType string

const (
	IncidentOutage      IncidentType = "outage"
	IncidentDegradation IncidentType = "degradation"
	IncidentTimeout     IncidentType = "timeout"
	IncidentRateLimit   IncidentType = "rate_limit"
)

// Valid reports whether t is a recognized incident type.
func (t IncidentType) Valid() bool {
	switch t {
	case IncidentOutage, IncidentDegradation, IncidentTimeout, IncidentRateLimit:
		return true
	default:
		return false
	}
}

// Severity grades how bad an incident is. Severity only escalates while an
// incident stays active; it never steps back down.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a recognized severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank orders severities from mildest (0) to critical (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// MaxSeverity returns the more severe of the two.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// IncidentState is the lifecycle position of a per-target incident.
// Acknowledged incidents still count as unresolved for the
// one-active-incident-per-target rule.
type IncidentState string

const (
	IncidentActive       IncidentState = "active"
	IncidentAcknowledged IncidentState = "acknowledged"
	IncidentResolved     IncidentState = "resolved"
)

// Valid reports whether s is a recognized incident state.
func (s IncidentState) Valid() bool {
	switch s {
	case IncidentActive, IncidentAcknowledged, IncidentResolved:
		return true
	default:
		return false
	}
}

// Unresolved reports whether the incident is still live.
func (s IncidentState) Unresolved() bool {
	return s == IncidentActive || s == IncidentAcknowledged
}

// DowntimeStatus is the lifecycle position of a platform-level downtime
// incident.
type DowntimeStatus string

const (
	DowntimeOngoing       DowntimeStatus = "ongoing"
	DowntimeInvestigating DowntimeStatus = "investigating"
	DowntimeResolved      DowntimeStatus = "resolved"
)

// Valid reports whether s is a recognized downtime status.
func (s DowntimeStatus) Valid() bool {
	switch s {
	case DowntimeOngoing, DowntimeInvestigating, DowntimeResolved:
		return true
	default:
		return false
	}
}

// Ongoing reports whether the downtime is still unresolved.
func (s DowntimeStatus) Ongoing() bool {
	return s == DowntimeOngoing || s == DowntimeInvestigating
}
