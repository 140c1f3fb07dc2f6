// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package store

import "context"

// IncidentStore manages per-target incidents.
type IncidentStore interface {
	// Open creates a new incident. The backend enforces the
	// one-unresolved-incident-per-target invariant and returns ErrConflict
	// when one already exists.
	Open(ctx context.Context, inc *Incident) error

	Get(ctx context.Context, id string) (*Incident, error)

	// GetUnresolved returns the live (active or acknowledged) incident for
	// a target, or ErrNotFound.
	GetUnresolved(ctx context.Context, provider, model string) (*Incident, error)

	Update(ctx context.Context, inc *Incident) error
	List(ctx context.Context, filter IncidentFilter) ([]*Incident, error)
	CountUnresolved(ctx context.Context) (int64, error)
	Close() error
}

// DowntimeStore manages platform-level downtime incidents.
type DowntimeStore interface {
	// Open creates a new downtime incident; returns ErrConflict while one
	// is still ongoing.
	Open(ctx context.Context, d *DowntimeIncident) error

	Get(ctx context.Context, id string) (*DowntimeIncident, error)

	// GetOngoing returns the current unresolved downtime, or ErrNotFound.
	GetOngoing(ctx context.Context) (*DowntimeIncident, error)

	Update(ctx context.Context, d *DowntimeIncident) error
	List(ctx context.Context, opts ListOpts) ([]*DowntimeIncident, error)
	Close() error
}
