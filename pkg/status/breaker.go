// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package status

// BreakerState is the circuit breaker position for a single target.
type BreakerState string

const (
	// BreakerClosed lets probes through on the normal schedule.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen suppresses normal probing; only spaced trial probes run.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen is the recovery window after a successful trial probe.
	BreakerHalfOpen BreakerState = "half_open"
)

// Valid reports whether s is a recognized breaker state.
func (s BreakerState) Valid() bool {
	switch s {
	case BreakerClosed, BreakerOpen, BreakerHalfOpen:
		return true
	default:
		return false
	}
}
