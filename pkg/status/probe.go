// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package status

// ProbeStatus is the outcome category of a single health check.
type ProbeStatus string

const (
	ProbeOK          ProbeStatus = "ok"
	ProbeError       ProbeStatus = "error"
	ProbeTimeout     ProbeStatus = "timeout"
	ProbeRateLimited ProbeStatus = "rate_limited"
)

// Valid reports whether p is a recognized probe outcome.
func (p ProbeStatus) Valid() bool {
	switch p {
	case ProbeOK, ProbeError, ProbeTimeout, ProbeRateLimited:
		return true
	default:
		return false
	}
}

// Failure reports whether the outcome counts against the target's health.
func (p ProbeStatus) Failure() bool {
	return p != ProbeOK
}
