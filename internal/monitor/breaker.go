// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"github.com/pharos-dev/pharos/internal/store"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
)

const (
	// DefaultOpenThreshold is the consecutive-failure count that trips a
	// closed breaker open.
	DefaultOpenThreshold = 5

	// DefaultRecoveryThreshold is how many successes inside the half-open
	// window move the breaker back to closed. The trial success that moved
	// it from open to half-open is not part of that count.
	DefaultRecoveryThreshold = 2
)

// Breaker holds the circuit thresholds. It carries no per-target state;
// all state lives in the HealthRecord it is applied to.
type Breaker struct {
	openThreshold     int
	recoveryThreshold int
}

// NewBreaker creates a Breaker. Non-positive thresholds fall back to the
// defaults.
func NewBreaker(openThreshold, recoveryThreshold int) *Breaker {
	if openThreshold <= 0 {
		openThreshold = DefaultOpenThreshold
	}
	if recoveryThreshold <= 0 {
		recoveryThreshold = DefaultRecoveryThreshold
	}
	return &Breaker{
		openThreshold:     openThreshold,
		recoveryThreshold: recoveryThreshold,
	}
}

// Transition is the streak and state outcome of feeding one probe result
// through the breaker.
type Transition struct {
	From                 status.BreakerState
	To                   status.BreakerState
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
}

// Changed reports whether the breaker moved to a different state.
func (t Transition) Changed() bool { return t.From != t.To }

// Next computes the streaks and breaker state after one probe outcome.
// It reads rec but never mutates it. An unknown stored state is treated
// as closed so a corrupt row degrades to normal probing instead of
// wedging the target.
func (b *Breaker) Next(rec *store.HealthRecord, ok bool) Transition {
	from := rec.BreakerState
	if !from.Valid() {
		from = status.BreakerClosed
	}
	t := Transition{From: from, To: from}

	if ok {
		t.ConsecutiveSuccesses = rec.ConsecutiveSuccesses + 1
		t.ConsecutiveFailures = 0

		switch from {
		case status.BreakerOpen:
			t.To = status.BreakerHalfOpen
		case status.BreakerHalfOpen:
			// The streak includes the trial success that entered
			// half-open; recovery counts only the successes after it.
			if t.ConsecutiveSuccesses > b.recoveryThreshold {
				t.To = status.BreakerClosed
			}
		}
		return t
	}

	t.ConsecutiveFailures = rec.ConsecutiveFailures + 1
	t.ConsecutiveSuccesses = 0

	switch from {
	case status.BreakerClosed:
		if t.ConsecutiveFailures >= b.openThreshold {
			t.To = status.BreakerOpen
		}
	case status.BreakerHalfOpen:
		// Any failure during the trial window reopens immediately.
		t.To = status.BreakerOpen
	}
	return t
}

// ValidateThresholds rejects nonsensical breaker configuration before a
// service is assembled from it.
func ValidateThresholds(openThreshold, recoveryThreshold int) error {
	if openThreshold < 0 || recoveryThreshold < 0 {
		return pharoserr.Errorf(pharoserr.CodeConfigValidateInvalidValue,
			"breaker thresholds must not be negative: open=%d recovery=%d",
			openThreshold, recoveryThreshold)
	}
	return nil
}
