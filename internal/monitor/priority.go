// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"math"
	"time"

	"github.com/pharos-dev/pharos/internal/store"
	"github.com/pharos-dev/pharos/pkg/status"
)

// Tier base scores. Higher means probed sooner when checks compete for
// worker slots.
const (
	scoreTierCritical = 1000
	scoreTierPopular  = 500
	scoreTierStandard = 100
	scoreTierOnDemand = 10
	scoreTierUnknown  = 50
)

const (
	// scoreStalenessAfter is how stale a record must be before the
	// anti-starvation term kicks in.
	scoreStalenessAfter = 24 * time.Hour

	// scoreStalenessCap bounds the staleness term at one week so a
	// never-checked record cannot dwarf the failure term.
	scoreStalenessCap = 168 * time.Hour
)

// PriorityScore ranks a record's urgency for the scheduler's work queue.
// Deterministic: identical inputs and now always produce the same score.
func PriorityScore(rec *store.HealthRecord, now time.Time) float64 {
	var score float64
	switch rec.Tier {
	case status.TierCritical:
		score = scoreTierCritical
	case status.TierPopular:
		score = scoreTierPopular
	case status.TierStandard:
		score = scoreTierStandard
	case status.TierOnDemand:
		score = scoreTierOnDemand
	default:
		score = scoreTierUnknown
	}

	if rec.UsageCount24h > 0 {
		score += 10 * math.Log(float64(rec.UsageCount24h)+1)
	}

	score += 100 * float64(rec.ConsecutiveFailures)

	if rec.UptimePct24h < 95 {
		score += 5 * (100 - rec.UptimePct24h)
	}

	// A record that has never been checked scores the full staleness cap,
	// which front-loads first probes of newly registered targets.
	stale := scoreStalenessCap
	if rec.LastCalledAt != nil {
		stale = now.Sub(*rec.LastCalledAt)
	}
	if stale > scoreStalenessAfter {
		if stale > scoreStalenessCap {
			stale = scoreStalenessCap
		}
		score += 2 * stale.Hours()
	}

	return score
}
