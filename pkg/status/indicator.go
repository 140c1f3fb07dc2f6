// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package status

import (
	"strings"

	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
)

// Indicator is the public status-page state of a target, provider, or the
// platform as a whole.
type Indicator string

const (
	IndicatorOperational   Indicator = "operational"
	IndicatorDegraded      Indicator = "degraded"
	IndicatorPartialOutage Indicator = "partial_outage"
	IndicatorMajorOutage   Indicator = "major_outage"
	IndicatorOffline       Indicator = "offline"
)

// Valid reports whether i is a recognized indicator.
func (i Indicator) Valid() bool {
	switch i {
	case IndicatorOperational, IndicatorDegraded, IndicatorPartialOutage,
		IndicatorMajorOutage, IndicatorOffline:
		return true
	default:
		return false
	}
}

// Rank orders indicators from healthiest (0) to most severe. Offline ranks
// between degraded and partial_outage: a deliberately disabled target is not
// an outage.
func (i Indicator) Rank() int {
	switch i {
	case IndicatorOperational:
		return 0
	case IndicatorDegraded:
		return 1
	case IndicatorOffline:
		return 2
	case IndicatorPartialOutage:
		return 3
	case IndicatorMajorOutage:
		return 4
	default:
		return 0
	}
}

// Worst returns the more severe of the two indicators.
func Worst(a, b Indicator) Indicator {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseIndicator parses a case-insensitive string into an Indicator.
func ParseIndicator(s string) (Indicator, error) {
	i := Indicator(strings.ToLower(s))
	if !i.Valid() {
		return "", pharoserr.Errorf(pharoserr.CodeServerRequestInvalid,
			"invalid status indicator: %q", s)
	}
	return i, nil
}
