// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package sqlite

import (
	"fmt"
	"time"
)

// timeLayout is a fixed-width RFC 3339 layout: always UTC, always nine
// fractional digits. The due-selection and lease queries compare stored
// strings with <=, which is only correct when lexicographic order matches
// chronological order. time.RFC3339Nano trims trailing zeros and would
// break that.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// zeroTime is the stored form of time.Time{}. It sorts before every real
// timestamp, so a zero claimed_until reads as "unclaimed".
var zeroTime = time.Time{}.UTC().Format(timeLayout)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// formatTimePtr maps nil to the empty string for optional timestamp columns.
func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
