// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

// Package stats holds the small numeric helpers shared by the tier
// classifier and the hourly aggregator. Everything here is pure and
// allocation-light; callers pass plain slices.
package stats

import (
	"math"
	"sort"
)

// Percentile returns the nearest-rank p-th percentile of values.
// The input slice is not modified. ok is false when values is empty or
// p is outside (0, 100].
func Percentile(values []float64, p float64) (float64, bool) {
	if len(values) == 0 || p <= 0 || p > 100 {
		return 0, false
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1], true
}

// PercentileInt is Percentile over int64 values.
func PercentileInt(values []int64, p float64) (int64, bool) {
	if len(values) == 0 {
		return 0, false
	}

	floats := make([]float64, len(values))
	for i, v := range values {
		floats[i] = float64(v)
	}

	got, ok := Percentile(floats, p)
	if !ok {
		return 0, false
	}
	return int64(got), true
}

// Mean returns the arithmetic mean of values, or ok=false when empty.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}
