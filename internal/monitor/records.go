// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"context"

	"github.com/pharos-dev/pharos/internal/store"
)

// listPageSize is the page length batch jobs walk the fleet with.
const listPageSize = 1000

// listRecords pages through every health record matching the filter. Batch
// jobs use this instead of List directly so fleets larger than one page are
// still covered in full. The filter's Limit and Offset are ignored.
func listRecords(ctx context.Context, health store.HealthStore, filter store.HealthFilter) ([]*store.HealthRecord, error) {
	var all []*store.HealthRecord
	for offset := 0; ; offset += listPageSize {
		filter.Limit = listPageSize
		filter.Offset = offset
		page, err := health.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < listPageSize {
			return all, nil
		}
	}
}

// listAllEnabled pages through every enabled health record.
func listAllEnabled(ctx context.Context, health store.HealthStore) ([]*store.HealthRecord, error) {
	return listRecords(ctx, health, store.HealthFilter{EnabledOnly: true})
}
