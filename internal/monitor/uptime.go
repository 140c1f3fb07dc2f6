// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"context"
	"time"

	"github.com/pharos-dev/pharos/internal/store"
)

// uptimeWindows recomputes the rolling 24h/7d/30d uptime percentages for
// one target from the event log. A window with no probes reports 100: a
// target nobody has evidence against is not penalized by the scorer.
func uptimeWindows(ctx context.Context, events store.EventStore, provider, model string, now time.Time) (store.UptimeWindows, error) {
	var w store.UptimeWindows

	pct24, err := uptimePct(ctx, events, provider, model, now.Add(-24*time.Hour))
	if err != nil {
		return w, err
	}
	pct7d, err := uptimePct(ctx, events, provider, model, now.Add(-7*24*time.Hour))
	if err != nil {
		return w, err
	}
	pct30d, err := uptimePct(ctx, events, provider, model, now.Add(-30*24*time.Hour))
	if err != nil {
		return w, err
	}

	w.Pct24h, w.Pct7d, w.Pct30d = pct24, pct7d, pct30d
	return w, nil
}

func uptimePct(ctx context.Context, events store.EventStore, provider, model string, since time.Time) (float64, error) {
	ok, total, err := events.UptimeSince(ctx, provider, model, since)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 100, nil
	}
	return 100 * float64(ok) / float64(total), nil
}
