// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"sort"
	"time"

	"github.com/pharos-dev/pharos/internal/store"
	"github.com/pharos-dev/pharos/pkg/status"
)

// TargetIndicator derives the public indicator for one record. Failure is
// reflected promptly (the very next write shows it); recovery is
// conservative, reading operational only once the breaker has closed.
func TargetIndicator(rec *store.HealthRecord) status.Indicator {
	switch {
	case !rec.Enabled:
		return status.IndicatorOffline
	case rec.BreakerState == status.BreakerOpen:
		return status.IndicatorMajorOutage
	case rec.BreakerState == status.BreakerHalfOpen:
		return status.IndicatorPartialOutage
	case rec.ConsecutiveFailures > 0 || rec.UptimePct24h < 95:
		return status.IndicatorDegraded
	default:
		return status.IndicatorOperational
	}
}

// BuildTargetStatus maps a record to its public status-page view.
func BuildTargetStatus(rec *store.HealthRecord) status.TargetStatus {
	ts := status.TargetStatus{
		Provider:            rec.Provider,
		Model:               rec.Model,
		Gateway:             rec.Gateway,
		Indicator:           TargetIndicator(rec),
		Tier:                rec.Tier,
		BreakerState:        rec.BreakerState,
		Enabled:             rec.Enabled,
		ConsecutiveFailures: rec.ConsecutiveFailures,
		UptimePct24h:        rec.UptimePct24h,
		UptimePct7d:         rec.UptimePct7d,
		AvgResponseMS:       rec.AverageResponseTimeMS,
		LastError:           rec.LastErrorMessage,
		LastCheckedAt:       rec.LastCalledAt,
	}
	if rec.Enabled {
		next := rec.NextCheckAt
		ts.NextCheckAt = &next
	}
	return ts
}

// BuildProviderStatus rolls one provider's records up to a single
// indicator. Disabled targets are deliberate and do not drag the provider
// down; a provider with everything disabled reads offline.
func BuildProviderStatus(provider string, recs []*store.HealthRecord) status.ProviderStatus {
	ps := status.ProviderStatus{
		Provider:  provider,
		Indicator: status.IndicatorOperational,
		Total:     len(recs),
	}

	var enabled, down int
	worst := status.IndicatorOperational
	for _, rec := range recs {
		ts := BuildTargetStatus(rec)
		ps.Targets = append(ps.Targets, ts)

		if !rec.Enabled {
			continue
		}
		enabled++
		if ts.Indicator == status.IndicatorOperational {
			ps.Operational++
		}
		if ts.Indicator == status.IndicatorMajorOutage {
			down++
			continue
		}
		worst = status.Worst(worst, ts.Indicator)
	}

	sort.Slice(ps.Targets, func(i, j int) bool {
		return ps.Targets[i].Model < ps.Targets[j].Model
	})

	switch {
	case len(recs) > 0 && enabled == 0:
		ps.Indicator = status.IndicatorOffline
	case down > 0 && down == enabled:
		ps.Indicator = status.IndicatorMajorOutage
	case down > 0:
		ps.Indicator = status.IndicatorPartialOutage
	default:
		ps.Indicator = worst
	}
	return ps
}

// BuildPlatformStatus rolls provider states up to the top of the status
// page. Ongoing platform downtime overrides everything.
func BuildPlatformStatus(providers []status.ProviderStatus, openIncidents int64, ongoingDowntime bool, generatedAt time.Time) status.PlatformStatus {
	plat := status.PlatformStatus{
		Indicator:       status.IndicatorOperational,
		Providers:       providers,
		OpenIncidents:   int(openIncidents),
		OngoingDowntime: ongoingDowntime,
		GeneratedAt:     generatedAt,
	}

	var counted, down int
	worst := status.IndicatorOperational
	for _, ps := range providers {
		if ps.Indicator == status.IndicatorOffline {
			continue
		}
		counted++
		if ps.Indicator == status.IndicatorMajorOutage {
			down++
			continue
		}
		worst = status.Worst(worst, ps.Indicator)
	}

	switch {
	case down > 0 && down == counted:
		plat.Indicator = status.IndicatorMajorOutage
	case down > 0:
		plat.Indicator = status.IndicatorPartialOutage
	default:
		plat.Indicator = worst
	}

	if ongoingDowntime {
		plat.Indicator = status.IndicatorMajorOutage
	}
	return plat
}

// groupByProvider splits records into per-provider groups, providers
// sorted ascending.
func groupByProvider(recs []*store.HealthRecord) []status.ProviderStatus {
	byProvider := make(map[string][]*store.HealthRecord)
	for _, rec := range recs {
		byProvider[rec.Provider] = append(byProvider[rec.Provider], rec)
	}

	names := make([]string, 0, len(byProvider))
	for name := range byProvider {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]status.ProviderStatus, 0, len(names))
	for _, name := range names {
		out = append(out, BuildProviderStatus(name, byProvider[name]))
	}
	return out
}
