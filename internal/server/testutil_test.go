// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package server_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pharos-dev/pharos/internal/monitor"
	"github.com/pharos-dev/pharos/internal/server"
	"github.com/pharos-dev/pharos/internal/store"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
)

const testAdminToken = "pharos-admin-test-token"

var testBase = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func newMonitorServer(t *testing.T, m server.Monitor) *server.Server {
	t.Helper()
	srv := newTestServer(t)
	srv.RegisterMonitor(m)
	return srv
}

func newAdminServer(t *testing.T, m server.Monitor) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		AdminToken: testAdminToken,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	srv.RegisterMonitor(m)
	return srv
}

// adminRequest builds a request carrying the test admin token.
func adminRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func jsonBody(s string) io.Reader { return strings.NewReader(s) }

func testRecord(provider, model, gateway string) *store.HealthRecord {
	return &store.HealthRecord{
		Provider:              provider,
		Model:                 model,
		Gateway:               gateway,
		Tier:                  status.TierStandard,
		CheckIntervalSeconds:  7200,
		LastStatus:            status.ProbeOK,
		LastResponseTimeMS:    180,
		CallCount:             40,
		SuccessCount:          38,
		ErrorCount:            2,
		AverageResponseTimeMS: 210.5,
		BreakerState:          status.BreakerClosed,
		UptimePct24h:          99.5,
		UptimePct7d:           99.1,
		UptimePct30d:          98.7,
		UsageCount24h:         1200,
		UsageCount7d:          9000,
		UsageCount30d:         41000,
		PriorityScore:         171.2,
		NextCheckAt:           testBase.Add(time.Hour),
		Enabled:               true,
		CreatedAt:             testBase.Add(-48 * time.Hour),
		UpdatedAt:             testBase,
	}
}

func testIncident(id, provider, model string, state status.IncidentState) *store.Incident {
	inc := &store.Incident{
		ID:         id,
		Provider:   provider,
		Model:      model,
		Gateway:    "openrouter",
		Type:       status.IncidentOutage,
		Severity:   status.SeverityHigh,
		State:      state,
		StartedAt:  testBase.Add(-2 * time.Hour),
		ErrorCount: 7,
		CreatedAt:  testBase.Add(-2 * time.Hour),
		UpdatedAt:  testBase.Add(-time.Hour),
	}
	if state == status.IncidentResolved {
		resolved := testBase.Add(-30 * time.Minute)
		inc.ResolvedAt = &resolved
		inc.DurationSeconds = int64(resolved.Sub(inc.StartedAt).Seconds())
	}
	return inc
}

func testDowntime(id string, resolved bool) *store.DowntimeIncident {
	d := &store.DowntimeIncident{
		ID:         id,
		StartedAt:  testBase.Add(-time.Hour),
		DetectedAt: testBase.Add(-55 * time.Minute),
		Status:     status.DowntimeOngoing,
		CreatedAt:  testBase.Add(-55 * time.Minute),
		UpdatedAt:  testBase.Add(-55 * time.Minute),
	}
	if resolved {
		ended := testBase.Add(-10 * time.Minute)
		d.EndedAt = &ended
		d.DurationSeconds = int64(ended.Sub(d.StartedAt).Seconds())
		d.Status = status.DowntimeResolved
	}
	return d
}

// mockMonitor is an in-memory double for the server.Monitor interface.
// It serves canned data and records the arguments handlers pass through.
type mockMonitor struct {
	mu sync.Mutex

	platform         status.PlatformStatus
	providerStatuses map[string]*status.ProviderStatus
	targetStatuses   map[string]*status.TargetStatus
	summaries        []*store.ProviderSummary
	targets          []*store.HealthRecord
	incidents        []*store.Incident
	events           []*store.HealthCheckEvent
	aggregates       []*store.HourlyAggregate
	downtimes        []*store.DowntimeIncident

	sweepDeleted int64
	failWith     error // when set, every store-backed call returns it

	gotHealthFilter   store.HealthFilter
	gotIncidentFilter store.IncidentFilter
	gotAggFrom        time.Time
	gotAggTo          time.Time
	gotUsage          []monitor.UsageSample
	gotMetrics        []monitor.RequestMetric
	checked           []string
}

var _ server.Monitor = (*mockMonitor)(nil)

func newMockMonitor() *mockMonitor {
	anthropicOperational := status.ProviderStatus{
		Provider:    "anthropic",
		Indicator:   status.IndicatorOperational,
		Operational: 2,
		Total:       2,
	}
	return &mockMonitor{
		platform: status.PlatformStatus{
			Indicator:     status.IndicatorOperational,
			Providers:     []status.ProviderStatus{anthropicOperational},
			OpenIncidents: 1,
			GeneratedAt:   testBase,
		},
		providerStatuses: map[string]*status.ProviderStatus{
			"anthropic": &anthropicOperational,
		},
		targetStatuses: map[string]*status.TargetStatus{
			"anthropic/claude-sonnet": {
				Provider:     "anthropic",
				Model:        "claude-sonnet",
				Gateway:      "openrouter",
				Indicator:    status.IndicatorOperational,
				Tier:         status.TierPopular,
				BreakerState: status.BreakerClosed,
				Enabled:      true,
				UptimePct24h: 99.9,
				UptimePct7d:  99.5,
			},
		},
		summaries: []*store.ProviderSummary{
			{Provider: "anthropic", Requests: 512, Successes: 500, Failures: 12,
				AvgLatencyMS: 230.4, ErrorRate: 0.0234, ComputedAt: testBase},
		},
		targets: []*store.HealthRecord{
			testRecord("anthropic", "claude-sonnet", "openrouter"),
			testRecord("openai", "gpt-4o", "openrouter"),
		},
		incidents: []*store.Incident{
			testIncident("inc-1", "openai", "gpt-4o", status.IncidentActive),
		},
		events: []*store.HealthCheckEvent{
			{
				ID: "ev-1", Provider: "openai", Model: "gpt-4o", Gateway: "openrouter",
				CheckedAt: testBase.Add(-time.Hour), Status: status.ProbeOK,
				ResponseTimeMS: 420, HTTPStatusCode: 200, BreakerState: status.BreakerClosed,
			},
			{
				ID: "ev-2", Provider: "openai", Model: "gpt-4o", Gateway: "openrouter",
				CheckedAt: testBase.Add(-30 * time.Minute), Status: status.ProbeTimeout,
				ResponseTimeMS: 10000, ErrorMessage: "context deadline exceeded",
				BreakerState: status.BreakerClosed,
			},
		},
		aggregates: []*store.HourlyAggregate{
			{
				Provider: "anthropic", Model: "claude-sonnet",
				Hour:          testBase.Truncate(time.Hour).Add(-time.Hour),
				TotalRequests: 100, SuccessRequests: 97, FailedRequests: 3,
				TotalTokens: 20000, AvgLatencyMS: 250, P50LatencyMS: 200,
				P95LatencyMS: 600, P99LatencyMS: 900, ErrorRate: 0.03, SampleCount: 100,
			},
		},
		downtimes: []*store.DowntimeIncident{testDowntime("dt-1", true)},
	}
}

func notFoundErr(kind, key string) error {
	return fmt.Errorf("%s %s: %w", kind, key, store.ErrNotFound)
}

func (m *mockMonitor) PlatformStatus(context.Context) (*status.PlatformStatus, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	plat := m.platform
	return &plat, nil
}

func (m *mockMonitor) ProviderStatus(_ context.Context, provider string) (*status.ProviderStatus, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	ps, ok := m.providerStatuses[provider]
	if !ok {
		return nil, pharoserr.Errorf(pharoserr.CodeMonitorTargetNotFound,
			"provider %s has no monitored targets", provider)
	}
	out := *ps
	return &out, nil
}

func (m *mockMonitor) TargetStatus(_ context.Context, provider, model string) (*status.TargetStatus, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	ts, ok := m.targetStatuses[provider+"/"+model]
	if !ok {
		return nil, notFoundErr("health record", provider+"/"+model)
	}
	out := *ts
	return &out, nil
}

func (m *mockMonitor) ProviderSummaries() []*store.ProviderSummary {
	return m.summaries
}

func (m *mockMonitor) Targets(_ context.Context, filter store.HealthFilter) ([]*store.HealthRecord, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.mu.Lock()
	m.gotHealthFilter = filter
	m.mu.Unlock()

	var out []*store.HealthRecord
	for _, rec := range m.targets {
		if filter.Provider != "" && rec.Provider != filter.Provider {
			continue
		}
		if filter.EnabledOnly && !rec.Enabled {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *mockMonitor) Target(_ context.Context, provider, model string) (*store.HealthRecord, error) {
	for _, rec := range m.targets {
		if rec.Provider == provider && rec.Model == model {
			return rec, nil
		}
	}
	return nil, notFoundErr("health record", provider+"/"+model)
}

func (m *mockMonitor) RegisterTarget(_ context.Context, provider, model, gateway string, enabled bool) (*store.HealthRecord, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	rec := testRecord(provider, model, gateway)
	rec.Enabled = enabled
	rec.Tier = status.TierOnDemand
	m.mu.Lock()
	m.targets = append(m.targets, rec)
	m.mu.Unlock()
	return rec, nil
}

func (m *mockMonitor) SetEnabled(ctx context.Context, provider, model string, enabled bool) error {
	rec, err := m.Target(ctx, provider, model)
	if err != nil {
		return err
	}
	rec.Enabled = enabled
	return nil
}

func (m *mockMonitor) CheckNow(ctx context.Context, provider, model string) (*store.HealthRecord, error) {
	rec, err := m.Target(ctx, provider, model)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.checked = append(m.checked, provider+"/"+model)
	m.mu.Unlock()
	return rec, nil
}

func (m *mockMonitor) Incidents(_ context.Context, filter store.IncidentFilter) ([]*store.Incident, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.mu.Lock()
	m.gotIncidentFilter = filter
	m.mu.Unlock()
	return m.incidents, nil
}

func (m *mockMonitor) AcknowledgeIncident(_ context.Context, id, by, note string) (*store.Incident, error) {
	for _, inc := range m.incidents {
		if inc.ID != id {
			continue
		}
		if inc.State == status.IncidentResolved {
			return nil, pharoserr.Errorf(pharoserr.CodeStoreConflict,
				"incident %s is already resolved", id)
		}
		inc.State = status.IncidentAcknowledged
		inc.AckBy = by
		if note != "" {
			inc.Note = note
		}
		return inc, nil
	}
	return nil, notFoundErr("incident", id)
}

func (m *mockMonitor) Events(_ context.Context, provider, model string, from, to time.Time, _ store.ListOpts) ([]*store.HealthCheckEvent, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []*store.HealthCheckEvent
	for _, ev := range m.events {
		if ev.Provider == provider && ev.Model == model &&
			!ev.CheckedAt.Before(from) && ev.CheckedAt.Before(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockMonitor) Aggregates(_ context.Context, provider, model string, from, to time.Time) ([]*store.HourlyAggregate, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.mu.Lock()
	m.gotAggFrom, m.gotAggTo = from, to
	m.mu.Unlock()

	var out []*store.HourlyAggregate
	for _, agg := range m.aggregates {
		if agg.Provider == provider && agg.Model == model {
			out = append(out, agg)
		}
	}
	return out, nil
}

func (m *mockMonitor) IngestRequestMetrics(batch []monitor.RequestMetric) int {
	m.mu.Lock()
	m.gotMetrics = append(m.gotMetrics, batch...)
	m.mu.Unlock()
	return len(batch)
}

func (m *mockMonitor) ApplyUsage(_ context.Context, samples []monitor.UsageSample) (int, error) {
	if m.failWith != nil {
		return 0, m.failWith
	}
	m.mu.Lock()
	m.gotUsage = append(m.gotUsage, samples...)
	m.mu.Unlock()
	return len(samples), nil
}

func (m *mockMonitor) SweepNow(context.Context) (int64, error) {
	if m.failWith != nil {
		return 0, m.failWith
	}
	return m.sweepDeleted, nil
}

func (m *mockMonitor) OpenDowntime(_ context.Context, startedAt time.Time, logsSnapshot, metricsSnapshot string) (*store.DowntimeIncident, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.downtimes {
		if d.Status.Ongoing() {
			return nil, fmt.Errorf("downtime %s still ongoing: %w", d.ID, store.ErrConflict)
		}
	}
	if startedAt.IsZero() {
		startedAt = testBase
	}
	d := &store.DowntimeIncident{
		ID:              fmt.Sprintf("dt-%d", len(m.downtimes)+1),
		StartedAt:       startedAt,
		DetectedAt:      testBase,
		Status:          status.DowntimeOngoing,
		LogsSnapshot:    logsSnapshot,
		MetricsSnapshot: metricsSnapshot,
		CreatedAt:       testBase,
		UpdatedAt:       testBase,
	}
	m.downtimes = append(m.downtimes, d)
	return d, nil
}

func (m *mockMonitor) ResolveDowntime(_ context.Context, id string) (*store.DowntimeIncident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.downtimes {
		if d.ID != id {
			continue
		}
		if d.Status != status.DowntimeResolved {
			ended := testBase
			d.EndedAt = &ended
			d.DurationSeconds = int64(ended.Sub(d.StartedAt).Seconds())
			d.Status = status.DowntimeResolved
		}
		return d, nil
	}
	return nil, notFoundErr("downtime incident", id)
}

func (m *mockMonitor) Downtimes(context.Context, store.ListOpts) ([]*store.DowntimeIncident, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.downtimes, nil
}
