// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pharos-dev/pharos/internal/config"
	"github.com/pharos-dev/pharos/internal/monitor"
	"github.com/pharos-dev/pharos/internal/store"
	"github.com/pharos-dev/pharos/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMonitorWireConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Listen: "127.0.0.1:0",
		},
		Storage: config.StorageConfig{
			Backend: "sqlite",
		},
	}
}

func TestWireMonitor(t *testing.T) {
	dir := t.TempDir()
	cfg := testMonitorWireConfig()

	mon, err := WireMonitor(context.Background(), cfg, dir)
	require.NoError(t, err)
	defer func() { _ = mon.Close() }()

	assert.NotNil(t, mon.Server)
	assert.NotNil(t, mon.Service)
	assert.NotNil(t, mon.Store)
	assert.NotNil(t, mon.Metrics)
}

func TestWireMonitor_InvalidStorageBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := testMonitorWireConfig()
	cfg.Storage.Backend = "bogus"

	_, err := WireMonitor(context.Background(), cfg, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating monitor store")
}

func TestMonitor_GracefulShutdown(t *testing.T) {
	dir := t.TempDir()
	cfg := testMonitorWireConfig()

	mon, err := WireMonitor(context.Background(), cfg, dir)
	require.NoError(t, err)
	defer func() { _ = mon.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// Run and let the deadline expire — should shut down cleanly.
	err = mon.Run(ctx)
	assert.NoError(t, err)
}

func TestWireMonitor_StatusSurfaceServed(t *testing.T) {
	dir := t.TempDir()
	cfg := testMonitorWireConfig()

	mon, err := WireMonitor(context.Background(), cfg, dir)
	require.NoError(t, err)
	defer func() { _ = mon.Close() }()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	mon.Server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body status.PlatformStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, status.IndicatorOperational, body.Indicator)
	assert.Empty(t, body.Providers)
}

func TestWireMonitor_RegistersConfiguredTargets(t *testing.T) {
	dir := t.TempDir()
	cfg := testMonitorWireConfig()
	disabled := false
	cfg.Targets = []config.TargetConfig{
		{Provider: "anthropic", Model: "claude-sonnet-4-5", Gateway: "openrouter"},
		{Provider: "openai", Model: "gpt-4o", Gateway: "openrouter", Enabled: &disabled},
	}

	mon, err := WireMonitor(context.Background(), cfg, dir)
	require.NoError(t, err)
	defer func() { _ = mon.Close() }()

	ctx := context.Background()

	rec, err := mon.Service.Target(ctx, "anthropic", "claude-sonnet-4-5")
	require.NoError(t, err)
	assert.True(t, rec.Enabled)
	assert.Equal(t, "openrouter", rec.Gateway)

	rec, err = mon.Service.Target(ctx, "openai", "gpt-4o")
	require.NoError(t, err)
	assert.False(t, rec.Enabled)
}

func TestWireMonitor_SkipsInvalidTargets(t *testing.T) {
	dir := t.TempDir()
	cfg := testMonitorWireConfig()
	cfg.Targets = []config.TargetConfig{
		{Provider: "anthropic", Model: ""}, // missing model — skipped
		{Provider: "openai", Model: "gpt-4o"},
	}

	mon, err := WireMonitor(context.Background(), cfg, dir)
	require.NoError(t, err, "one bad target entry must not prevent startup")
	defer func() { _ = mon.Close() }()

	ctx := context.Background()

	_, err = mon.Service.Target(ctx, "anthropic", "")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = mon.Service.Target(ctx, "openai", "gpt-4o")
	assert.NoError(t, err)
}

func TestWireMonitor_ProbeThroughConfiguredGateway(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer gateway.Close()

	dir := t.TempDir()
	cfg := testMonitorWireConfig()
	cfg.Gateways = map[string]config.GatewayConfig{
		"openrouter": {BaseURL: gateway.URL},
	}
	cfg.Targets = []config.TargetConfig{
		{Provider: "anthropic", Model: "claude-sonnet-4-5", Gateway: "openrouter"},
	}

	mon, err := WireMonitor(context.Background(), cfg, dir)
	require.NoError(t, err)
	defer func() { _ = mon.Close() }()

	rec, err := mon.Service.CheckNow(context.Background(), "anthropic", "claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Equal(t, status.ProbeOK, rec.LastStatus)
	assert.Equal(t, int64(1), rec.SuccessCount)
	assert.Equal(t, status.BreakerClosed, rec.BreakerState)
}

func TestWireMonitor_UnknownGatewayBecomesFailedCheck(t *testing.T) {
	dir := t.TempDir()
	cfg := testMonitorWireConfig()
	cfg.Targets = []config.TargetConfig{
		{Provider: "anthropic", Model: "claude-sonnet-4-5", Gateway: "nope"},
	}

	mon, err := WireMonitor(context.Background(), cfg, dir)
	require.NoError(t, err)
	defer func() { _ = mon.Close() }()

	rec, err := mon.Service.CheckNow(context.Background(), "anthropic", "claude-sonnet-4-5")
	require.NoError(t, err, "a missing prober is a failed check, not a service fault")
	assert.Equal(t, int64(1), rec.ErrorCount)
	assert.Equal(t, 1, rec.ConsecutiveFailures)
	assert.Contains(t, rec.LastErrorMessage, "no prober for gateway")
}

func TestWireMonitor_GatewayFactoryFailureSkipped(t *testing.T) {
	// Inject a factory that always fails to exercise the err != nil path.
	orig := gatewayProberFactory
	gatewayProberFactory = func(_ config.GatewayConfig) (monitor.Prober, error) {
		return nil, fmt.Errorf("injected failure")
	}
	t.Cleanup(func() { gatewayProberFactory = orig })

	dir := t.TempDir()
	cfg := testMonitorWireConfig()
	cfg.Gateways = map[string]config.GatewayConfig{
		"openrouter": {BaseURL: "https://openrouter.ai/api/v1"},
	}
	cfg.Targets = []config.TargetConfig{
		{Provider: "anthropic", Model: "claude-sonnet-4-5", Gateway: "openrouter"},
	}

	mon, err := WireMonitor(context.Background(), cfg, dir)
	require.NoError(t, err, "prober creation failure should not prevent startup")
	defer func() { _ = mon.Close() }()

	// The skipped gateway leaves its targets probing into thin air.
	rec, err := mon.Service.CheckNow(context.Background(), "anthropic", "claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Contains(t, rec.LastErrorMessage, "no prober for gateway")
}
