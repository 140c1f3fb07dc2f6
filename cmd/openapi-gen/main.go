// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pharos-dev/pharos/internal/monitor"
	"github.com/pharos-dev/pharos/internal/server"
	"github.com/pharos-dev/pharos/internal/store"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		AdminToken: "spec-generation-only",
	})
	if err != nil {
		return nil, pharoserr.Wrap(err, pharoserr.CodeCLISetupFailure, "creating server")
	}
	defer srv.Close()

	// A no-op monitor so the full route set is registered for schema
	// discovery. Handlers are never invoked during spec generation.
	srv.RegisterMonitor(&stubMonitor{})

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

type stubMonitor struct{}

func (s *stubMonitor) PlatformStatus(context.Context) (*status.PlatformStatus, error) {
	return nil, nil
}

func (s *stubMonitor) ProviderStatus(context.Context, string) (*status.ProviderStatus, error) {
	return nil, nil
}

func (s *stubMonitor) TargetStatus(context.Context, string, string) (*status.TargetStatus, error) {
	return nil, nil
}

func (s *stubMonitor) ProviderSummaries() []*store.ProviderSummary { return nil }

func (s *stubMonitor) Targets(context.Context, store.HealthFilter) ([]*store.HealthRecord, error) {
	return nil, nil
}

func (s *stubMonitor) Target(context.Context, string, string) (*store.HealthRecord, error) {
	return nil, nil
}

func (s *stubMonitor) RegisterTarget(context.Context, string, string, string, bool) (*store.HealthRecord, error) {
	return nil, nil
}

func (s *stubMonitor) SetEnabled(context.Context, string, string, bool) error { return nil }

func (s *stubMonitor) CheckNow(context.Context, string, string) (*store.HealthRecord, error) {
	return nil, nil
}

func (s *stubMonitor) Incidents(context.Context, store.IncidentFilter) ([]*store.Incident, error) {
	return nil, nil
}

func (s *stubMonitor) AcknowledgeIncident(context.Context, string, string, string) (*store.Incident, error) {
	return nil, nil
}

func (s *stubMonitor) Events(context.Context, string, string, time.Time, time.Time, store.ListOpts) ([]*store.HealthCheckEvent, error) {
	return nil, nil
}

func (s *stubMonitor) Aggregates(context.Context, string, string, time.Time, time.Time) ([]*store.HourlyAggregate, error) {
	return nil, nil
}

func (s *stubMonitor) IngestRequestMetrics([]monitor.RequestMetric) int { return 0 }

func (s *stubMonitor) ApplyUsage(context.Context, []monitor.UsageSample) (int, error) {
	return 0, nil
}

func (s *stubMonitor) SweepNow(context.Context) (int64, error) { return 0, nil }

func (s *stubMonitor) OpenDowntime(context.Context, time.Time, string, string) (*store.DowntimeIncident, error) {
	return nil, nil
}

func (s *stubMonitor) ResolveDowntime(context.Context, string) (*store.DowntimeIncident, error) {
	return nil, nil
}

func (s *stubMonitor) Downtimes(context.Context, store.ListOpts) ([]*store.DowntimeIncident, error) {
	return nil, nil
}
