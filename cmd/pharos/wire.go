// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/pharos-dev/pharos/internal/config"
	"github.com/pharos-dev/pharos/internal/metrics"
	"github.com/pharos-dev/pharos/internal/monitor"
	"github.com/pharos-dev/pharos/internal/probe/httpprobe"
	"github.com/pharos-dev/pharos/internal/server"
	"github.com/pharos-dev/pharos/internal/store"
	_ "github.com/pharos-dev/pharos/internal/store/sqlite" // register sqlite backend
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
)

// Monitor holds all wired subsystems and manages their lifecycle.
type Monitor struct {
	Server  *server.Server
	Service *monitor.Service
	Store   store.MonitorStore
	Metrics *metrics.Set
}

// WireMonitor creates all subsystems and wires them together.
// The dataDir is the root directory for all persistent state.
func WireMonitor(ctx context.Context, cfg *config.Config, dataDir string) (*Monitor, error) {
	storeCfg := &store.StorageConfig{Backend: cfg.Storage.Backend}

	// Ensure the data directory exists.
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, pharoserr.Errorf(pharoserr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	// 1. Monitor store (health records, events, incidents, aggregates, downtime).
	ms, err := store.NewMonitorStore(storeCfg, dataDir)
	if err != nil {
		return nil, pharoserr.Errorf(pharoserr.CodeCLISetupFailure, "creating monitor store: %w", err)
	}

	// 2. Metrics registry, shared between the service and the server.
	set := metrics.New()

	// 3. Probers — one per configured gateway, behind a mux keyed on the
	// target's gateway name.
	mux := newGatewayMux(cfg.Gateways)
	if len(mux.probers) == 0 {
		slog.Warn("no gateways configured — probes will fail until one is added")
	}

	// 4. Monitor service.
	svc, err := monitor.New(monitor.Config{
		Store:                    ms,
		Prober:                   mux,
		Metrics:                  set,
		BreakerOpenThreshold:     cfg.Monitor.Breaker.OpenThreshold,
		BreakerRecoveryThreshold: cfg.Monitor.Breaker.RecoveryThreshold,
		TickInterval:             cfg.Monitor.TickInterval,
		ProbeTimeout:             cfg.Monitor.ProbeTimeout,
		TrialInterval:            cfg.Monitor.TrialInterval,
		Concurrency:              cfg.Monitor.Concurrency,
		BatchLimit:               cfg.Monitor.BatchLimit,
		RetentionDays:            cfg.Monitor.RetentionDays,
	})
	if err != nil {
		_ = ms.Close()
		return nil, pharoserr.Errorf(pharoserr.CodeCLISetupFailure, "creating monitor service: %w", err)
	}

	// 5. HTTP server.
	if cfg.Server.AdminToken == "" {
		slog.Warn("admin API disabled: no admin token configured — admin endpoints answer 503")
	}
	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
		AdminToken:  cfg.Server.AdminToken,
		Metrics:     set,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimitRPS,
			Burst:             cfg.Server.RateLimitBurst,
		},
	})
	if err != nil {
		_ = ms.Close()
		return nil, pharoserr.Errorf(pharoserr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterMonitor(svc)

	// 6. Seed configured targets. Registration is idempotent; failures are
	// logged and skipped so one bad entry cannot keep the monitor down.
	registerConfiguredTargets(ctx, svc, cfg.Targets)

	return &Monitor{
		Server:  srv,
		Service: svc,
		Store:   ms,
		Metrics: set,
	}, nil
}

// Run starts the scheduler loops and the HTTP server, blocking until the
// context is cancelled or either part fails. The other part is always shut
// down before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- m.Service.Run(ctx) }()
	go func() { errCh <- m.Server.Start(ctx) }()

	err := <-errCh
	cancel()
	second := <-errCh

	if err == nil || errors.Is(err, context.Canceled) {
		err = second
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases all resources held by the monitor.
func (m *Monitor) Close() error {
	type closer interface{ Close() error }
	closers := []closer{m.Store}

	var errs []error
	for _, c := range closers {
		if c != nil {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// gatewayProberFactory builds a monitor.Prober from a GatewayConfig.
// Declared as a variable so tests can inject failing factories.
var gatewayProberFactory = func(gw config.GatewayConfig) (monitor.Prober, error) {
	return httpprobe.New(httpprobe.Config{
		BaseURL: gw.BaseURL,
		APIKey:  gw.APIKey,
		Headers: gw.Headers,
	})
}

// gatewayMux routes each probe to the prober for the target's gateway.
// Probes for targets whose gateway is unknown fail with a coded error the
// scheduler records as a failed check rather than a crash.
type gatewayMux struct {
	probers map[string]monitor.Prober
}

// newGatewayMux builds probers for every configured gateway. Invalid
// entries are logged and skipped — none is fatal at startup.
func newGatewayMux(gateways map[string]config.GatewayConfig) *gatewayMux {
	probers := make(map[string]monitor.Prober, len(gateways))
	for name, gw := range gateways {
		p, err := gatewayProberFactory(gw)
		if err != nil {
			slog.Warn("skipping gateway with invalid config", "gateway", name, "error", err)
			continue
		}
		probers[name] = p
		slog.Info("registered gateway prober", "gateway", name)
	}
	return &gatewayMux{probers: probers}
}

func (g *gatewayMux) Probe(ctx context.Context, target monitor.Target) (monitor.ProbeResult, error) {
	p, ok := g.probers[target.Gateway]
	if !ok {
		return monitor.ProbeResult{}, pharoserr.Errorf(pharoserr.CodeMonitorProberNotFound,
			"no prober for gateway %q (target %s/%s)", target.Gateway, target.Provider, target.Model)
	}
	return p.Probe(ctx, target)
}

// registerConfiguredTargets replays the config's target list into the
// service. Existing records are untouched; new pairs get a fresh record.
func registerConfiguredTargets(ctx context.Context, svc *monitor.Service, targets []config.TargetConfig) {
	for _, t := range targets {
		if t.Provider == "" || t.Model == "" {
			slog.Warn("skipping target with missing provider or model",
				"provider", t.Provider, "model", t.Model)
			continue
		}
		if _, err := svc.RegisterTarget(ctx, t.Provider, t.Model, t.Gateway, t.IsEnabled()); err != nil {
			slog.Warn("failed to register target",
				"provider", t.Provider, "model", t.Model, "error", err)
			continue
		}
		slog.Info("registered target",
			"provider", t.Provider, "model", t.Model, "gateway", t.Gateway, "enabled", t.IsEnabled())
	}
}
