// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package store

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// MonitorStoreFactory creates the full store set given a data directory.
type MonitorStoreFactory func(dataPath string) (MonitorStore, error)

var (
	factories   = map[string]MonitorStoreFactory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers the factory function for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, factory MonitorStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewMonitorStore creates the store set for the monitor.
// The dataPath directory is used to derive the database file path.
func NewMonitorStore(cfg *StorageConfig, dataPath string) (MonitorStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %q", backend)
	}

	return factory(dataPath)
}

// compositeMonitorStore satisfies MonitorStore by composing five sub-stores.
type compositeMonitorStore struct {
	health     HealthStore
	incidents  IncidentStore
	events     EventStore
	aggregates AggregateStore
	downtime   DowntimeStore
	closers    []io.Closer // additional resources to close (e.g. shared DB connections)
}

// NewComposite creates a MonitorStore from individual sub-stores.
// Backend packages use this to avoid duplicating the composition logic.
// Additional closers (e.g. shared database connections) are closed after
// the sub-stores during Close().
func NewComposite(health HealthStore, incidents IncidentStore, events EventStore,
	aggregates AggregateStore, downtime DowntimeStore, closers ...io.Closer) MonitorStore {
	return &compositeMonitorStore{
		health:     health,
		incidents:  incidents,
		events:     events,
		aggregates: aggregates,
		downtime:   downtime,
		closers:    closers,
	}
}

func (c *compositeMonitorStore) Health() HealthStore        { return c.health }
func (c *compositeMonitorStore) Incidents() IncidentStore   { return c.incidents }
func (c *compositeMonitorStore) Events() EventStore         { return c.events }
func (c *compositeMonitorStore) Aggregates() AggregateStore { return c.aggregates }
func (c *compositeMonitorStore) Downtime() DowntimeStore    { return c.downtime }

func (c *compositeMonitorStore) Close() error {
	var errs []error
	if err := c.health.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.incidents.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.events.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.aggregates.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.downtime.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
