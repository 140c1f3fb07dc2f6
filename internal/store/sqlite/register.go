// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package sqlite

import (
	"path/filepath"

	"github.com/pharos-dev/pharos/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newMonitorStore)
}

func newMonitorStore(dataPath string) (store.MonitorStore, error) {
	return NewMonitorStore(filepath.Join(dataPath, "monitor.db"))
}
