// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pharos-dev/pharos/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runDoctorCmd(t *testing.T, args ...string) string {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs(append([]string{"doctor"}, args...))

	err := root.Execute()
	require.NoError(t, err)
	return buf.String()
}

func TestDoctor_RunsAllChecks(t *testing.T) {
	resetCLIState(t)
	output := runDoctorCmd(t, "--address", "127.0.0.1:1")

	// Must contain the check names from all implemented checks.
	assert.Contains(t, output, "Binary:")
	assert.Contains(t, output, "Platform:")
	assert.Contains(t, output, "Monitor:")
	assert.Contains(t, output, "Config:")
	assert.Contains(t, output, "Database:")
	assert.Contains(t, output, "Disk Space:")
}

func TestDoctor_MonitorRunning(t *testing.T) {
	resetCLIState(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status.PlatformStatus{
			Indicator:   status.IndicatorOperational,
			GeneratedAt: time.Now().UTC(),
		})
	}))
	defer srv.Close()

	old := defaultHTTPClient
	defaultHTTPClient = srv.Client()
	defer func() { defaultHTTPClient = old }()

	addr := srv.URL[len("http://"):]
	output := runDoctorCmd(t, "--address", addr)

	assert.Contains(t, output, "Monitor:")
	assert.Contains(t, output, "operational at "+addr)
	assert.Contains(t, output, "open incidents")
}

func TestDoctor_MonitorNotRunning(t *testing.T) {
	resetCLIState(t)
	output := runDoctorCmd(t, "--address", "127.0.0.1:1")

	assert.Contains(t, output, "Monitor:")
	assert.Contains(t, output, "not running")
	assert.Contains(t, output, "run 'pharos start'")
}

func TestDoctor_DatabaseMissing(t *testing.T) {
	resetCLIState(t)
	dir := t.TempDir()
	output := runDoctorCmd(t, "--data-dir", dir, "--address", "127.0.0.1:1")

	assert.Contains(t, output, "Database:")
	assert.Contains(t, output, "no database yet")
}

func TestDoctor_DatabasePresent(t *testing.T) {
	resetCLIState(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "monitor.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("stub"), 0o600))

	output := runDoctorCmd(t, "--data-dir", dir, "--address", "127.0.0.1:1")

	assert.Contains(t, output, "Database:")
	assert.Contains(t, output, dbPath)
	assert.Contains(t, output, "4 bytes")
}

func TestDoctor_DiskSpace(t *testing.T) {
	resetCLIState(t)
	output := runDoctorCmd(t, "--address", "127.0.0.1:1")

	assert.Contains(t, output, "Disk Space:")
	// Should show available space in some unit (GB, MB, etc.).
	assert.Regexp(t, `\d+(\.\d+)?\s*(GB|MB|bytes)`, output)
}

func TestDoctor_ConfigCheck(t *testing.T) {
	resetCLIState(t)
	output := runDoctorCmd(t, "--address", "127.0.0.1:1")

	assert.Contains(t, output, "Config:")
}
