// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package main

import (
	"fmt"

	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show monitor status",
		Long:  "Check the running monitor's status endpoint and display the platform indicator with a per-provider breakdown.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "127.0.0.1:8787", "monitor address to check")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	mc := newMonitorClient(addr, "")
	var body status.PlatformStatus
	if err := mc.getJSON("/api/v1/status", &body); err != nil {
		if pharoserr.HasCode(err, pharoserr.CodeCLIMonitorNotRunning) {
			_, _ = fmt.Fprintf(out, "Monitor at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Monitor at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Monitor at %s: %s (%d open incidents)\n", addr, body.Indicator, body.OpenIncidents)
	if body.OngoingDowntime {
		_, _ = fmt.Fprintln(out, "Platform-wide downtime is ongoing.")
	}
	for _, p := range body.Providers {
		_, _ = fmt.Fprintf(out, "  %-20s %-14s %d/%d targets operational\n",
			p.Provider, p.Indicator, p.Operational, p.Total)
	}
	return nil
}
