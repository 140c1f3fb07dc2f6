// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package main

import (
	"fmt"

	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a retention sweep now",
		Long:  "Ask the running monitor to delete health events older than the retention window, without waiting for the next scheduled sweep.",
		RunE:  runSweep,
	}

	cmd.Flags().String("address", "127.0.0.1:8787", "monitor address")
	cmd.Flags().String("token", "", "admin token (defaults to server.admin_token from config/env)")

	return cmd
}

func runSweep(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	token := adminToken(cmd)
	out := cmd.OutOrStdout()

	mc := newMonitorClient(addr, token)
	var body struct {
		Deleted int64 `json:"deleted"`
	}
	if err := mc.postJSON("/api/v1/admin/retention/sweep", nil, &body); err != nil {
		if pharoserr.HasCode(err, pharoserr.CodeCLIMonitorNotRunning) {
			_, _ = fmt.Fprintf(out, "Monitor at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	_, _ = fmt.Fprintf(out, "Retention sweep deleted %d expired events\n", body.Deleted)
	return nil
}
