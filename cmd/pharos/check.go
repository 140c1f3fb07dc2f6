// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package main

import (
	"fmt"
	"net/url"

	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <provider> <model>",
		Short: "Probe a target immediately",
		Long:  "Ask the running monitor to probe one target right now, bypassing the scheduled cadence, and show the outcome.",
		Args:  cobra.ExactArgs(2),
		RunE:  runCheck,
	}

	cmd.Flags().String("address", "127.0.0.1:8787", "monitor address")
	cmd.Flags().String("token", "", "admin token (defaults to server.admin_token from config/env)")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("address")
	token := adminToken(cmd)
	out := cmd.OutOrStdout()

	provider, model := args[0], args[1]
	path := fmt.Sprintf("/api/v1/admin/targets/%s/%s/check",
		url.PathEscape(provider), url.PathEscape(model))

	mc := newMonitorClient(addr, token)
	var body struct {
		LastStatus         status.ProbeStatus  `json:"last_status"`
		LastResponseTimeMS int64               `json:"last_response_time_ms"`
		LastError          string              `json:"last_error"`
		BreakerState       status.BreakerState `json:"breaker_state"`
		Tier               status.Tier         `json:"tier"`
	}
	if err := mc.postJSON(path, nil, &body); err != nil {
		if pharoserr.HasCode(err, pharoserr.CodeCLIMonitorNotRunning) {
			_, _ = fmt.Fprintf(out, "Monitor at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	_, _ = fmt.Fprintf(out, "%s/%s: %s (%dms, breaker %s, tier %s)\n",
		provider, model, body.LastStatus, body.LastResponseTimeMS, body.BreakerState, body.Tier)
	if body.LastError != "" {
		_, _ = fmt.Fprintf(out, "  last error: %s\n", body.LastError)
	}
	return nil
}

// adminToken resolves the admin token from the --token flag, falling back
// to the server.admin_token key Viper resolved from config or environment.
func adminToken(cmd *cobra.Command) string {
	if token, _ := cmd.Flags().GetString("token"); token != "" {
		return token
	}
	return viper.GetString("server.admin_token")
}
