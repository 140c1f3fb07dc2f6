// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
)

// defaultHTTPClient is the package-level HTTP client used by commands that
// talk to a running monitor. Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// monitorClient provides HTTP access to a running pharos monitor.
type monitorClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// newMonitorClient creates a client targeting the given host:port address.
// token, when set, is sent as a bearer token on every request (the admin
// endpoints require it).
func newMonitorClient(addr, token string) *monitorClient {
	return &monitorClient{
		baseURL: "http://" + addr,
		token:   token,
		http:    defaultHTTPClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
func (c *monitorClient) getJSON(path string, dest any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return pharoserr.Errorf(pharoserr.CodeCLIRequestFailure, "building request: %w", err)
	}
	return c.do(req, dest)
}

// postJSON performs a POST request with an optional JSON body and decodes
// the JSON response into dest. A nil body sends an empty request.
func (c *monitorClient) postJSON(path string, body, dest any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return pharoserr.Errorf(pharoserr.CodeCLIRequestFailure, "encoding request body: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return pharoserr.Errorf(pharoserr.CodeCLIRequestFailure, "building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, dest)
}

func (c *monitorClient) do(req *http.Request, dest any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return pharoserr.Errorf(pharoserr.CodeCLIMonitorNotRunning,
				"monitor is not running (connection refused)")
		}
		return pharoserr.Errorf(pharoserr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return pharoserr.Errorf(pharoserr.CodeCLIRequestFailure,
			"monitor returned status %d: %s", resp.StatusCode, string(body))
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pharoserr.Errorf(pharoserr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
