// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

// Package httpprobe provides the reference monitor.Prober for
// OpenAI-compatible gateways: a GET against the gateway's models
// endpoint, classified into a probe outcome by HTTP status.
//
// One Prober serves every target routed through the same gateway.
// SDK-backed probers for providers with richer health endpoints can
// implement monitor.Prober directly and live outside this package.
package httpprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pharos-dev/pharos/internal/monitor"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
)

// maxErrorBody caps how much of an error response is kept for the
// record's last-error message.
const maxErrorBody = 512

// Config holds the gateway endpoint and credentials for one prober.
type Config struct {
	// BaseURL is the gateway's API root, e.g. "https://openrouter.ai/api/v1".
	// The prober appends "/models" to it.
	BaseURL string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// Headers are set verbatim on every probe request, for gateways that
	// authenticate outside the Authorization header (e.g. x-api-key).
	Headers map[string]string

	// Client overrides the default HTTP client, useful for testing against
	// a mock server. The default client carries no timeout of its own; the
	// scheduler bounds each probe through the request context.
	Client *http.Client
}

// Prober implements monitor.Prober over plain HTTP.
type Prober struct {
	endpoint string
	apiKey   string
	headers  map[string]string
	client   *http.Client
}

// New creates a prober for one gateway. Returns an error if the base URL
// is missing.
func New(cfg Config) (*Prober, error) {
	if cfg.BaseURL == "" {
		return nil, pharoserr.New(pharoserr.CodeConfigValidateInvalidValue, "httpprobe: missing base URL")
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Prober{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/models",
		apiKey:   cfg.APIKey,
		headers:  cfg.Headers,
		client:   client,
	}, nil
}

// Probe performs one health check. Transport failures and non-2xx statuses
// become failure-typed results with a nil error; only a malformed request
// surfaces as an error.
func (p *Prober) Probe(ctx context.Context, target monitor.Target) (monitor.ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return monitor.ProbeResult{}, pharoserr.Errorf(pharoserr.CodeMonitorProbeUpstreamFailure,
			"building probe request for %s/%s: %w", target.Provider, target.Model, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pharos-monitor")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsedMS := time.Since(start).Milliseconds()

	if err != nil {
		return transportFailure(err, elapsedMS), nil
	}
	defer func() { _ = resp.Body.Close() }()

	res := monitor.ProbeResult{
		ResponseTimeMS: elapsedMS,
		HTTPStatusCode: resp.StatusCode,
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		res.Status = status.ProbeOK
		return res, nil
	}

	res.ErrorMessage = httpFailureMessage(resp)
	switch resp.StatusCode {
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		res.Status = status.ProbeTimeout
	case http.StatusTooManyRequests:
		res.Status = status.ProbeRateLimited
	default:
		res.Status = status.ProbeError
	}
	return res, nil
}

// transportFailure classifies a client.Do error. Deadline and dial
// timeouts count as timeouts; everything else is a plain error.
func transportFailure(err error, elapsedMS int64) monitor.ProbeResult {
	res := monitor.ProbeResult{
		Status:         status.ProbeError,
		ResponseTimeMS: elapsedMS,
		ErrorMessage:   err.Error(),
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		res.Status = status.ProbeTimeout
	}
	return res
}

// httpFailureMessage renders the status line plus a bounded slice of the
// response body, which for most gateways carries a JSON error payload.
func httpFailureMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		return fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet)
}
