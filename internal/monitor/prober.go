// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package monitor

import (
	"context"
	"errors"

	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
)

// Target identifies one monitored (provider, model) pair and the gateway
// route its probes travel through.
type Target struct {
	Provider string
	Model    string
	Gateway  string
}

// ProbeResult is the outcome of one health check.
type ProbeResult struct {
	Status         status.ProbeStatus
	ResponseTimeMS int64
	HTTPStatusCode int
	ErrorMessage   string
}

// Failed reports whether the result counts against the target's health.
func (r ProbeResult) Failed() bool {
	return r.Status.Failure()
}

// Prober performs a single health check against a target. Implementations
// must honor ctx cancellation; the scheduler enforces a per-probe deadline.
//
// A non-nil error is classified into a failure result by the scheduler;
// probers are free to return either a failure-typed ProbeResult with a nil
// error or a plain error.
type Prober interface {
	Probe(ctx context.Context, target Target) (ProbeResult, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, target Target) (ProbeResult, error)

func (f ProberFunc) Probe(ctx context.Context, target Target) (ProbeResult, error) {
	return f(ctx, target)
}

// resultFromError converts a prober error into a failure result. Probe
// errors never fail the scheduling loop; they become failed checks.
func resultFromError(err error, elapsedMS int64) ProbeResult {
	res := ProbeResult{
		Status:         status.ProbeError,
		ResponseTimeMS: elapsedMS,
		ErrorMessage:   err.Error(),
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || pharoserr.IsTimeout(err):
		res.Status = status.ProbeTimeout
	case pharoserr.IsRateLimited(err):
		res.Status = status.ProbeRateLimited
	}
	return res
}
