// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pharos-dev/pharos/internal/monitor"
)

func (s *Server) registerAdminRoutes() {
	// Target control
	huma.Register(s.api, huma.Operation{
		OperationID:   "register-target",
		Method:        http.MethodPost,
		Path:          "/api/v1/admin/targets",
		Summary:       "Register a target for monitoring",
		Tags:          []string{"admin"},
		DefaultStatus: http.StatusCreated,
	}, s.handleRegisterTarget)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-target",
		Method:      http.MethodPatch,
		Path:        "/api/v1/admin/targets/{provider}/{model}",
		Summary:     "Enable or disable monitoring for a target",
		Tags:        []string{"admin"},
	}, s.handleUpdateTarget)

	huma.Register(s.api, huma.Operation{
		OperationID: "check-target",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/targets/{provider}/{model}/check",
		Summary:     "Probe a target immediately",
		Description: "Bypasses the scheduled cadence. Runs even for disabled targets.",
		Tags:        []string{"admin"},
	}, s.handleCheckTarget)

	// Incident ops
	huma.Register(s.api, huma.Operation{
		OperationID: "ack-incident",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/incidents/{id}/ack",
		Summary:     "Acknowledge an incident",
		Tags:        []string{"admin"},
	}, s.handleAckIncident)

	// Retention
	huma.Register(s.api, huma.Operation{
		OperationID: "retention-sweep",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/retention/sweep",
		Summary:     "Run a retention sweep now",
		Tags:        []string{"admin"},
	}, s.handleRetentionSweep)

	// Ingestion feeds
	huma.Register(s.api, huma.Operation{
		OperationID: "ingest-usage",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/usage",
		Summary:     "Ingest a usage feed batch",
		Description: "Replaces the rolling usage counters per target; last write wins.",
		Tags:        []string{"admin"},
	}, s.handleIngestUsage)

	huma.Register(s.api, huma.Operation{
		OperationID: "ingest-request-metrics",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/metrics/requests",
		Summary:     "Ingest gateway request metrics",
		Description: "Buffers per-request metrics for the hourly aggregate rollup.",
		Tags:        []string{"admin"},
	}, s.handleIngestRequestMetrics)

	// Platform downtime lifecycle
	huma.Register(s.api, huma.Operation{
		OperationID:   "open-downtime",
		Method:        http.MethodPost,
		Path:          "/api/v1/admin/downtime",
		Summary:       "Record the start of a platform outage",
		Tags:          []string{"admin"},
		DefaultStatus: http.StatusCreated,
	}, s.handleOpenDowntime)

	huma.Register(s.api, huma.Operation{
		OperationID: "resolve-downtime",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/downtime/{id}/resolve",
		Summary:     "Resolve a platform outage",
		Tags:        []string{"admin"},
	}, s.handleResolveDowntime)
}

// --- Request/Response types for huma ---

type registerTargetInput struct {
	Body struct {
		Provider string `json:"provider" minLength:"1" doc:"Upstream provider"`
		Model    string `json:"model" minLength:"1" doc:"Model identifier"`
		Gateway  string `json:"gateway" minLength:"1" doc:"Gateway the probes travel through"`
		Enabled  *bool  `json:"enabled,omitempty" doc:"Defaults to true"`
	}
}

type targetDetailOutput struct {
	Body TargetDetail
}

type updateTargetInput struct {
	Provider string `path:"provider"`
	Model    string `path:"model"`
	Body     struct {
		Enabled bool `json:"enabled" doc:"Whether the scheduler probes this target"`
	}
}

type ackIncidentInput struct {
	ID   string `path:"id" doc:"Incident identifier"`
	Body struct {
		By   string `json:"by,omitempty" doc:"Operator handle"`
		Note string `json:"note,omitempty" doc:"Annotation stored on the incident"`
	}
}

type incidentDetailOutput struct {
	Body IncidentDetail
}

type sweepOutput struct {
	Body struct {
		Deleted int64 `json:"deleted" doc:"Events removed by the sweep"`
	}
}

type ingestUsageInput struct {
	Body struct {
		Samples []monitor.UsageSample `json:"samples" doc:"One entry per target; unknown targets are skipped"`
	}
}
type ingestUsageOutput struct {
	Body struct {
		Applied int `json:"applied" doc:"Targets whose counters were updated"`
	}
}

type ingestRequestMetricsInput struct {
	Body struct {
		Requests []monitor.RequestMetric `json:"requests"`
	}
}
type ingestRequestMetricsOutput struct {
	Body struct {
		Accepted int `json:"accepted" doc:"Metrics accepted into open hourly buckets"`
	}
}

type openDowntimeInput struct {
	Body struct {
		StartedAt       time.Time `json:"started_at,omitempty" doc:"Outage start; zero means detected now"`
		LogsSnapshot    string    `json:"logs_snapshot,omitempty"`
		MetricsSnapshot string    `json:"metrics_snapshot,omitempty"`
	}
}

type downtimeDetailOutput struct {
	Body DowntimeDetail
}

type resolveDowntimeInput struct {
	ID string `path:"id" doc:"Downtime incident identifier"`
}

// --- Handlers ---

func (s *Server) handleRegisterTarget(ctx context.Context, input *registerTargetInput) (*targetDetailOutput, error) {
	enabled := true
	if input.Body.Enabled != nil {
		enabled = *input.Body.Enabled
	}
	rec, err := s.monitor.RegisterTarget(ctx, input.Body.Provider, input.Body.Model, input.Body.Gateway, enabled)
	if err != nil {
		return nil, serviceError(err, fmt.Sprintf("registering %s/%s", input.Body.Provider, input.Body.Model))
	}
	return &targetDetailOutput{Body: toTargetDetail(rec)}, nil
}

func (s *Server) handleUpdateTarget(ctx context.Context, input *updateTargetInput) (*targetDetailOutput, error) {
	if err := s.monitor.SetEnabled(ctx, input.Provider, input.Model, input.Body.Enabled); err != nil {
		return nil, serviceError(err, fmt.Sprintf("updating %s/%s", input.Provider, input.Model))
	}
	rec, err := s.monitor.Target(ctx, input.Provider, input.Model)
	if err != nil {
		return nil, serviceError(err, fmt.Sprintf("loading %s/%s", input.Provider, input.Model))
	}
	return &targetDetailOutput{Body: toTargetDetail(rec)}, nil
}

func (s *Server) handleCheckTarget(ctx context.Context, input *targetPathInput) (*targetDetailOutput, error) {
	rec, err := s.monitor.CheckNow(ctx, input.Provider, input.Model)
	if err != nil {
		return nil, serviceError(err, fmt.Sprintf("checking %s/%s", input.Provider, input.Model))
	}
	return &targetDetailOutput{Body: toTargetDetail(rec)}, nil
}

func (s *Server) handleAckIncident(ctx context.Context, input *ackIncidentInput) (*incidentDetailOutput, error) {
	inc, err := s.monitor.AcknowledgeIncident(ctx, input.ID, input.Body.By, input.Body.Note)
	if err != nil {
		return nil, serviceError(err, fmt.Sprintf("acknowledging incident %s", input.ID))
	}
	return &incidentDetailOutput{Body: toIncidentDetail(inc)}, nil
}

func (s *Server) handleRetentionSweep(ctx context.Context, _ *struct{}) (*sweepOutput, error) {
	deleted, err := s.monitor.SweepNow(ctx)
	if err != nil {
		return nil, serviceError(err, "running retention sweep")
	}
	out := &sweepOutput{}
	out.Body.Deleted = deleted
	return out, nil
}

func (s *Server) handleIngestUsage(ctx context.Context, input *ingestUsageInput) (*ingestUsageOutput, error) {
	applied, err := s.monitor.ApplyUsage(ctx, input.Body.Samples)
	if err != nil {
		return nil, serviceError(err, "applying usage feed")
	}
	out := &ingestUsageOutput{}
	out.Body.Applied = applied
	return out, nil
}

func (s *Server) handleIngestRequestMetrics(_ context.Context, input *ingestRequestMetricsInput) (*ingestRequestMetricsOutput, error) {
	out := &ingestRequestMetricsOutput{}
	out.Body.Accepted = s.monitor.IngestRequestMetrics(input.Body.Requests)
	return out, nil
}

func (s *Server) handleOpenDowntime(ctx context.Context, input *openDowntimeInput) (*downtimeDetailOutput, error) {
	d, err := s.monitor.OpenDowntime(ctx, input.Body.StartedAt, input.Body.LogsSnapshot, input.Body.MetricsSnapshot)
	if err != nil {
		return nil, serviceError(err, "opening downtime incident")
	}
	return &downtimeDetailOutput{Body: toDowntimeDetail(d)}, nil
}

func (s *Server) handleResolveDowntime(ctx context.Context, input *resolveDowntimeInput) (*downtimeDetailOutput, error) {
	d, err := s.monitor.ResolveDowntime(ctx, input.ID)
	if err != nil {
		return nil, serviceError(err, fmt.Sprintf("resolving downtime %s", input.ID))
	}
	return &downtimeDetailOutput{Body: toDowntimeDetail(d)}, nil
}
