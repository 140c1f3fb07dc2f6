// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pharos-dev/pharos/internal/store"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/pharos-dev/pharos/pkg/status"
)

func (s *Server) registerRoutes() {
	s.registerStatusRoutes()
	s.registerAdminRoutes()
}

func (s *Server) registerStatusRoutes() {
	// Status rollups
	huma.Register(s.api, huma.Operation{
		OperationID: "platform-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Platform status",
		Tags:        []string{"status"},
	}, s.handlePlatformStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "provider-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status/{provider}",
		Summary:     "Status of one provider",
		Tags:        []string{"status"},
	}, s.handleProviderStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "target-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status/{provider}/{model}",
		Summary:     "Status of one target",
		Tags:        []string{"status"},
	}, s.handleTargetStatus)

	// Raw health records
	huma.Register(s.api, huma.Operation{
		OperationID: "list-targets",
		Method:      http.MethodGet,
		Path:        "/api/v1/targets",
		Summary:     "List monitored targets",
		Tags:        []string{"targets"},
	}, s.handleListTargets)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-target-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/targets/{provider}/{model}/events",
		Summary:     "Probe history for one target",
		Tags:        []string{"targets"},
	}, s.handleListEvents)

	// Incidents
	huma.Register(s.api, huma.Operation{
		OperationID: "list-incidents",
		Method:      http.MethodGet,
		Path:        "/api/v1/incidents",
		Summary:     "List incidents",
		Tags:        []string{"incidents"},
	}, s.handleListIncidents)

	// Hourly aggregates
	huma.Register(s.api, huma.Operation{
		OperationID: "list-aggregates",
		Method:      http.MethodGet,
		Path:        "/api/v1/aggregates/{provider}/{model}",
		Summary:     "Hourly traffic aggregates for one target",
		Tags:        []string{"aggregates"},
	}, s.handleListAggregates)

	// Platform downtime history
	huma.Register(s.api, huma.Operation{
		OperationID: "list-downtime",
		Method:      http.MethodGet,
		Path:        "/api/v1/downtime",
		Summary:     "List platform downtime incidents",
		Tags:        []string{"downtime"},
	}, s.handleListDowntime)
}

// --- Request/Response types for huma ---

type platformStatusOutput struct {
	Body struct {
		status.PlatformStatus
		Traffic []ProviderTraffic `json:"traffic,omitempty" doc:"Cached last-24h request rollup per provider"`
	}
}

type providerStatusInput struct {
	Provider string `path:"provider" doc:"Provider name"`
}
type providerStatusOutput struct {
	Body status.ProviderStatus
}

type targetPathInput struct {
	Provider string `path:"provider" doc:"Provider name"`
	Model    string `path:"model" doc:"Model identifier"`
}
type targetStatusOutput struct {
	Body status.TargetStatus
}

type listTargetsInput struct {
	Provider    string `query:"provider" doc:"Filter by provider"`
	EnabledOnly bool   `query:"enabled_only" doc:"Only targets with monitoring enabled"`
	Limit       int    `query:"limit" minimum:"0" maximum:"1000" doc:"Page size (default 1000)"`
	Offset      int    `query:"offset" minimum:"0"`
}
type listTargetsOutput struct {
	Body struct {
		Targets []TargetDetail `json:"targets"`
	}
}

type listIncidentsInput struct {
	Provider       string    `query:"provider" doc:"Filter by provider"`
	Model          string    `query:"model" doc:"Filter by model"`
	UnresolvedOnly bool      `query:"unresolved_only" doc:"Only active or acknowledged incidents"`
	Since          time.Time `query:"since" doc:"Only incidents started at or after this time (RFC 3339)"`
	Limit          int       `query:"limit" minimum:"0" maximum:"1000"`
	Offset         int       `query:"offset" minimum:"0"`
}
type listIncidentsOutput struct {
	Body struct {
		Incidents []IncidentDetail `json:"incidents"`
	}
}

type listAggregatesInput struct {
	Provider string    `path:"provider"`
	Model    string    `path:"model"`
	From     time.Time `query:"from" doc:"Window start, inclusive (default now-24h)"`
	To       time.Time `query:"to" doc:"Window end, exclusive (default now)"`
}
type listAggregatesOutput struct {
	Body struct {
		Aggregates []AggregateRow `json:"aggregates"`
	}
}

type listEventsInput struct {
	Provider string    `path:"provider"`
	Model    string    `path:"model"`
	From     time.Time `query:"from" doc:"Window start, inclusive (default now-24h)"`
	To       time.Time `query:"to" doc:"Window end, exclusive (default now)"`
	Limit    int       `query:"limit" minimum:"0" maximum:"1000"`
	Offset   int       `query:"offset" minimum:"0"`
}
type listEventsOutput struct {
	Body struct {
		Events []EventRow `json:"events"`
	}
}

type listDowntimeInput struct {
	Limit  int `query:"limit" minimum:"0" maximum:"1000"`
	Offset int `query:"offset" minimum:"0"`
}
type listDowntimeOutput struct {
	Body struct {
		Downtime []DowntimeDetail `json:"downtime"`
	}
}

// --- Handlers ---

func (s *Server) handlePlatformStatus(ctx context.Context, _ *struct{}) (*platformStatusOutput, error) {
	plat, err := s.monitor.PlatformStatus(ctx)
	if err != nil {
		return nil, serviceError(err, "building platform status")
	}
	out := &platformStatusOutput{}
	out.Body.PlatformStatus = *plat
	for _, sum := range s.monitor.ProviderSummaries() {
		out.Body.Traffic = append(out.Body.Traffic, toProviderTraffic(sum))
	}
	return out, nil
}

func (s *Server) handleProviderStatus(ctx context.Context, input *providerStatusInput) (*providerStatusOutput, error) {
	ps, err := s.monitor.ProviderStatus(ctx, input.Provider)
	if err != nil {
		return nil, serviceError(err, fmt.Sprintf("building status for provider %q", input.Provider))
	}
	return &providerStatusOutput{Body: *ps}, nil
}

func (s *Server) handleTargetStatus(ctx context.Context, input *targetPathInput) (*targetStatusOutput, error) {
	ts, err := s.monitor.TargetStatus(ctx, input.Provider, input.Model)
	if err != nil {
		return nil, serviceError(err, fmt.Sprintf("building status for %s/%s", input.Provider, input.Model))
	}
	return &targetStatusOutput{Body: *ts}, nil
}

func (s *Server) handleListTargets(ctx context.Context, input *listTargetsInput) (*listTargetsOutput, error) {
	recs, err := s.monitor.Targets(ctx, store.HealthFilter{
		Provider:    input.Provider,
		EnabledOnly: input.EnabledOnly,
		Limit:       input.Limit,
		Offset:      input.Offset,
	})
	if err != nil {
		return nil, serviceError(err, "listing targets")
	}
	out := &listTargetsOutput{}
	out.Body.Targets = make([]TargetDetail, 0, len(recs))
	for _, rec := range recs {
		out.Body.Targets = append(out.Body.Targets, toTargetDetail(rec))
	}
	return out, nil
}

func (s *Server) handleListIncidents(ctx context.Context, input *listIncidentsInput) (*listIncidentsOutput, error) {
	incs, err := s.monitor.Incidents(ctx, store.IncidentFilter{
		Provider:       input.Provider,
		Model:          input.Model,
		UnresolvedOnly: input.UnresolvedOnly,
		Since:          input.Since,
		Limit:          input.Limit,
		Offset:         input.Offset,
	})
	if err != nil {
		return nil, serviceError(err, "listing incidents")
	}
	out := &listIncidentsOutput{}
	out.Body.Incidents = make([]IncidentDetail, 0, len(incs))
	for _, inc := range incs {
		out.Body.Incidents = append(out.Body.Incidents, toIncidentDetail(inc))
	}
	return out, nil
}

func (s *Server) handleListAggregates(ctx context.Context, input *listAggregatesInput) (*listAggregatesOutput, error) {
	from, to := input.From, input.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if !from.Before(to) {
		return nil, huma.Error400BadRequest(
			fmt.Sprintf("window start %s must precede end %s", from.Format(time.RFC3339), to.Format(time.RFC3339)))
	}

	aggs, err := s.monitor.Aggregates(ctx, input.Provider, input.Model, from, to)
	if err != nil {
		return nil, serviceError(err, fmt.Sprintf("listing aggregates for %s/%s", input.Provider, input.Model))
	}
	out := &listAggregatesOutput{}
	out.Body.Aggregates = make([]AggregateRow, 0, len(aggs))
	for _, agg := range aggs {
		out.Body.Aggregates = append(out.Body.Aggregates, toAggregateRow(agg))
	}
	return out, nil
}

func (s *Server) handleListEvents(ctx context.Context, input *listEventsInput) (*listEventsOutput, error) {
	from, to := input.From, input.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if !from.Before(to) {
		return nil, huma.Error400BadRequest(
			fmt.Sprintf("window start %s must precede end %s", from.Format(time.RFC3339), to.Format(time.RFC3339)))
	}

	events, err := s.monitor.Events(ctx, input.Provider, input.Model, from, to,
		store.ListOpts{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, serviceError(err, fmt.Sprintf("listing events for %s/%s", input.Provider, input.Model))
	}
	out := &listEventsOutput{}
	out.Body.Events = make([]EventRow, 0, len(events))
	for _, ev := range events {
		out.Body.Events = append(out.Body.Events, toEventRow(ev))
	}
	return out, nil
}

func (s *Server) handleListDowntime(ctx context.Context, input *listDowntimeInput) (*listDowntimeOutput, error) {
	downs, err := s.monitor.Downtimes(ctx, store.ListOpts{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, serviceError(err, "listing downtime incidents")
	}
	out := &listDowntimeOutput{}
	out.Body.Downtime = make([]DowntimeDetail, 0, len(downs))
	for _, d := range downs {
		out.Body.Downtime = append(out.Body.Downtime, toDowntimeDetail(d))
	}
	return out, nil
}

// serviceError maps monitor and store failures onto HTTP error responses.
// Not-found and conflict classifications travel both as pkg/errors codes
// and as store sentinels, so both are honored.
func serviceError(err error, msg string) error {
	switch {
	case pharoserr.IsNotFound(err) || errors.Is(err, store.ErrNotFound):
		return huma.Error404NotFound(msg, err)
	case pharoserr.IsConflict(err) || errors.Is(err, store.ErrConflict):
		return huma.Error409Conflict(msg, err)
	case pharoserr.IsInvalidInput(err) || errors.Is(err, store.ErrInvalidInput):
		return huma.Error400BadRequest(msg, err)
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}
