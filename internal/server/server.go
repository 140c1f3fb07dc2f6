// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

// Package server exposes the monitor over HTTP: a public read-only status
// API, an admin API behind a bearer token, Prometheus metrics, and the
// OpenAPI document huma generates for both.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pharos-dev/pharos/internal/metrics"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr  string
	CORSOrigins []string

	// AdminToken guards the /api/v1/admin subtree. Empty disables the
	// admin API: those routes answer 503 until a token is configured.
	AdminToken string

	RateLimit RateLimitConfig

	// Metrics hooks the instrument set's registry onto /metrics.
	// Nil leaves the route unregistered.
	Metrics *metrics.Set

	EnableHSTS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wraps a chi router with the huma API and HTTP server lifecycle.
type Server struct {
	router  chi.Router
	api     huma.API
	cfg     Config
	monitor Monitor

	// done stops the rate limiter cleanup goroutine on shutdown.
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Server with the full middleware stack and the routes that
// do not need a monitor: /health, /metrics, /openapi.json. Monitor-backed
// routes appear once RegisterMonitor is called.
func New(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, pharoserr.New(pharoserr.CodeServerConfigInvalid, "listen address is required")
	}
	for _, origin := range cfg.CORSOrigins {
		if origin == "*" {
			return nil, pharoserr.New(pharoserr.CodeServerConfigInvalid,
				"CORS origin \"*\" is not allowed with credentialed requests; list explicit origins")
		}
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}

	done := make(chan struct{})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(securityHeaders(cfg.EnableHSTS))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(corsMiddleware(cfg.CORSOrigins))
	}
	// Rate limiting runs before auth so unauthenticated brute force against
	// the admin token is throttled like any other traffic.
	r.Use(rateLimitMiddleware(cfg.RateLimit, done))
	r.Use(adminAuthMiddleware(cfg.AdminToken))

	humaConfig := huma.DefaultConfig("Pharos Monitor", "0.1.0")
	humaConfig.Info.Description = "Health monitoring for AI gateway targets"
	api := humachi.New(r, humaConfig)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*HealthResponse, error) {
		return &HealthResponse{Body: HealthBody{Status: "ok"}}, nil
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	return &Server{
		router: r,
		api:    api,
		cfg:    cfg,
		done:   done,
	}, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return pharoserr.Wrapf(err, pharoserr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()
	s.stopCleanup()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return pharoserr.Wrap(err, pharoserr.CodeServerShutdownFailure, "shutting down")
	}

	return <-errCh
}

// Close releases background resources. Needed only when the server was
// constructed but Start never ran (Start stops them itself).
func (s *Server) Close() error {
	s.stopCleanup()
	return nil
}

func (s *Server) stopCleanup() {
	s.doneOnce.Do(func() { close(s.done) })
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// securityHeaders sets strict defaults on every response. The API serves
// JSON only, so a locked-down CSP costs nothing.
func securityHeaders(hsts bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Cache-Control", "no-store")
			h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; frame-ancestors 'none'")
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
