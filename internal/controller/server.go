// Package controller wires the HTTP API: routes, middleware and server
// lifecycle.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tenantplane/internal/config"
	"tenantplane/internal/controller/handlers"
	"tenantplane/internal/controller/middleware"
)

// Server is the HTTP server for the provisioning API.
type Server struct {
	httpServer *http.Server
}

// New builds the server. metrics may be nil to disable the /metrics route.
func New(cfg *config.Config, h *handlers.Handlers, metrics http.Handler, log *slog.Logger) *Server {
	authMW := middleware.APIKey(cfg.APIKey)
	rateMW := middleware.RateLimit(cfg.RateLimitPerMin, cfg.RateLimitBurst)
	logMW := middleware.RequestLog(log)

	protected := func(hf http.HandlerFunc) http.Handler {
		return rateMW(authMW(hf))
	}

	mux := http.NewServeMux()

	mux.Handle("POST /bootstrap/users", protected(h.BootstrapUser))
	mux.Handle("POST /teardown/users", protected(h.TeardownUser))
	mux.Handle("GET /jobs/{id}", protected(h.JobStatus))
	mux.Handle("GET /jobs/{id}/result", protected(h.JobResult))

	mux.Handle("GET /tenants", protected(h.ListTenants))
	mux.Handle("PUT /tenants/{namespace}/limits", protected(h.SetLimits))
	mux.Handle("GET /tenants/{namespace}/quota", protected(h.GetQuota))
	mux.Handle("POST /tenants/{namespace}/clusters", protected(h.RegisterCluster))
	mux.Handle("DELETE /tenants/{namespace}/clusters", protected(h.ReleaseCluster))
	mux.Handle("POST /tenants/{namespace}/db-users", protected(h.RegisterDBUser))
	mux.Handle("DELETE /tenants/{namespace}/db-users", protected(h.ReleaseDBUser))

	mux.Handle("GET /accounts", protected(h.ListAccounts))
	mux.Handle("POST /accounts/enable", protected(h.EnableAccount))
	mux.Handle("POST /accounts/disable", protected(h.DisableAccount))
	mux.Handle("POST /accounts/set-password", protected(h.SetPassword))

	// Unauthenticated: probes and scrapers.
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler: logMW(mux),
			// Jobs run asynchronously; requests themselves are short.
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Handler exposes the routed handler (tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
