// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"imageforge/internal/auth"
	"imageforge/internal/controller/handlers"
	"imageforge/internal/controller/middleware"
)

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// Options configures the controller server.
type Options struct {
	Addr      string
	Keyring   *auth.Keyring
	RateLimit float64 // requests per second per owner, 0 disables
	RateBurst int

	// Download responses stream whole archives; they get a longer write
	// timeout than the JSON endpoints.
	WriteTimeout time.Duration
}

// New creates a new controller server.
func New(h *handlers.Handlers, opts Options) *Server {
	authMW := middleware.AuthMiddleware(opts.Keyring)
	rateMW := middleware.RateLimitMiddleware(opts.RateLimit, opts.RateBurst)

	api := http.NewServeMux()

	// Catalog and synchronous execution
	api.HandleFunc("GET /operations", h.ListOperations)
	api.HandleFunc("POST /operations/preview", h.Preview)
	api.HandleFunc("POST /run", h.Run)

	// Batch jobs
	api.HandleFunc("POST /jobs", h.SubmitJob)
	api.HandleFunc("GET /jobs/{id}", h.GetJob)
	api.HandleFunc("POST /jobs/{id}/cancel", h.CancelJob)
	api.HandleFunc("POST /jobs/{id}/resubmit", h.ResubmitJob)
	api.HandleFunc("GET /jobs/{id}/download", h.DownloadJob)

	// Admin endpoints
	api.Handle("GET /queue/stats", middleware.RequireAdmin(http.HandlerFunc(h.QueueStats)))

	mux := http.NewServeMux()
	mux.Handle("/", middleware.RequestIDMiddleware(authMW(rateMW(api))))

	// Probes are unauthenticated so orchestrators can reach them.
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)

	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 120 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: writeTimeout,
		},
	}
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
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
