// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"sandplane/internal/auth"
	"sandplane/internal/controller/handlers"
	"sandplane/internal/controller/middleware"
)

// Options wires the server to its dependencies.
type Options struct {
	Lifecycle handlers.Lifecycle
	Login     handlers.LoginFlow
	// Validator resolves bearer tokens. Nil disables authentication.
	Validator   auth.Validator
	RateLimiter *middleware.RateLimiter
	// InternalSecret guards /internal routes. Empty leaves them unregistered.
	InternalSecret string
	Metrics        http.Handler
	// WriteTimeout must exceed the provisioner timeout since create is synchronous.
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new controller server.
func New(addr string, opts Options) *Server {
	h := handlers.New(opts.Lifecycle, opts.Login, opts.Logger)

	var authMW func(http.Handler) http.Handler
	if opts.Validator == nil {
		opts.Logger.Warn("authentication disabled, all requests run as anonymous")
		authMW = middleware.SkipAuth
	} else {
		authMW = middleware.Authenticate(opts.Validator, opts.Logger)
	}
	limiter := opts.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter()
	}
	rateLimitMW := limiter.Middleware()

	protected := func(fn http.HandlerFunc) http.Handler {
		return authMW(rateLimitMW(fn))
	}

	mux := http.NewServeMux()

	// Public authenticated apis
	mux.Handle("POST /sandboxes", protected(h.CreateSandbox))
	mux.Handle("GET /sandboxes", protected(h.ListSandboxes))
	mux.Handle("GET /sandboxes/{name}", protected(h.GetSandbox))
	mux.Handle("DELETE /sandboxes/{name}", protected(h.DeleteSandbox))
	mux.Handle("GET /jobs", protected(h.ListJobs))

	// Login
	mux.HandleFunc("GET /auth/login", h.Login)
	mux.HandleFunc("GET /auth/callback", h.Callback)

	// Probes
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	// Internal endpoints
	// Operator only, these should run on a separate port or strict network rules.
	if opts.InternalSecret != "" {
		internalMW := middleware.RequireInternalAuth(opts.InternalSecret)
		mux.Handle("POST /internal/reconcile", internalMW(http.HandlerFunc(h.Reconcile)))
	}

	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 3 * time.Minute
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      middleware.RequestID(opts.Logger)(mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: writeTimeout,
		},
		logger: opts.Logger,
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		s.logger.Info("controller listening", "addr", s.httpServer.Addr)
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
