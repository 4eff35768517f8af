package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sundayezeilo/shortlink/internal/account"
	"github.com/sundayezeilo/shortlink/internal/auth"
	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/httpx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

// Deps are the request handlers and collaborators the routes need.
type Deps struct {
	Links    *shortener.Handler
	Verifier *auth.Verifier
	Accounts account.Service
}

// Server represents the HTTP server with all dependencies.
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	deps    Deps
	limiter *httpx.RateLimiter
	server  *http.Server
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	return &Server{
		config:  cfg,
		logger:  logger,
		deps:    deps,
		limiter: httpx.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	}
}

// Handler returns the fully wrapped route table.
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.setupRoutes())
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting http server",
			"addr", s.server.Addr,
			"env", s.config.App.Environment,
		)
		serverErrors <- s.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var reason string
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		reason = sig.String()
	case <-ctx.Done():
		reason = "context canceled"
	}

	s.logger.Info("received shutdown signal", "signal", reason)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		// Force close if graceful shutdown fails
		if closeErr := s.server.Close(); closeErr != nil {
			return fmt.Errorf("failed to close server: %w", closeErr)
		}
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	h := s.deps.Links

	authed := auth.Authenticate(s.deps.Verifier, s.deps.Accounts, s.logger)
	admin := httpx.Chain(authed, auth.RequireRole(account.RoleAdmin))
	limited := httpx.RateLimit(s.limiter)

	mux.HandleFunc("GET /x/health", s.healthCheckHandler)

	mux.Handle("POST /api/links", authed(http.HandlerFunc(h.CreateLink)))
	mux.Handle("GET /api/links", authed(http.HandlerFunc(h.ListLinks)))
	mux.Handle("GET /api/links/availability", authed(http.HandlerFunc(h.Availability)))
	mux.Handle("PATCH /api/links/{id}", authed(http.HandlerFunc(h.UpdateLink)))
	mux.Handle("DELETE /api/links/{id}", authed(http.HandlerFunc(h.DeleteLink)))
	mux.Handle("GET /api/me", authed(http.HandlerFunc(auth.Me)))
	mux.Handle("GET /api/admin/links", admin(http.HandlerFunc(h.ListAllLinks)))

	// Public redirect surface. Reserved codes cover every prefix above.
	mux.Handle("GET /{code}", limited(http.HandlerFunc(h.ResolveLink)))
	mux.Handle("GET /{code}/qr", limited(http.HandlerFunc(h.QRCode)))

	return mux
}

// applyMiddleware wraps the handler with middleware in the correct order.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	return httpx.Chain(
		httpx.Recovery(s.logger), // Outermost: catch panics
		httpx.RequestID,
		httpx.Logger(s.logger),
		httpx.CORS(s.config.Server.CORSOrigins),
	)(handler)
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.config.Observability.ServiceName,
		"version": s.config.Observability.ServiceVersion,
	})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("shutdown timeout exceeded, forcing close")
			return s.server.Close()
		}
		return err
	}

	return nil
}
