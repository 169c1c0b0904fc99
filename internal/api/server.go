// Package api provides the HTTP API server for the fleet monitor.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/narvanalabs/fleet-monitor/internal/alerts"
	"github.com/narvanalabs/fleet-monitor/internal/api/handlers"
	"github.com/narvanalabs/fleet-monitor/internal/api/health"
	"github.com/narvanalabs/fleet-monitor/internal/api/middleware"
	"github.com/narvanalabs/fleet-monitor/internal/auth"
	"github.com/narvanalabs/fleet-monitor/internal/metrics"
	"github.com/narvanalabs/fleet-monitor/internal/nodes"
	"github.com/narvanalabs/fleet-monitor/internal/stream"
	"github.com/narvanalabs/fleet-monitor/internal/users"
	"github.com/narvanalabs/fleet-monitor/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Deps are the components the API serves.
type Deps struct {
	Users       *users.Store
	Auth        *auth.Service
	Nodes       *nodes.Store
	Alerts      *alerts.Engine
	Metrics     *metrics.Aggregator
	Broadcaster *stream.Broadcaster
}

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	config        *config.Config
	deps          Deps
	rbac          *auth.RBACService
	logger        *slog.Logger
	healthChecker *health.Checker

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		rbac:   auth.NewRBACService(deps.Users, logger),
		logger: logger,
	}

	s.healthChecker = health.NewChecker(Version)
	s.healthChecker.Register("simulator",
		health.SimulatorFreshness(deps.Nodes.LastTick, cfg.Stream.UpdateInterval, time.Now))
	s.healthChecker.Register("stream", health.StreamRegistry(deps.Broadcaster.SessionCount))

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.CORS(s.config.CORSOrigin))

	// Liveness (no auth required)
	r.Get("/health", s.healthChecker.Handler())

	// Push stream authenticates with its own ?token= parameter and must not
	// run under the request timeout.
	r.Get("/ws", s.deps.Broadcaster.ServeWS)

	authHandler := handlers.NewAuthHandler(s.deps.Users, s.deps.Auth, s.logger)
	nodesHandler := handlers.NewNodesHandler(s.deps.Nodes, s.deps.Broadcaster, s.logger)
	fleetHandler := handlers.NewFleetHandler(s.deps.Nodes)
	alertsHandler := handlers.NewAlertsHandler(s.deps.Alerts, s.logger)
	metricsHandler := handlers.NewMetricsHandler(s.deps.Metrics)
	usersHandler := handlers.NewUsersHandler(s.deps.Users, s.rbac, s.deps.Broadcaster, s.logger)

	loginLimiter := middleware.NewRateLimiter(s.config.RateLimit.LoginRate, s.config.RateLimit.LoginBurst, s.logger)
	authMiddleware := middleware.NewAuthMiddleware(s.deps.Auth, s.logger)
	require := func(perm auth.Permission) func(http.Handler) http.Handler {
		return middleware.RequirePermission(s.rbac, perm, s.logger)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		// Public routes
		r.With(loginLimiter.Handler).Post("/auth/login", authHandler.Login)
		r.Get("/metrics/public", metricsHandler.Public)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/auth/me", authHandler.Me)

			r.Route("/nodes", func(r chi.Router) {
				r.With(require(auth.PermissionView)).Get("/", nodesHandler.List)
				r.With(require(auth.PermissionView)).Get("/{nodeID}", nodesHandler.Get)
				r.With(require(auth.PermissionManageNodes)).Put("/{nodeID}", nodesHandler.Put)
				r.With(require(auth.PermissionManageNodes)).Delete("/{nodeID}", nodesHandler.Delete)
			})

			r.With(require(auth.PermissionView)).Get("/health", fleetHandler.Health)
			r.With(require(auth.PermissionView)).Get("/status", fleetHandler.Status)
			r.With(require(auth.PermissionView)).Get("/metrics", metricsHandler.Metrics)

			r.Route("/alerts", func(r chi.Router) {
				r.With(require(auth.PermissionView)).Get("/", alertsHandler.List)
				r.With(require(auth.PermissionView)).Get("/active", alertsHandler.Active)

				r.Route("/rules", func(r chi.Router) {
					r.With(require(auth.PermissionView)).Get("/", alertsHandler.ListRules)
					r.Group(func(r chi.Router) {
						r.Use(require(auth.PermissionManageRules))
						r.Post("/", alertsHandler.CreateRule)
						r.Put("/{ruleID}", alertsHandler.UpdateRule)
						r.Delete("/{ruleID}", alertsHandler.DeleteRule)
					})
				})

				r.With(require(auth.PermissionAcknowledge)).Post("/{alertID}/acknowledge", alertsHandler.Acknowledge)
				r.With(require(auth.PermissionManageRules)).Delete("/{alertID}", alertsHandler.Delete)
			})

			r.Route("/users", func(r chi.Router) {
				r.With(require(auth.PermissionManageUsers)).Get("/", usersHandler.List)
				r.With(require(auth.PermissionManageUsers)).Post("/", usersHandler.Create)
				r.Put("/{userID}/preferences", usersHandler.UpdatePreferences)
			})
		})
	})

	s.router = r
}

// Start binds the listen address and serves until ctx is cancelled, then
// shuts the server down. A bind failure is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting API server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the HTTP server. Hijacked stream
// connections are not tracked by it and are closed by the broadcaster.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Name identifies the server to the shutdown coordinator.
func (s *Server) Name() string {
	return "http-server"
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
