// Package grpc exposes fleet health over the standard gRPC health protocol.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/narvanalabs/fleet-monitor/internal/models"
)

// FleetService is the health service name that mirrors fleet health.
const FleetService = "fleet"

// Config holds the gRPC server configuration.
type Config struct {
	Addr                 string
	MaxConcurrentStreams uint32
	KeepaliveTime        time.Duration
	KeepaliveTimeout     time.Duration
	// StopTimeout bounds GracefulStop before open streams are cut.
	StopTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:                 ":9091",
		MaxConcurrentStreams: 100,
		KeepaliveTime:        30 * time.Second,
		KeepaliveTimeout:     10 * time.Second,
		StopTimeout:          10 * time.Second,
	}
}

// Server serves grpc.health.v1.Health. The overall service and FleetService
// report SERVING unless the last observed fleet health was critical.
type Server struct {
	config *Config
	logger *slog.Logger

	grpcServer *grpc.Server
	health     *health.Server

	mu       sync.Mutex
	last     models.HealthStatus
	listener net.Listener
}

// NewServer creates a new gRPC server instance.
func NewServer(cfg *Config, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		logger: logger,
		health: health.NewServer(),
		last:   models.HealthHealthy,
	}

	s.grpcServer = grpc.NewServer(
		grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			s.recoveryInterceptor(),
			s.loggingInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			s.streamLoggingInterceptor(),
		),
	)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	s.setServing(healthpb.HealthCheckResponse_SERVING)
	return s
}

// ObserveHealth updates the served status from a fleet health result.
func (s *Server) ObserveHealth(h models.SystemHealth) {
	s.mu.Lock()
	changed := h.Status != s.last
	s.last = h.Status
	s.mu.Unlock()

	if !changed {
		return
	}

	status := healthpb.HealthCheckResponse_SERVING
	if h.Status == models.HealthCritical {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.logger.Info("fleet health changed", "status", h.Status, "serving", status.String())
	s.setServing(status)
}

func (s *Server) setServing(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(FleetService, status)
}

// Start binds the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("gRPC server starting", "address", lis.Addr().String())

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving gRPC: %w", err)
	}
	return nil
}

// Addr returns the bound address, or "" before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop marks every service NOT_SERVING and stops the server, waiting for
// in-flight calls up to StopTimeout or ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("gRPC server stopping")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("gRPC server stopped gracefully")
	case <-time.After(s.config.StopTimeout):
		s.logger.Warn("gRPC server graceful stop timed out, forcing stop")
		s.grpcServer.Stop()
	case <-ctx.Done():
		s.logger.Warn("context cancelled, forcing stop")
		s.grpcServer.Stop()
	}
	return nil
}

// Shutdown implements the shutdown coordinator's component contract.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Stop(ctx)
}

// Name identifies the server to the shutdown coordinator.
func (s *Server) Name() string {
	return "grpc-server"
}
