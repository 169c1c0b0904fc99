// Package main provides the entry point for the fleet monitor server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/narvanalabs/fleet-monitor/internal/alerts"
	"github.com/narvanalabs/fleet-monitor/internal/api"
	"github.com/narvanalabs/fleet-monitor/internal/auth"
	grpcserver "github.com/narvanalabs/fleet-monitor/internal/grpc"
	"github.com/narvanalabs/fleet-monitor/internal/metrics"
	"github.com/narvanalabs/fleet-monitor/internal/models"
	"github.com/narvanalabs/fleet-monitor/internal/nodes"
	"github.com/narvanalabs/fleet-monitor/internal/shutdown"
	"github.com/narvanalabs/fleet-monitor/internal/stream"
	"github.com/narvanalabs/fleet-monitor/internal/users"
	"github.com/narvanalabs/fleet-monitor/pkg/config"
	"github.com/narvanalabs/fleet-monitor/pkg/logger"
)

func main() {
	boot := logger.New(slog.LevelInfo, true)

	cfg, err := config.Load()
	if err != nil {
		boot.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.FromConfig(cfg.LogLevel, cfg.LogFormat)
	os.Exit(run(cfg, log))
}

func run(cfg *config.Config, log *logger.Logger) int {
	accounts, err := users.NewStore(cfg.BcryptCost, log.Component("users"))
	if err != nil {
		log.Error("failed to seed accounts", "error", err)
		return 1
	}

	authService := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
	}, log.Component("auth"))

	fleet := nodes.NewStore()
	fleet.Seed(nodes.DefaultNodes(time.Now())...)

	rules, err := loadRules(cfg.Alerts.RulesFile)
	if err != nil {
		log.Error("failed to load alert rules", "error", err, "file", cfg.Alerts.RulesFile)
		return 1
	}
	engine := alerts.NewEngine(
		alerts.WithRules(rules),
		alerts.WithLogger(log.Component("alerts")),
	)
	for _, n := range fleet.List() {
		engine.Evaluate(n)
	}

	aggregator := metrics.NewAggregator(metrics.WithCapacity(cfg.Metrics.Capacity))

	grpcCfg := grpcserver.DefaultConfig()
	grpcCfg.Addr = cfg.GRPCAddr()
	grpcServer := grpcserver.NewServer(grpcCfg, log.Component("grpc"))

	broadcaster := stream.NewBroadcaster(stream.Deps{
		Nodes:   fleet,
		Alerts:  engine,
		Metrics: aggregator,
		Users:   accounts,
		Tokens:  authService,
		Health:  grpcServer,
	}, stream.Config{
		UpdateInterval: cfg.Stream.UpdateInterval,
		PingInterval:   cfg.Stream.PingInterval,
		PingTimeout:    cfg.Stream.PingTimeout,
		WriteTimeout:   cfg.Stream.WriteTimeout,
	}, log.Component("stream"))
	engine.SetNotifier(broadcaster)
	grpcServer.ObserveHealth(nodes.Health(fleet.List(), time.Now()))

	server := api.NewServer(cfg, api.Deps{
		Users:       accounts,
		Auth:        authService,
		Nodes:       fleet,
		Alerts:      engine,
		Metrics:     aggregator,
		Broadcaster: broadcaster,
	}, log.Component("api"))

	// Bind both listeners before anything runs so a taken port aborts startup.
	httpLn, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		log.Error("failed to bind HTTP listener", "error", err, "addr", cfg.Addr())
		return 1
	}
	grpcLn, err := net.Listen("tcp", grpcCfg.Addr)
	if err != nil {
		httpLn.Close()
		log.Error("failed to bind gRPC listener", "error", err, "addr", grpcCfg.Addr)
		return 1
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	failCtx, fail := context.WithCancelCause(context.Background())
	defer fail(nil)

	go func() {
		if err := server.Serve(runCtx, httpLn); err != nil {
			fail(fmt.Errorf("http server: %w", err))
		}
	}()
	go func() {
		if err := grpcServer.Serve(runCtx, grpcLn); err != nil {
			fail(fmt.Errorf("grpc server: %w", err))
		}
	}()
	go broadcaster.Run(runCtx)

	log.Info("fleet monitor started",
		"http_addr", cfg.Addr(),
		"grpc_addr", grpcCfg.Addr,
		"nodes", fleet.Len(),
		"rules", len(engine.Rules()),
		"version", api.Version,
	)

	// Stop order is the reverse of registration: sessions are closed first,
	// then the HTTP listener, then gRPC health.
	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Component("shutdown")),
	)
	coordinator.Register(grpcServer)
	coordinator.Register(server)
	coordinator.Register(broadcaster)

	if err := coordinator.WaitForSignal(failCtx); err != nil {
		log.Error("shutdown incomplete", "error", err)
	}

	if cause := context.Cause(failCtx); cause != nil && cause != context.Canceled {
		log.Error("server failed", "error", cause)
		return 1
	}
	log.Info("fleet monitor stopped")
	return coordinator.ExitCode()
}

func loadRules(path string) ([]models.AlertRule, error) {
	if path == "" {
		return alerts.DefaultRules(), nil
	}
	return alerts.LoadRulesFile(path)
}
