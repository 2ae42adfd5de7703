// Command corecastd serves corecast estimations over HTTP and gRPC.
//
// Fitted scaling models are cached by series fingerprint, in memory or in
// Redis when several replicas should share them.
//
// The service exposes:
//   - POST /estimate - JSON estimation request, JSON report reply
//   - GET /healthz   - Health check (includes the Redis connection)
//   - GET /metrics   - Prometheus metrics endpoint
//   - gRPC corecast.v1.Estimator/Estimate with google.protobuf.Struct payloads,
//     plus the standard health and reflection services
//
// Usage:
//
//	corecastd -listen=:8080 -grpc-listen=:50051 -storage=redis -redis-addr=redis:6379
//
// Environment variables:
//
//	LISTEN           - HTTP listen address (default: :8080)
//	GRPC_LISTEN      - gRPC listen address, empty to disable (default: :50051)
//	STORAGE          - Model cache backend: memory, redis (default: memory)
//	REDIS_ADDR       - Redis address (default: localhost:6379)
//	REDIS_PASSWORD   - Redis password
//	REDIS_DB         - Redis database number (default: 0)
//	MODEL_TTL        - Model cache TTL (default: 24h)
//	REQUEST_TIMEOUT  - Per-request estimation timeout (default: 10s)
//	TLS_ENABLED      - Serve HTTPS and gRPC over TLS
//	LOG_LEVEL        - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT       - Logging format: text, json (default: text)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/HatiCode/corecast/cmd/corecastd/config"
	"github.com/HatiCode/corecast/cmd/corecastd/router"
	"github.com/HatiCode/corecast/pkg/estimator"
	"github.com/HatiCode/corecast/pkg/httpx"
	"github.com/HatiCode/corecast/pkg/logging"
	"github.com/HatiCode/corecast/pkg/metrics"
	"github.com/HatiCode/corecast/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("corecastd failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting corecastd",
		"version", version,
		"listen", cfg.Listen,
		"grpc_listen", cfg.GRPCListen,
		"storage", cfg.Storage,
		"tls_enabled", cfg.TLS.Enabled,
	)

	store, healthCheck, closeStore, err := newStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()
	est := estimator.New(store, logger, m)

	tlsConfig, err := cfg.TLS.ServerConfig()
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	errCh := make(chan error, 2)

	var grpcOpts []grpc.ServerOption
	if tlsConfig != nil {
		grpcOpts = append(grpcOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	grpcServer, healthServer := newGRPCServer(est, cfg.RequestTimeout, logger, grpcOpts...)
	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", cfg.GRPCListen, err)
		}
		go func() {
			logger.Info("grpc server listening", "address", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	mux := router.SetupRoutes(est, router.Options{
		HealthCheck:    healthCheck,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)
	handler := httpx.RecoveryMiddleware(logger)(httpx.LoggingMiddleware(logger)(mux))

	httpServer := httpx.NewServer(cfg.Listen, handler, logger)
	if tlsConfig != nil {
		httpServer.SetTLSConfig(tlsConfig)
	}
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-errCh:
	}

	healthServer.Shutdown()
	logger.Info("shutting down grpc server")
	stopGRPC(grpcServer, cfg.ShutdownTimeout)

	logger.Info("shutting down http server")
	if err := httpServer.Stop(cfg.ShutdownTimeout); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return runErr
}

// newStore builds the model cache with its health check and cleanup.
func newStore(cfg *config.Config, logger *slog.Logger) (storage.Store, func(context.Context) error, func(), error) {
	switch cfg.Storage {
	case "redis":
		rs, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ModelTTL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create redis store: %w", err)
		}
		logger.Info("using redis model cache", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.ModelTTL)
		closeFn := func() {
			if err := rs.Close(); err != nil {
				logger.Error("failed to close redis store", "error", err)
			}
		}
		return rs, rs.Ping, closeFn, nil
	default:
		ms := storage.NewMemoryStoreWithTTL(cfg.ModelTTL, min(cfg.ModelTTL, 10*time.Minute))
		logger.Info("using in-memory model cache", "ttl", cfg.ModelTTL)
		return ms, nil, ms.Stop, nil
	}
}

// stopGRPC drains in-flight calls, forcing a stop after timeout.
func stopGRPC(srv *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		srv.Stop()
	}
}
