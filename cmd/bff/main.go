// Package main is the entry point for the BillTrack Pro BFF server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/billtrack/bff/internal/config"
	"github.com/billtrack/bff/internal/dashboard"
	"github.com/billtrack/bff/internal/gateway"
	"github.com/billtrack/bff/internal/idempotency"
	"github.com/billtrack/bff/internal/observability"
	"github.com/billtrack/bff/internal/reports"
	"github.com/billtrack/bff/internal/session"
	"github.com/billtrack/bff/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags and load any local .env file.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	_ = godotenv.Load()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "billtrack-bff", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Build the billing backend gateway stack.
	backendClient := gateway.NewClient(cfg.Backend)
	backendClient.SetMetrics(metrics)
	clientsGW := gateway.NewClients(backendClient)
	invoicesGW := gateway.NewInvoices(backendClient)
	settingsGW := gateway.NewSettings(backendClient)

	// Step 5: Per-subject session registry and screen providers.
	sessions := session.NewRegistry(clientsGW, invoicesGW, settingsGW,
		cfg.UI.PageSize, cfg.Session.TTL, cfg.Session.SweepInterval)
	defer sessions.Close()
	sessions.OnCountChange(func(n int) { metrics.SetActiveSessions(float64(n)) })

	dashboardProvider := dashboard.NewProvider(invoicesGW,
		cfg.Dashboard.Cache.TTL, cfg.Dashboard.Cache.MaxEntries,
		cfg.UI.PageSize, cfg.UI.RecentInvoices)
	reportsProvider := reports.NewProvider(invoicesGW)

	// Step 6: Idempotency store.
	idemStore, idemCloser := buildIdempotencyStore(cfg.Idempotency, logger)

	// Step 7: Authentication.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)

	// Step 8: Readiness checks.
	readiness := observability.ReadinessChecks{
		BackendCircuitClosed: func() bool {
			return backendClient.Breaker().State() != gateway.BreakerOpen
		},
	}
	if hc, ok := idemStore.(observability.HealthChecker); ok {
		readiness.IdempotencyStore = hc
	}

	// Step 9: Build the HTTP router.
	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Sessions:     sessions,
		Dashboard:    dashboardProvider,
		Reports:      reportsProvider,
		Idempotency:  idemStore,
		Readiness:    readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 10: Start the HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("backend", cfg.Backend.BaseURL),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if idemCloser != nil {
		idemCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildIdempotencyStore creates the idempotency store based on config.
// The redis driver falls back to the in-memory store when no address is
// configured, so a local setup needs nothing beyond the defaults.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (idempotency.Store, func()) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Store.Driver {
	case "redis":
		addr := os.Getenv(cfg.Store.AddrEnv)
		if addr == "" {
			logger.Warn("idempotency store redis address not configured, using in-memory store",
				zap.String("addr_env", cfg.Store.AddrEnv))
			return idempotency.NewMemoryStore(), nil
		}
		client := redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   cfg.Store.DB,
		})
		logger.Info("using redis idempotency store", zap.String("addr", addr))
		return idempotency.NewRedisStore(client), func() { _ = client.Close() }
	default:
		logger.Info("using in-memory idempotency store")
		return idempotency.NewMemoryStore(), nil
	}
}
