// Package main implements the entry point for bridged, the cross-domain
// sensor correlation agent: it joins the NATS substrate, serves the
// capability registry and pattern library, and runs the stream-to-verdict
// correlation pipeline.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/bridgekit/config"
	"github.com/c360/bridgekit/correlation"
	"github.com/c360/bridgekit/engine"
	"github.com/c360/bridgekit/health"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/pattern"
	"github.com/c360/bridgekit/registry"
	"github.com/c360/bridgekit/significance"
	"github.com/c360/bridgekit/stream"
	"github.com/c360/bridgekit/stream/transport"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "bridged"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("agent failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.NewLoader().LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("configuration is valid")
		return nil
	}

	ctx := context.Background()
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	mr := metric.NewMetricsRegistry()
	core := mr.CoreMetrics()

	slog.Info("connecting to NATS", "url", cfg.NATS.Options().URL)
	client, err := natsclient.Connect(cfg.NATS.Options(), slog.Default(), core)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() { _ = client.Close() }()

	eng, err := buildEngine(ctx, cfg, client, mr)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	monitor := health.NewMonitor(appName)
	monitor.Register("nats", func() health.Status {
		if client.IsConnected() {
			return health.Healthy("", "")
		}
		return health.Unhealthy("", "connection lost")
	})

	metricsSrv := startMetricsServer(cfg, mr, monitor)
	if metricsSrv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	slog.Info("bridged started", "agent", cfg.Agent.ID, "version", Version)
	<-signalCtx.Done()
	slog.Info("received shutdown signal")
	return nil
}

// buildEngine wires registry, stream manager, correlator, evaluator and
// pattern library over the shared NATS substrate.
func buildEngine(ctx context.Context, cfg *config.Config, client *natsclient.Client, mr *metric.MetricsRegistry) (*engine.Engine, error) {
	core := mr.CoreMetrics()

	regKV, err := client.KeyValue(ctx, cfg.NATS.RegistryBucket)
	if err != nil {
		return nil, fmt.Errorf("open registry bucket: %w", err)
	}
	reg, err := registry.New(natsclient.NewStore(regKV), cfg.Registry, slog.Default(), mr)
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}

	patKV, err := client.KeyValue(ctx, cfg.NATS.PatternBucket)
	if err != nil {
		return nil, fmt.Errorf("open pattern bucket: %w", err)
	}
	lib, err := pattern.NewLibrary(natsclient.NewStore(patKV), cfg.Pattern, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("create pattern library: %w", err)
	}
	if err := lib.Seed(ctx); err != nil {
		return nil, fmt.Errorf("seed pattern library: %w", err)
	}

	mgr, err := stream.NewManager(reg, cfg.Stream, slog.Default(), core)
	if err != nil {
		return nil, fmt.Errorf("create stream manager: %w", err)
	}
	mgr.RegisterTransport(transport.NewHub())
	mgr.RegisterTransport(transport.NewNATSTransport(client.Conn()))
	mgr.RegisterTransport(transport.NewWSTransport())
	mgr.RegisterTransport(transport.NewMQTTTransport(cfg.Agent.ID))

	corr, err := correlation.NewEngine(cfg.Correlation, slog.Default(), core)
	if err != nil {
		return nil, fmt.Errorf("create correlation engine: %w", err)
	}

	eval, err := significance.NewEvaluator(cfg.Significance, slog.Default(), core, lib)
	if err != nil {
		return nil, fmt.Errorf("create significance evaluator: %w", err)
	}

	return engine.New(engine.Options{
		AgentID:    cfg.Agent.ID,
		Registry:   reg,
		Streams:    mgr,
		Correlator: corr,
		Evaluator:  eval,
		Library:    lib,
		Logger:     slog.Default(),
		Metrics:    core,
	})
}

// startMetricsServer exposes /metrics and /healthz when enabled. Failures are
// logged, not fatal; the agent can run without observability scraping.
func startMetricsServer(cfg *config.Config, mr *metric.MetricsRegistry, monitor *health.Monitor) *http.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", mr.Handler())
	mux.Handle("/healthz", monitor.Handler())
	srv := &http.Server{
		Addr:              cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics endpoint listening", "addr", cfg.Metrics.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("metrics server stopped", "error", err)
		}
	}()
	return srv
}
