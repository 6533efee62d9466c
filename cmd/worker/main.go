package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artifactchain/relay/internal/health"
	"github.com/artifactchain/relay/internal/metrics"
	"github.com/artifactchain/relay/internal/peer"
	"github.com/artifactchain/relay/internal/tracing"
	"github.com/artifactchain/relay/internal/worker"
	"github.com/artifactchain/relay/pkg/broker"
	"github.com/artifactchain/relay/pkg/config"
)

const serviceName = "submission-worker"

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfgPath := getenv("RELAY_CONFIG_PATH", "")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] load config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] invalid config:", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingShutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		SampleRatio:  cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		logger.Warn("tracing setup failed, continuing without traces", "err", err)
	}

	b, err := broker.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, logger)
	if err != nil {
		logger.Error("broker connect", "addr", cfg.RedisAddr, "err", err)
		os.Exit(1)
	}
	defer b.Close()

	metrics.RegisterQueueCollector(b.Client(), []string{cfg.QueueCreated, cfg.QueueSubmitted}, logger)

	peerClient := peer.NewClient(cfg.PeerURL, time.Duration(cfg.PeerTimeoutSeconds)*time.Second, logger)
	handler := worker.NewHandler(peerClient, b, cfg.QueueCreated, cfg.QueueSubmitted, logger, time.Now)

	healthSrv := health.NewServer(serviceName, logger, map[string]health.Check{
		"redis": func(ctx context.Context) error { return b.Client().Ping(ctx).Err() },
	})
	go func() {
		if err := healthSrv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.HealthPort)); err != nil {
			logger.Error("health server", "err", err)
		}
	}()

	logger.Info("worker started", "queue", cfg.QueueCreated, "peer", cfg.PeerURL)
	if err := worker.Run(ctx, b, handler); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consume loop", "err", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if tracingShutdown != nil {
		_ = tracingShutdown(shutdownCtx)
	}
	logger.Info("worker stopped")
}
