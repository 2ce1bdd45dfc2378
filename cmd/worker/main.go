// Package main is the entry point for the imageforge worker.
// The worker pulls claimed job items from the queue and executes them.
// It owns concurrency, per-item limits and engine process management.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"imageforge/internal/catalog"
	"imageforge/internal/compiler"
	"imageforge/internal/config"
	"imageforge/internal/engine"
	"imageforge/internal/executor"
	"imageforge/internal/guard"
	"imageforge/internal/logger"
	"imageforge/internal/observability"
	"imageforge/internal/store/postgres"
	"imageforge/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New("worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()
	store.SetPerJobLimit(cfg.PerJobLimit)

	// Tracing
	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, "imageforge-worker", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				log.Printf("Failed to shutdown tracer: %v", err)
			}
		}()
	}

	for _, dir := range []string{cfg.ProcessedDir, cfg.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	gd, err := guard.New(cfg.AllowedRoots, cfg.ProcessedDir, cfg.TempDir, guard.Limits{
		MaxDuration:    cfg.MaxDuration,
		MaxMemoryBytes: cfg.MaxMemoryBytes,
		MaxDiskBytes:   cfg.MaxDiskBytes,
	})
	if err != nil {
		log.Fatalf("Failed to create path guard: %v", err)
	}

	comp := compiler.New(catalog.New(), gd)

	cli, err := newCLIEngine(cfg)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	var inference engine.Engine
	if cfg.InferenceURL != "" {
		inference = engine.NewInferenceEngine(cfg.InferenceURL)
	}

	exec := executor.New(executor.Options{
		CLI:       cli,
		Inference: inference,
		Guard:     gd,
		Binary:    cfg.MagickBin,
		Logger:    slogger,
	})

	hostname, _ := os.Hostname()
	agent := worker.New(store, comp, exec, worker.AgentConfig{
		ID:           hostname,
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
	})

	// Metrics
	if cfg.MetricsAddr != "" {
		metricsHandler, shutdownMetrics, err := observability.InitMetrics("imageforge-worker")
		if err != nil {
			log.Fatalf("Failed to init metrics: %v", err)
		}
		defer func() {
			if err := shutdownMetrics(context.Background()); err != nil {
				log.Printf("Failed to shutdown metrics: %v", err)
			}
		}()

		meters, err := observability.NewWorkerMetrics()
		if err != nil {
			log.Fatalf("Failed to create worker metrics: %v", err)
		}
		agent.SetMetrics(meters)

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metricsHandler)
			log.Printf("Worker metrics listening on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	go agent.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()

	<-agent.Done()
}

func newCLIEngine(cfg *config.Config) (engine.Engine, error) {
	if cfg.Engine == "docker" {
		mounts := append([]string{}, cfg.AllowedRoots...)
		return engine.NewDockerEngine(cfg.DockerImage, cfg.MagickBin, mounts)
	}
	return engine.NewProcessEngine(), nil
}
