// Package main is the entry point for the imageforge controller.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imageforge/internal/auth"
	"imageforge/internal/catalog"
	"imageforge/internal/compiler"
	"imageforge/internal/config"
	"imageforge/internal/controller"
	"imageforge/internal/controller/handlers"
	"imageforge/internal/engine"
	"imageforge/internal/executor"
	"imageforge/internal/guard"
	"imageforge/internal/logger"
	"imageforge/internal/observability"
	"imageforge/internal/packager"
	"imageforge/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New("controller")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Postgres (runs migrations)
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Tracing
	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, "imageforge-controller", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				log.Printf("Failed to shutdown tracer: %v", err)
			}
		}()
	}

	// Metrics
	if cfg.MetricsAddr != "" {
		metricsHandler, shutdownMetrics, err := observability.InitMetrics("imageforge-controller")
		if err != nil {
			log.Fatalf("Failed to init metrics: %v", err)
		}
		defer func() {
			if err := shutdownMetrics(context.Background()); err != nil {
				log.Printf("Failed to shutdown metrics: %v", err)
			}
		}()

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metricsHandler)
			log.Printf("Metrics listening on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	for _, dir := range []string{cfg.ProcessedDir, cfg.TempDir, cfg.ArchiveDir} {
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

	cat := catalog.New()
	comp := compiler.New(cat, gd)

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

	pkgOpts := packager.Options{
		Jobs:      store,
		Dir:       cfg.ArchiveDir,
		Retention: cfg.ArchiveRetention,
		Logger:    slogger,
	}
	if cfg.S3Endpoint != "" {
		offload, err := packager.NewArchiveStore(ctx, packager.ObjectStoreConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Fatalf("Failed to connect to object store: %v", err)
		}
		pkgOpts.Offload = offload
	}

	pkg, err := packager.New(pkgOpts)
	if err != nil {
		log.Fatalf("Failed to create packager: %v", err)
	}
	go pkg.RunRetention(ctx, time.Hour)

	h := handlers.New(handlers.Deps{
		Store:    store,
		Catalog:  cat,
		Compiler: comp,
		Executor: exec,
		Packager: pkg,
		Logger:   slogger,
	})

	srv := controller.New(h, controller.Options{
		Addr:      fmt.Sprintf(":%d", cfg.HTTPPort),
		Keyring:   auth.NewKeyring(cfg.APIKeys, cfg.AdminKey),
		RateLimit: cfg.RateLimitRPS,
		RateBurst: cfg.RateLimitBurst,
	})

	log.Printf("Imageforge controller starting on :%d", cfg.HTTPPort)
	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Server stopped: %v", err)
	}
	log.Println("Server exited properly")
}

func newCLIEngine(cfg *config.Config) (engine.Engine, error) {
	if cfg.Engine == "docker" {
		mounts := append([]string{}, cfg.AllowedRoots...)
		return engine.NewDockerEngine(cfg.DockerImage, cfg.MagickBin, mounts)
	}
	return engine.NewProcessEngine(), nil
}
