// Package config handles environment variable loading for ports, database strings, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// Directories the guard accepts input paths from
	AllowedRoots []string

	// Output, scratch and archive directories
	ProcessedDir string
	TempDir      string
	ArchiveDir   string

	// Engine selection: "exec" runs the binary directly, "docker" runs it
	// in a container
	Engine      string
	MagickBin   string
	DockerImage string

	// Base URL of the inference sidecar; empty disables inference operations
	InferenceURL string

	// Authentication
	APIKeys  []string
	AdminKey string

	// Per-owner rate limiting; RPS 0 disables
	RateLimitRPS   float64
	RateLimitBurst int

	// How long packaged archives stay downloadable
	ArchiveRetention time.Duration

	// Per-item execution ceilings
	MaxDuration    time.Duration
	MaxMemoryBytes int64
	MaxDiskBytes   int64

	// Worker-specific configuration
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	PerJobLimit        int

	// OTLP endpoint for traces; empty disables the exporter
	OTLPEndpoint string

	// Prometheus metrics listen address (e.g. ":9090"); empty disables
	MetricsAddr string

	// Optional S3-compatible archive offload
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ProcessedDir: envStr("PROCESSED_DIR", "/var/lib/imageforge/processed"),
		TempDir:      envStr("TEMP_DIR", "/var/lib/imageforge/tmp"),
		ArchiveDir:   envStr("ARCHIVE_DIR", "/var/lib/imageforge/archives"),
		Engine:       envStr("ENGINE", "exec"),
		MagickBin:    envStr("MAGICK_BIN", "magick"),
		DockerImage:  envStr("DOCKER_IMAGE", "dpokidov/imagemagick:latest"),
		InferenceURL: os.Getenv("INFERENCE_URL"),
		AdminKey:     os.Getenv("ADMIN_KEY"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		MetricsAddr:  os.Getenv("METRICS_ADDR"),
		S3Endpoint:   os.Getenv("S3_ENDPOINT"),
		S3AccessKey:  os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:  os.Getenv("S3_SECRET_KEY"),
		S3Bucket:     envStr("S3_BUCKET", "imageforge-archives"),
		S3Region:     envStr("S3_REGION", "us-east-1"),
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	roots := os.Getenv("ALLOWED_ROOTS")
	if roots == "" {
		return nil, fmt.Errorf("ALLOWED_ROOTS is required")
	}
	for _, root := range strings.Split(roots, ":") {
		if root = strings.TrimSpace(root); root != "" {
			cfg.AllowedRoots = append(cfg.AllowedRoots, root)
		}
	}

	if keys := os.Getenv("API_KEYS"); keys != "" {
		for _, key := range strings.Split(keys, ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.APIKeys = append(cfg.APIKeys, key)
			}
		}
	}

	if cfg.Engine != "exec" && cfg.Engine != "docker" {
		return nil, fmt.Errorf("invalid ENGINE %q: must be exec or docker", cfg.Engine)
	}

	var err error
	if cfg.HTTPPort, err = envInt("PORT", 6161); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = envFloat("RATE_LIMIT_RPS", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = envInt("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.ArchiveRetention, err = envDuration("ARCHIVE_RETENTION", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MaxDuration, err = envDuration("LIMIT_MAX_DURATION", time.Minute); err != nil {
		return nil, err
	}

	memMB, err := envInt("LIMIT_MAX_MEMORY_MB", 512)
	if err != nil {
		return nil, err
	}
	cfg.MaxMemoryBytes = int64(memMB) << 20

	diskMB, err := envInt("LIMIT_MAX_DISK_MB", 1024)
	if err != nil {
		return nil, err
	}
	cfg.MaxDiskBytes = int64(diskMB) << 20

	if cfg.WorkerConcurrency, err = envInt("WORKER_CONCURRENCY", 1); err != nil {
		return nil, err
	}
	if cfg.WorkerPollInterval, err = envDuration("WORKER_POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.PerJobLimit, err = envInt("PER_JOB_LIMIT", 4); err != nil {
		return nil, err
	}

	cfg.S3UseSSL = os.Getenv("S3_USE_SSL") == "true"

	return cfg, nil
}

func envStr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func envFloat(name string, fallback float64) (float64, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return f, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}
