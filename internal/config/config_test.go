package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/imageforge")
	t.Setenv("ALLOWED_ROOTS", "/srv/uploads")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTPPort != 6161 {
		t.Errorf("got port %d", cfg.HTTPPort)
	}
	if cfg.Engine != "exec" || cfg.MagickBin != "magick" {
		t.Errorf("got engine %s/%s", cfg.Engine, cfg.MagickBin)
	}
	if cfg.ArchiveRetention != 24*time.Hour {
		t.Errorf("got retention %v", cfg.ArchiveRetention)
	}
	if cfg.MaxDuration != time.Minute {
		t.Errorf("got max duration %v", cfg.MaxDuration)
	}
	if cfg.MaxMemoryBytes != 512<<20 || cfg.MaxDiskBytes != 1024<<20 {
		t.Errorf("got limits %d/%d", cfg.MaxMemoryBytes, cfg.MaxDiskBytes)
	}
	if cfg.WorkerConcurrency != 1 || cfg.WorkerPollInterval != time.Second {
		t.Errorf("got worker config %d/%v", cfg.WorkerConcurrency, cfg.WorkerPollInterval)
	}
	if cfg.PerJobLimit != 4 {
		t.Errorf("got per-job limit %d", cfg.PerJobLimit)
	}
	if cfg.RateLimitRPS != 10 || cfg.RateLimitBurst != 20 {
		t.Errorf("got rate limit %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ALLOWED_ROOTS", "/srv/uploads")

	if _, err := Load(); err == nil {
		t.Error("expected error for missing DATABASE_URL")
	}
}

func TestLoad_MissingAllowedRoots(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/imageforge")
	t.Setenv("ALLOWED_ROOTS", "")

	if _, err := Load(); err == nil {
		t.Error("expected error for missing ALLOWED_ROOTS")
	}
}

func TestLoad_SplitsListValues(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOWED_ROOTS", "/srv/uploads:/mnt/ingest")
	t.Setenv("API_KEYS", "key-one, key-two,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.AllowedRoots) != 2 || cfg.AllowedRoots[1] != "/mnt/ingest" {
		t.Errorf("got roots %v", cfg.AllowedRoots)
	}
	if len(cfg.APIKeys) != 2 || cfg.APIKeys[1] != "key-two" {
		t.Errorf("got keys %v", cfg.APIKeys)
	}
}

func TestLoad_InvalidEngine(t *testing.T) {
	setRequired(t)
	t.Setenv("ENGINE", "podman")

	if _, err := Load(); err == nil {
		t.Error("expected error for unknown engine")
	}
}

func TestLoad_InvalidNumbers(t *testing.T) {
	setRequired(t)

	tests := []struct {
		name  string
		value string
	}{
		{"PORT", "not-a-port"},
		{"WORKER_CONCURRENCY", "many"},
		{"WORKER_POLL_INTERVAL", "soonish"},
		{"LIMIT_MAX_MEMORY_MB", "1GB"},
		{"RATE_LIMIT_RPS", "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.name, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.name, tt.value)
			}
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8080")
	t.Setenv("ENGINE", "docker")
	t.Setenv("ARCHIVE_RETENTION", "48h")
	t.Setenv("LIMIT_MAX_MEMORY_MB", "256")
	t.Setenv("PER_JOB_LIMIT", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPPort != 8080 || cfg.Engine != "docker" {
		t.Errorf("overrides not applied: %d/%s", cfg.HTTPPort, cfg.Engine)
	}
	if cfg.ArchiveRetention != 48*time.Hour {
		t.Errorf("got retention %v", cfg.ArchiveRetention)
	}
	if cfg.MaxMemoryBytes != 256<<20 {
		t.Errorf("got memory limit %d", cfg.MaxMemoryBytes)
	}
	if cfg.PerJobLimit != 2 {
		t.Errorf("got per-job limit %d", cfg.PerJobLimit)
	}
}
