// Package packager bundles a finished job's outputs into a downloadable
// archive and enforces the retention window.
package packager

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"imageforge/internal/store"

	"github.com/google/uuid"
)

// DefaultRetention is how long a job's outputs stay downloadable after the
// job settles.
const DefaultRetention = 24 * time.Hour

// ExpiredError reports a download attempt past the retention window.
type ExpiredError struct {
	JobID     string
	ExpiredAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("archive for job %s expired at %s", e.JobID, e.ExpiredAt.Format(time.RFC3339))
}

// presignTTL is how long a presigned archive URL stays valid once handed
// to a client.
const presignTTL = 10 * time.Minute

// Offloader mirrors archives to durable storage. *ArchiveStore implements
// it against an S3-compatible bucket.
type Offloader interface {
	Upload(ctx context.Context, jobID, path string) error
	PresignGet(ctx context.Context, jobID string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, jobID string) error
}

// Packager builds zip archives lazily: nothing is written until the first
// download request for a completed job.
type Packager struct {
	jobs      store.JobStore
	dir       string
	retention time.Duration
	offload   Offloader // optional, nil means local disk only
	logger    *slog.Logger
}

type Options struct {
	Jobs      store.JobStore
	Dir       string
	Retention time.Duration
	Offload   Offloader
	Logger    *slog.Logger
}

func New(opts Options) (*Packager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Packager{
		jobs:      opts.Jobs,
		dir:       opts.Dir,
		retention: opts.Retention,
		offload:   opts.Offload,
		logger:    opts.Logger,
	}, nil
}

// Package returns the archive path for a job, building the zip on first
// call. The archive contains every item that produced an output; failed
// items are represented by a line in errors.txt so partial batches stay
// useful.
func (p *Packager) Package(ctx context.Context, job *store.Job, items []*store.JobItem) (string, error) {
	// The retention window is anchored to job completion, so expiry holds
	// even after a sweep has removed the archive and cleared its record.
	// A rebuild past the window would hand out the outputs forever.
	if exp, ok := p.expiry(job); ok && time.Now().After(exp) {
		return "", &ExpiredError{JobID: job.ID, ExpiredAt: exp}
	}

	if job.ArchivePath != nil {
		if _, err := os.Stat(*job.ArchivePath); err == nil {
			return *job.ArchivePath, nil
		}
		// Recorded but missing on disk. Rebuild below.
	}

	path := filepath.Join(p.dir, job.ID+".zip")
	if err := p.build(path, items); err != nil {
		os.Remove(path)
		return "", err
	}

	expiresAt := time.Now().Add(p.retention)
	if job.CompletedAt != nil {
		expiresAt = job.CompletedAt.Add(p.retention)
	}
	jobID, err := uuid.Parse(job.ID)
	if err != nil {
		return "", fmt.Errorf("invalid job id %q: %w", job.ID, err)
	}
	if err := p.jobs.SetArchive(ctx, jobID, path, expiresAt); err != nil {
		return "", fmt.Errorf("failed to record archive: %w", err)
	}

	if p.offload != nil {
		if err := p.offload.Upload(ctx, job.ID, path); err != nil {
			// Local copy still serves downloads; offload is best effort.
			p.logger.Warn("archive offload failed", "job_id", job.ID, "error", err)
		}
	}

	p.logger.Info("archive packaged", "job_id", job.ID, "path", path, "expires_at", expiresAt)
	return path, nil
}

// RedirectURL returns a presigned object store URL for a job whose archive
// was offloaded but is gone from local disk, typically after a controller
// restart or disk cleanup. ok is false when the archive can be served or
// rebuilt locally, when the job has expired, or when no offload target is
// configured.
func (p *Packager) RedirectURL(ctx context.Context, job *store.Job) (string, bool) {
	if p.offload == nil || job.ArchivePath == nil {
		return "", false
	}
	if exp, ok := p.expiry(job); ok && time.Now().After(exp) {
		return "", false
	}
	if _, err := os.Stat(*job.ArchivePath); err == nil {
		return "", false
	}
	url, err := p.offload.PresignGet(ctx, job.ID, presignTTL)
	if err != nil {
		// Fall through to a local rebuild.
		p.logger.Warn("archive presign failed", "job_id", job.ID, "error", err)
		return "", false
	}
	return url, true
}

// expiry reports when the job's outputs lapse. CompletedAt anchors the
// window; the recorded ExpiresAt covers rows that predate completion
// timestamps.
func (p *Packager) expiry(job *store.Job) (time.Time, bool) {
	if job.CompletedAt != nil {
		return job.CompletedAt.Add(p.retention), true
	}
	if job.ExpiresAt != nil {
		return *job.ExpiresAt, true
	}
	return time.Time{}, false
}

// build writes the zip. Entries are named by sequence plus the original
// basename so clients can correlate outputs with their inputs.
func (p *Packager) build(path string, items []*store.JobItem) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	var failures []string

	for _, item := range items {
		if item.Status != store.ItemStatusDone || item.OutputPath == nil {
			if item.Status == store.ItemStatusFailed {
				reason := "failed"
				if item.FailureReason != nil {
					reason = *item.FailureReason
				}
				failures = append(failures, fmt.Sprintf("%03d %s: %s", item.Seq, filepath.Base(item.InputPath), reason))
			}
			continue
		}
		if err := addFile(zw, item); err != nil {
			zw.Close()
			return err
		}
	}

	if len(failures) > 0 {
		w, err := zw.Create("errors.txt")
		if err != nil {
			zw.Close()
			return err
		}
		for _, line := range failures {
			fmt.Fprintln(w, line)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return f.Sync()
}

func addFile(zw *zip.Writer, item *store.JobItem) error {
	src, err := os.Open(*item.OutputPath)
	if err != nil {
		return fmt.Errorf("output for item %d missing: %w", item.Seq, err)
	}
	defer src.Close()

	// 003_photo.webp for the third input named photo.png converted to webp.
	name := fmt.Sprintf("%03d_%s%s",
		item.Seq,
		trimExt(filepath.Base(item.InputPath)),
		filepath.Ext(*item.OutputPath),
	)
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

// Sweep deletes archives past their retention window and clears their
// database references. It returns the number of archives removed.
func (p *Packager) Sweep(ctx context.Context) (int, error) {
	expired, err := p.jobs.ListExpired(ctx, time.Now(), 100)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, job := range expired {
		if job.ArchivePath != nil {
			if err := os.Remove(*job.ArchivePath); err != nil && !os.IsNotExist(err) {
				p.logger.Warn("failed to remove expired archive", "job_id", job.ID, "error", err)
				continue
			}
		}
		if p.offload != nil {
			if err := p.offload.Remove(ctx, job.ID); err != nil {
				p.logger.Warn("failed to remove offloaded archive", "job_id", job.ID, "error", err)
			}
		}
		jobID, err := uuid.Parse(job.ID)
		if err != nil {
			continue
		}
		if err := p.jobs.ClearArchive(ctx, jobID); err != nil {
			p.logger.Warn("failed to clear archive reference", "job_id", job.ID, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// RunRetention runs the sweep on an interval until the context is cancelled.
func (p *Packager) RunRetention(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Sweep(ctx)
			if err != nil {
				p.logger.Error("retention sweep failed", "error", err)
				continue
			}
			if n > 0 {
				p.logger.Info("retention sweep removed archives", "count", n)
			}
		}
	}
}
