package packager

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveStore mirrors archives to an S3-compatible bucket so downloads
// survive controller restarts and local disk cleanup.
type ArchiveStore struct {
	client *minio.Client
	bucket string
}

// ObjectStoreConfig configures the optional archive offload target.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

func (c ObjectStoreConfig) validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("object store endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("object store credentials are required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("object store bucket is required")
	}
	return nil
}

// NewArchiveStore connects to the object store and ensures the bucket exists.
func NewArchiveStore(ctx context.Context, cfg ObjectStoreConfig) (*ArchiveStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket exists check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
	}

	return &ArchiveStore{client: client, bucket: cfg.Bucket}, nil
}

// Upload mirrors a local archive file into the bucket under the job ID.
func (s *ArchiveStore) Upload(ctx context.Context, jobID, path string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, objectKey(jobID), path, minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	return err
}

// PresignGet returns a time-limited download URL for an offloaded archive.
func (s *ArchiveStore) PresignGet(ctx context.Context, jobID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey(jobID), ttl, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Remove deletes an offloaded archive.
func (s *ArchiveStore) Remove(ctx context.Context, jobID string) error {
	return s.client.RemoveObject(ctx, s.bucket, objectKey(jobID), minio.RemoveObjectOptions{})
}

func objectKey(jobID string) string {
	return "archives/" + jobID + ".zip"
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
