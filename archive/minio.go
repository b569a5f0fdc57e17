package archive

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type MinIO struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

// NewMinIO connects to the endpoint and makes sure the bucket exists.
// An unreachable endpoint at startup is logged; the bucket is retried on
// the first Put.
func NewMinIO(ctx context.Context, cfg MinIOConfig, log zerolog.Logger) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	a := &MinIO{client: client, bucket: cfg.Bucket, logger: log}

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.ensureBucket(startCtx); err != nil {
		log.Warn().Err(err).Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).
			Msg("MinIO not ready during startup; will retry on first archive")
	} else {
		log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).Bool("ssl", cfg.UseSSL).
			Msg("Connected to MinIO")
	}
	return a, nil
}

func (a *MinIO) ensureBucket(ctx context.Context) error {
	a.ensureMu.Lock()
	defer a.ensureMu.Unlock()
	if a.bucketEnsured {
		return nil
	}

	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		a.logger.Info().Str("bucket", a.bucket).Msg("Created new bucket")
	}
	a.bucketEnsured = true
	return nil
}

func (a *MinIO) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}
	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload statement: %w", err)
	}

	a.logger.Debug().
		Str("bucket", a.bucket).
		Str("key", key).
		Str("etag", info.ETag).
		Int("size", len(body)).
		Msg("Statement archived")
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}
