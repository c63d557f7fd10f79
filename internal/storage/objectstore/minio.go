package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"signalhub/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIO stores photos in an S3 compatible bucket with a public-read policy.
type MinIO struct {
	client         *minio.Client
	bucket         string
	publicEndpoint string
	logger         *slog.Logger
}

func NewMinIO(ctx context.Context, cfg config.PhotoConfig, logger *slog.Logger) (*MinIO, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	s := &MinIO{
		client:         client,
		bucket:         cfg.MinioBucket,
		publicEndpoint: publicEndpoint(cfg),
		logger:         logger,
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, s.bucket)
	if err != nil {
		logger.Warn("failed to check bucket existence, continuing", slog.String("bucket", s.bucket), slog.Any("error", err))
	} else if !exists {
		if err := client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			logger.Error("failed to create bucket", slog.String("bucket", s.bucket), slog.Any("error", err))
		} else {
			policy := fmt.Sprintf(`{"Version": "2012-10-17","Statement": [{"Action": ["s3:GetObject"],"Effect": "Allow","Principal": {"AWS": ["*"]},"Resource": ["arn:aws:s3:::%s/*"],"Sid": ""}]}`, s.bucket)
			if err := client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
				logger.Error("failed to set bucket policy", slog.Any("error", err))
			}
			logger.Info("bucket created", slog.String("bucket", s.bucket))
		}
	}

	logger.Info("MinIO storage initialized",
		slog.String("endpoint", cfg.MinioEndpoint),
		slog.String("public_endpoint", s.publicEndpoint),
		slog.String("bucket", s.bucket),
	)
	return s, nil
}

func (s *MinIO) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", classify(err, minioStatus(err))
	}

	url := s.URL(key)
	s.logger.Info("photo stored", slog.String("key", key), slog.String("url", url))
	return url, nil
}

// URL is the public address of key. Schemeless endpoints get https.
func (s *MinIO) URL(key string) string {
	if strings.Contains(s.publicEndpoint, "://") {
		return fmt.Sprintf("%s/%s/%s", s.publicEndpoint, s.bucket, key)
	}
	return fmt.Sprintf("https://%s/%s/%s", s.publicEndpoint, s.bucket, key)
}

func (s *MinIO) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("MinIO health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func publicEndpoint(cfg config.PhotoConfig) string {
	ep := cfg.MinioPublicEndpoint
	if ep == "" {
		ep = cfg.MinioEndpoint
	}
	ep = strings.TrimSpace(ep)
	ep = strings.Trim(ep, `"'=`)
	return strings.TrimSuffix(ep, "/")
}

func minioStatus(err error) int {
	return minio.ToErrorResponse(err).StatusCode
}
