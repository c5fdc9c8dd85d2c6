package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"docuflex/internal/logging"
	"docuflex/internal/metrics"
)

const refScheme = "s3://"

// MinioConfig holds connection settings for an S3-compatible object store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

// Minio stores payloads as objects and serves them through presigned URLs.
type Minio struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	logger *zap.Logger
}

// NewMinio connects to the object store and creates the bucket if needed.
func NewMinio(ctx context.Context, cfg MinioConfig, logger *zap.Logger) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	m := &Minio{client: client, bucket: cfg.Bucket, expiry: expiry, logger: logging.OrNop(logger).Named("blob")}
	m.logger.Info("object store ready", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", cfg.Bucket))
	return m, nil
}

func (m *Minio) Type() string { return "minio" }

func (m *Minio) Put(ctx context.Context, key, mimeType string, data []byte) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	metrics.RecordBlobOperation(m.Type(), "put", err == nil)
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return Ref(m.bucket, key), nil
}

func (m *Minio) URL(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "data:") {
		return ref, nil
	}
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	u, err := m.client.PresignedGetObject(ctx, bucket, key, m.expiry, nil)
	metrics.RecordBlobOperation(m.Type(), "presign", err == nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (m *Minio) Delete(ctx context.Context, ref string) error {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return nil
	}
	err = m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	metrics.RecordBlobOperation(m.Type(), "delete", err == nil)
	if err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// Ref formats an object reference.
func Ref(bucket, key string) string {
	return refScheme + bucket + "/" + key
}

// ParseRef splits an object reference into bucket and key.
func ParseRef(ref string) (string, string, error) {
	rest, ok := strings.CutPrefix(ref, refScheme)
	if !ok {
		return "", "", ErrBadRef
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", ErrBadRef
	}
	return bucket, key, nil
}
