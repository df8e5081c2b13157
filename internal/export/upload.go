package export

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"mathmine/internal/config"
)

// defaultRegion avoids a bucket-location lookup on every request.
const defaultRegion = "us-east-1"

// Uploader copies export files into a bucket.
type Uploader struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewUploader creates an uploader for an S3-compatible endpoint. The
// endpoint may be a bare host:port or a URL; an https URL turns on TLS.
func NewUploader(cfg config.S3Config, logger *zap.Logger) (*Uploader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("endpoint and bucket are required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("credentials are required")
	}

	endpoint, useSSL := cfg.Endpoint, cfg.UseSSL
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint URL: %w", err)
		}
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: defaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: defaultRegion}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.bucket, err)
	}
	u.logger.Info("bucket created", zap.String("bucket", u.bucket))
	return nil
}

// Key returns the object key a local file is uploaded to.
func (u *Uploader) Key(file string) string {
	return path.Join(u.prefix, filepath.Base(file))
}

// Upload copies files into the bucket. Every file is attempted; the
// failures are returned together.
func (u *Uploader) Upload(ctx context.Context, files ...string) ([]string, error) {
	if err := u.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	var (
		keys   []string
		result *multierror.Error
	)
	for _, file := range files {
		key := u.Key(file)
		info, err := u.client.FPutObject(ctx, u.bucket, key, file, minio.PutObjectOptions{
			ContentType: contentType(file),
		})
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("upload %s: %w", file, err))
			continue
		}
		u.logger.Info("uploaded",
			zap.String("bucket", u.bucket),
			zap.String("key", key),
			zap.Int64("bytes", info.Size))
		keys = append(keys, key)
	}
	return keys, result.ErrorOrNil()
}

func contentType(file string) string {
	switch {
	case strings.HasSuffix(file, ".parquet"):
		return "application/vnd.apache.parquet"
	case strings.HasSuffix(file, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(file, ".jsonl"):
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
