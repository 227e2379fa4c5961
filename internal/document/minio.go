package document

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinIOConfig holds the object storage connection settings.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore persists uploads in an object storage bucket. It satisfies the
// same atomicity guarantee as LocalStore: PutObject either commits the whole
// object or nothing.
type MinIOStore struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

var _ StorageWriter = (*MinIOStore)(nil)

func NewMinIOStore(ctx context.Context, cfg MinIOConfig, logger zerolog.Logger) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create minio client: %v", ErrStorageFailure, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: check bucket: %v", ErrStorageFailure, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%w: create bucket: %v", ErrStorageFailure, err)
		}
	}

	logger.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).Msg("object storage ready")
	return &MinIOStore{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (s *MinIOStore) Store(ctx context.Context, filename string, content []byte) (string, error) {
	objectName := UniqueName(filename)

	_, err := s.client.PutObject(ctx, s.bucket, objectName,
		bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", fmt.Errorf("%w: put object %s: %v", ErrStorageFailure, objectName, err)
	}

	s.logger.Debug().Str("object", objectName).Int("bytes", len(content)).Msg("upload stored")
	return fmt.Sprintf("%s/%s", s.bucket, objectName), nil
}
