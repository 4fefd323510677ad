package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/platform/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore implements DocumentStore against a single LOI bucket.
type MinIOStore struct {
	client      *minio.Client
	bucket      string
	maxFileSize int64
}

// NewMinIOStore creates the store from the MinIO section of the config.
func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("minio is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client:      client,
		bucket:      cfg.GetMinioBucketLOIDocuments(),
		maxFileSize: cfg.GetMinIOMaxFileSize(),
	}, nil
}

// EnsureBucket creates the LOI bucket if it does not exist yet.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// PresignUpload issues a PUT URL for a new letter of intention.
// The file key is suffixed with a UUID fragment so repeat uploads of the
// same file name never overwrite each other.
func (s *MinIOStore) PresignUpload(ctx context.Context, fileName, contentType string, sizeBytes int64) (*PresignedURL, error) {
	if err := validateContentType(contentType); err != nil {
		return nil, err
	}
	if err := validateFileSize(sizeBytes, s.maxFileSize); err != nil {
		return nil, err
	}

	ext := path.Ext(fileName)
	baseName := strings.TrimSuffix(path.Base(fileName), ext)
	fileKey := fmt.Sprintf("loi/%s_%s%s", baseName, uuid.New().String()[:8], ext)

	expiresAt := time.Now().Add(presignTTL)
	presigned, err := s.client.PresignedPutObject(ctx, s.bucket, fileKey, presignTTL)
	if err != nil {
		return nil, fmt.Errorf("presign upload for %s: %w", fileKey, err)
	}

	return &PresignedURL{
		URL:       presigned.String(),
		FileKey:   fileKey,
		ExpiresAt: expiresAt,
	}, nil
}

// PresignDownload issues a GET URL for an existing letter of intention.
func (s *MinIOStore) PresignDownload(ctx context.Context, fileKey string) (*PresignedURL, error) {
	expiresAt := time.Now().Add(presignTTL)
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, fileKey, presignTTL, make(url.Values))
	if err != nil {
		return nil, fmt.Errorf("presign download for %s: %w", fileKey, err)
	}

	return &PresignedURL{
		URL:       presigned.String(),
		FileKey:   fileKey,
		ExpiresAt: expiresAt,
	}, nil
}

var _ DocumentStore = (*MinIOStore)(nil)
