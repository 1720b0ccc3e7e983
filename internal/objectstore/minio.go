package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioGateway implements Gateway against any S3-compatible endpoint
// (MinIO, Cloudflare R2, AWS S3).
type MinioGateway struct {
	client *minio.Client
	bucket string
}

// NewMinioGateway creates a gateway bound to a single bucket
func NewMinioGateway(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioGateway, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &MinioGateway{client: client, bucket: bucket}, nil
}

// PresignedDownloadURL mints a time-limited GET URL for one object
func (g *MinioGateway) PresignedDownloadURL(ctx context.Context, storageKey string, expiry time.Duration) (string, error) {
	u, err := g.client.PresignedGetObject(ctx, g.bucket, storageKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", storageKey, err)
	}
	return u.String(), nil
}

// PresignedUploadURL mints a time-limited PUT URL for one object
func (g *MinioGateway) PresignedUploadURL(ctx context.Context, storageKey string, expiry time.Duration) (string, error) {
	u, err := g.client.PresignedPutObject(ctx, g.bucket, storageKey, expiry)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", storageKey, err)
	}
	return u.String(), nil
}

// Exists reports whether the object is present in the bucket
func (g *MinioGateway) Exists(ctx context.Context, storageKey string) (bool, error) {
	_, err := g.client.StatObject(ctx, g.bucket, storageKey, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", storageKey, err)
	}
	return true, nil
}

// Remove deletes the object from the bucket
func (g *MinioGateway) Remove(ctx context.Context, storageKey string) error {
	if err := g.client.RemoveObject(ctx, g.bucket, storageKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", storageKey, err)
	}
	return nil
}
