// Package objectstore wraps the S3-compatible bucket holding product
// files. The concrete backend is chosen once at startup and injected as
// the Gateway interface everywhere else.
package objectstore

import (
	"context"
	"time"
)

// Gateway is the object storage surface the delivery flow needs. URLs
// returned by the presign methods are capability-bearing and expire on
// their own; minting them is stateless and side-effect free.
type Gateway interface {
	PresignedDownloadURL(ctx context.Context, storageKey string, expiry time.Duration) (string, error)
	PresignedUploadURL(ctx context.Context, storageKey string, expiry time.Duration) (string, error)
	Exists(ctx context.Context, storageKey string) (bool, error)
	Remove(ctx context.Context, storageKey string) error
}
