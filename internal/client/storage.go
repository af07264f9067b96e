package client

import (
	"context"
	"io"
	"time"
)

// StorageClient defines the interface for the artifact store. Upload must
// not return until the object is durably retrievable.
type StorageClient interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	GetPublicURL(key string) string
}

// ArtifactKey is the deterministic object key for a job's deliverable.
func ArtifactKey(jobID, format string) string {
	return "lofi/" + jobID + "." + format
}
