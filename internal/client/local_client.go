package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalClient implements StorageClient on the local filesystem. It is the
// fallback when R2 is not configured; the download handler streams objects
// through the API, so filesystem paths never leave the process.
type LocalClient struct {
	baseDir string
}

// NewLocalClient creates a client rooted at baseDir.
func NewLocalClient(baseDir string) (*LocalClient, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LocalClient{baseDir: baseDir}, nil
}

// keyPath maps an object key to a path under baseDir, rejecting traversal.
func (c *LocalClient) keyPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(c.baseDir, clean), nil
}

// Upload writes the object and syncs it to disk before returning, so the
// artifact is durably retrievable once the job completes.
func (c *LocalClient) Upload(ctx context.Context, key string, body io.Reader, _ string) (string, error) {
	path, err := c.keyPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		os.Remove(path)
		return "", err
	}
	if err := f.Sync(); err != nil {
		os.Remove(path)
		return "", err
	}
	return c.GetPublicURL(key), nil
}

func (c *LocalClient) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := c.keyPath(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (c *LocalClient) Delete(_ context.Context, key string) error {
	path, err := c.keyPath(key)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

func (c *LocalClient) GetSignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return c.GetPublicURL(key), nil
}

// GetPublicURL returns the download route for a key. Keys follow the
// ArtifactKey layout "lofi/<jobID>.<format>".
func (c *LocalClient) GetPublicURL(key string) string {
	base := strings.TrimPrefix(key, "lofi/")
	if dot := strings.LastIndexByte(base, '.'); dot > 0 {
		return fmt.Sprintf("/api/download/%s/%s", base[:dot], base[dot+1:])
	}
	return "/api/download/" + base
}

// Purge removes artifacts older than the retention window.
func (c *LocalClient) Purge(cutoff time.Time) {
	_ = filepath.Walk(c.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
		return nil
	})
}
