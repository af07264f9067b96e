// Package source resolves a job's input into a local audio file: staged
// uploads are copied into the attempt's working directory, remote URLs are
// fetched with retry, backoff and a fallback extractor.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/lofitape/api/internal/config"
	"github.com/lofitape/api/internal/model"
)

// Acquirer resolves sources. Failures are terminal for the attempt; the
// queue-level retry is what re-invokes acquisition from scratch.
type Acquirer struct {
	cfg      config.SourceConfig
	primary  Fetcher
	fallback Fetcher
}

// New creates an Acquirer with yt-dlp style fetchers from config.
func New(cfg config.SourceConfig) *Acquirer {
	a := &Acquirer{
		cfg:     cfg,
		primary: NewYtdlpFetcher(cfg.Downloader),
	}
	if cfg.Fallback != "" && cfg.Fallback != cfg.Downloader {
		a.fallback = NewYtdlpFetcher(cfg.Fallback)
	}
	return a
}

// NewWithFetchers wires explicit fetchers; used by tests.
func NewWithFetchers(cfg config.SourceConfig, primary, fallback Fetcher) *Acquirer {
	return &Acquirer{cfg: cfg, primary: primary, fallback: fallback}
}

// Acquire resolves the job's source into a file under workDir.
func (a *Acquirer) Acquire(ctx context.Context, kind model.SourceKind, ref, workDir string) (string, error) {
	switch kind {
	case model.SourceUpload:
		return a.copyStaged(ref, workDir)
	case model.SourceYouTube:
		return a.fetchRemote(ctx, ref, workDir)
	default:
		return "", model.NewFailure(model.FailInvalidArgument, fmt.Errorf("unknown source kind %q", kind))
	}
}

func (a *Acquirer) copyStaged(ref, workDir string) (string, error) {
	src, err := os.Open(ref)
	if err != nil {
		return "", model.NewFailure(model.FailSourceUnavailable, fmt.Errorf("open staged upload: %w", err))
	}
	defer src.Close()

	dest := filepath.Join(workDir, "source"+filepath.Ext(ref))
	dst, err := os.Create(dest)
	if err != nil {
		return "", model.NewFailure(model.FailSourceUnavailable, fmt.Errorf("create working copy: %w", err))
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", model.NewFailure(model.FailSourceUnavailable, fmt.Errorf("copy staged upload: %w", err))
	}
	return dest, nil
}

func (a *Acquirer) fetchRemote(ctx context.Context, ref, workDir string) (string, error) {
	videoID, ok := ExtractVideoID(ref)
	if !ok {
		return "", model.NewFailure(model.FailInvalidArgument, fmt.Errorf("no canonical video id in %q", ref))
	}
	cleanURL := CanonicalURL(videoID)

	// Duration gate before any full download.
	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.DownloadTimeout)
	duration, err := a.primary.ProbeDuration(probeCtx, cleanURL)
	cancel()
	switch {
	case err == nil && duration > a.cfg.MaxDuration:
		return "", model.NewFailure(model.FailSourceTooLong,
			fmt.Errorf("duration %s exceeds ceiling %s", duration, a.cfg.MaxDuration))
	case err != nil:
		// Metadata not cheaply obtainable; the download itself still runs
		// under its own timeout.
		log.Printf("source: duration probe failed for %s: %v", videoID, err)
	}

	outPath := filepath.Join(workDir, "source.mp3")

	primaryErr := a.downloadWithRetry(ctx, a.primary, cleanURL, outPath)
	if primaryErr == nil {
		return outPath, nil
	}

	if a.fallback != nil && retryable(primaryErr) {
		log.Printf("source: primary extractor failed for %s, trying fallback: %v", videoID, primaryErr)
		if err := a.downloadWithRetry(ctx, a.fallback, cleanURL, outPath); err == nil {
			return outPath, nil
		}
	}

	// Both strategies failed: surface the primary error.
	return "", primaryErr
}

// downloadWithRetry runs bounded retries with exponential backoff against
// transient errors. Deterministic refusals (private, restricted) are
// returned immediately.
func (a *Acquirer) downloadWithRetry(ctx context.Context, f Fetcher, url, outPath string) error {
	var lastErr error
	for attempt := 0; attempt < a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := a.cfg.RetryBase << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return model.NewFailure(model.FailSourceTimeout, ctx.Err())
			}
		}

		dlCtx, cancel := context.WithTimeout(ctx, a.cfg.DownloadTimeout)
		err := f.Download(dlCtx, url, outPath)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
	}
	return lastErr
}

// retryable reports whether another attempt could help. Private, restricted
// and too-long sources fail identically every time.
func retryable(err error) bool {
	var f *model.Failure
	if !errors.As(err, &f) {
		return true
	}
	switch f.Code {
	case model.FailSourcePrivate, model.FailSourceRestricted, model.FailSourceTooLong, model.FailInvalidArgument:
		return false
	}
	return true
}
