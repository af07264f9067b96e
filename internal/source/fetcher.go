package source

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/lofitape/api/internal/model"
)

// Fetcher obtains remote audio through an external extraction tool.
type Fetcher interface {
	// ProbeDuration cheaply reads the source duration without downloading
	// the full asset.
	ProbeDuration(ctx context.Context, url string) (time.Duration, error)

	// Download fetches the source's audio track into outPath.
	Download(ctx context.Context, url, outPath string) error
}

// ytdlpFetcher drives a yt-dlp compatible binary. Error classification
// happens here, at the point of failure: the tool's stderr is inspected once
// and mapped to the closed failure taxonomy, never re-parsed downstream.
type ytdlpFetcher struct {
	bin string
}

// NewYtdlpFetcher creates a fetcher for the given binary name.
func NewYtdlpFetcher(bin string) Fetcher {
	return &ytdlpFetcher{bin: bin}
}

func (f *ytdlpFetcher) ProbeDuration(ctx context.Context, url string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, f.bin, "--no-download", "--print", "duration", url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, f.classify(ctx, err, stderr.String())
	}
	out := strings.TrimSpace(stdout.String())
	secs, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, model.NewFailure(model.FailSourceUnavailable,
			fmt.Errorf("%s: unparseable duration %q", f.bin, out))
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (f *ytdlpFetcher) Download(ctx context.Context, url, outPath string) error {
	cmd := exec.CommandContext(ctx, f.bin,
		"-x", "--audio-format", "mp3", "--audio-quality", "0",
		"--no-playlist",
		"-o", outPath, url,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return f.classify(ctx, err, stderr.String())
	}
	return nil
}

// classify maps one tool invocation's outcome to the failure taxonomy.
func (f *ytdlpFetcher) classify(ctx context.Context, err error, stderr string) *model.Failure {
	cause := fmt.Errorf("%s: %w: %s", f.bin, err, strings.TrimSpace(stderr))
	if ctx.Err() == context.DeadlineExceeded {
		return model.NewFailure(model.FailSourceTimeout, cause)
	}

	low := strings.ToLower(stderr)
	switch {
	case strings.Contains(low, "private video"):
		return model.NewFailure(model.FailSourcePrivate, cause)
	case strings.Contains(low, "sign in to confirm your age"),
		strings.Contains(low, "age-restricted"),
		strings.Contains(low, "not available in your country"),
		strings.Contains(low, "blocked"):
		return model.NewFailure(model.FailSourceRestricted, cause)
	default:
		return model.NewFailure(model.FailSourceUnavailable, cause)
	}
}
