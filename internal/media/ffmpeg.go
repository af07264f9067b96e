package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/lofitape/api/internal/preset"
)

// FFmpeg runs ffmpeg as a subprocess. exec.CommandContext kills the process
// when the stage context expires, so a timed-out stage never leaves an
// orphan behind.
type FFmpeg struct {
	bin        string
	sampleRate int
	channels   int
	bitrate    string
}

// NewFFmpeg creates a runner invoking bin with the given output format.
func NewFFmpeg(bin string, sampleRate, channels int, bitrate string) *FFmpeg {
	return &FFmpeg{
		bin:        bin,
		sampleRate: sampleRate,
		channels:   channels,
		bitrate:    bitrate,
	}
}

func (f *FFmpeg) Transform(ctx context.Context, input, output string, p preset.Config) error {
	args := []string{
		"-y", "-i", input,
		"-af", buildFilterChain(p, f.sampleRate),
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(f.sampleRate),
		"-ac", strconv.Itoa(f.channels),
		output,
	}
	return f.run(ctx, args)
}

var meanVolumeRe = regexp.MustCompile(`mean_volume: ([-\d.]+) dB`)

func (f *FFmpeg) MeasureMeanVolume(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.bin, "-i", path, "-af", "volumedetect", "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// volumedetect reports on stderr; the command itself succeeding is not
	// enough, the line must be present.
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("volumedetect: %w: %s", err, tail(stderr.Bytes()))
	}
	m := meanVolumeRe.FindSubmatch(stderr.Bytes())
	if m == nil {
		return 0, fmt.Errorf("volumedetect: no mean_volume in output")
	}
	db, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("volumedetect: parse %q: %w", m[1], err)
	}
	return db, nil
}

func (f *FFmpeg) Boost(ctx context.Context, input, output string, gain float64) error {
	args := []string{
		"-y", "-i", input,
		"-af", fmt.Sprintf("volume=%g", gain),
		output,
	}
	return f.run(ctx, args)
}

func (f *FFmpeg) MixTextures(ctx context.Context, input string, textures []Texture, mainGain float64, output string) error {
	args := []string{"-y", "-i", input}
	for _, tex := range textures {
		args = append(args, "-stream_loop", "-1", "-i", tex.Path)
	}
	args = append(args,
		"-filter_complex", buildMixFilter(textures, mainGain),
		"-map", "[out]",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(f.sampleRate),
		output,
	)
	return f.run(ctx, args)
}

func (f *FFmpeg) EncodeMP3(ctx context.Context, input, output string) error {
	args := []string{
		"-y", "-i", input,
		"-acodec", "libmp3lame",
		"-b:a", f.bitrate,
		output,
	}
	return f.run(ctx, args)
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", f.bin, err, tail(stderr.Bytes()))
	}
	return nil
}

// tail keeps the last part of ffmpeg's stderr for logs; the full banner is
// noise.
func tail(b []byte) string {
	const n = 400
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
