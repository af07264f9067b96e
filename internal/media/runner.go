// Package media drives the external signal-processing tool (ffmpeg). The
// pipeline treats it as a black-box stage executor behind the Runner
// interface; tests substitute a fake.
package media

import (
	"context"

	"github.com/lofitape/api/internal/preset"
)

// Texture is one ambient layer mixed under the primary signal.
type Texture struct {
	Path string
	Gain float64
}

// Runner executes individual transform stages. Every call blocks until the
// tool exits or ctx fires; on ctx expiry the subprocess is killed.
type Runner interface {
	// Transform applies the preset's effect chain to input, writing a
	// 44.1kHz stereo PCM WAV to output.
	Transform(ctx context.Context, input, output string, p preset.Config) error

	// MeasureMeanVolume returns the mean loudness of path in dB.
	MeasureMeanVolume(ctx context.Context, path string) (float64, error)

	// Boost rewrites input to output with a flat gain (linear multiplier).
	Boost(ctx context.Context, input, output string, gain float64) error

	// MixTextures layers looped textures under input with per-texture gain
	// and a final loudness normalization pass, writing a PCM WAV to output.
	MixTextures(ctx context.Context, input string, textures []Texture, mainGain float64, output string) error

	// EncodeMP3 encodes input to a constant-bitrate MP3 at output.
	EncodeMP3(ctx context.Context, input, output string) error
}
