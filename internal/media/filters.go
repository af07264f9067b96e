package media

import (
	"fmt"
	"strings"

	"github.com/lofitape/api/internal/preset"
)

// buildFilterChain renders the preset into ffmpeg's -af syntax. The chain
// order matters: time/pitch first, then filtering and EQ, then the tape
// character stages, compression last before makeup gain.
func buildFilterChain(p preset.Config, sampleRate int) string {
	filters := []string{
		fmt.Sprintf("atempo=%g", p.Tempo),
		fmt.Sprintf("asetrate=%d*%g,aresample=%d", sampleRate, p.Pitch, sampleRate),
		fmt.Sprintf("highpass=f=%d", p.Highpass),
		fmt.Sprintf("lowpass=f=%d", p.Lowpass),
		fmt.Sprintf("bass=g=%g:f=%d", p.BassGain, p.BassFreq),
		fmt.Sprintf("treble=g=%g:f=%d", p.TrebleGain, p.TrebleFreq),
		// Subtle phasing for tape warmth.
		"aphaser=speed=0.5:decay=0.4",
		// Wow/flutter - tape speed variations.
		"vibrato=f=0.5:d=0.02",
		fmt.Sprintf("aecho=%g:0.88:%d:0.4", p.ReverbMix, p.ReverbDelay),
		// Narrow stereo field.
		"stereotools=level_in=1:level_out=1:slev=0.7",
		fmt.Sprintf("acompressor=threshold=%g:ratio=%g:attack=5:release=100", p.CompressThreshold, p.CompressRatio),
		fmt.Sprintf("volume=%g", p.OutputGain),
	}
	return strings.Join(filters, ",")
}

// buildMixFilter renders the amix graph for one main input at index 0 and
// len(textures) looped texture inputs following it, ending with a loudness
// normalization pass.
func buildMixFilter(textures []Texture, mainGain float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[0:a]volume=%g[main]", mainGain)

	labels := []string{"[main]"}
	for i, tex := range textures {
		label := fmt.Sprintf("[tex%d]", i)
		fmt.Fprintf(&b, ";[%d:a]volume=%g%s", i+1, tex.Gain, label)
		labels = append(labels, label)
	}

	fmt.Fprintf(&b, ";%samix=inputs=%d:duration=first:normalize=0[mixed]", strings.Join(labels, ""), len(labels))
	b.WriteString(";[mixed]loudnorm=I=-16:TP=-1.5:LRA=11[out]")
	return b.String()
}
