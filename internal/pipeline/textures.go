package pipeline

import (
	"os"
	"path/filepath"

	"github.com/lofitape/api/internal/media"
)

// Texture assets looked up in the texture directory, in mix order.
var textureFiles = []string{"vinyl_crackle.wav", "tape_hiss.wav", "rain_ambient.wav"}

// Per-texture mix weights relative to the preset's texture level. Tape hiss
// sits well below the others or it dominates the noise floor.
var textureWeights = map[string]float64{
	"vinyl_crackle.wav": 1.0,
	"tape_hiss.wav":     0.3,
	"rain_ambient.wav":  1.5,
}

// loadTextures returns the available texture layers scaled by level.
// Missing files are skipped; an empty result skips the layering stage.
func loadTextures(dir string, level float64) []media.Texture {
	var textures []media.Texture
	for _, name := range textureFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		textures = append(textures, media.Texture{
			Path: path,
			Gain: level * textureWeights[name],
		})
	}
	return textures
}

// mainGainFor keeps the primary signal audible as more layers pile on.
func mainGainFor(textureCount int) float64 {
	switch textureCount {
	case 1:
		return 0.6
	case 2:
		return 0.5
	default:
		return 0.85
	}
}
