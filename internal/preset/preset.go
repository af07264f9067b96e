// Package preset holds the named effect-chain parameter bundles. The catalog
// is read-only after init and shared by all jobs without locking.
package preset

// Config is an immutable bundle of effect-chain parameters. Lookup returns
// the struct by value so callers can never mutate the catalog.
type Config struct {
	// Tempo and pitch ratios relative to the source (1.0 = unchanged).
	Tempo float64
	Pitch float64

	// Filter cutoffs in Hz.
	Lowpass  int
	Highpass int

	// Shelving EQ.
	BassGain   float64
	BassFreq   int
	TrebleGain float64
	TrebleFreq int

	// Dynamics. Threshold is linear amplitude (0.125 ~ -18dB).
	CompressThreshold float64
	CompressRatio     float64

	// Echo-based reverb.
	ReverbMix   float64
	ReverbDelay int

	// Post-chain makeup gain (linear).
	OutputGain float64

	// Mix level for ambient texture layers.
	TextureLevel float64
}

var catalog = map[string]Config{
	"default": {
		Tempo:             0.92,
		Pitch:             0.97,
		Lowpass:           9000,
		Highpass:          60,
		BassGain:          3,
		BassFreq:          100,
		TrebleGain:        -2,
		TrebleFreq:        5000,
		CompressThreshold: 0.125,
		CompressRatio:     3,
		ReverbMix:         0.8,
		ReverbDelay:       60,
		OutputGain:        2.0,
		TextureLevel:      0.8,
	},
	"tape90s": {
		Tempo:             0.91,
		Pitch:             0.97,
		Lowpass:           10000,
		Highpass:          40,
		BassGain:          4,
		BassFreq:          250,
		TrebleGain:        -3,
		TrebleFreq:        4500,
		CompressThreshold: 0.125,
		CompressRatio:     3,
		ReverbMix:         0.6,
		ReverbDelay:       30,
		OutputGain:        2.2,
		TextureLevel:      0.9,
	},
	"sleep": {
		Tempo:             0.88,
		Pitch:             0.95,
		Lowpass:           9000,
		Highpass:          20,
		BassGain:          2,
		BassFreq:          150,
		TrebleGain:        -4,
		TrebleFreq:        4000,
		CompressThreshold: 0.125,
		CompressRatio:     3,
		ReverbMix:         1.2,
		ReverbDelay:       60,
		OutputGain:        1.8,
		TextureLevel:      0.6,
	},
}

// DefaultID is the preset used when a submission omits one.
const DefaultID = "default"

// Lookup returns the config for id and whether it exists.
func Lookup(id string) (Config, bool) {
	cfg, ok := catalog[id]
	return cfg, ok
}

// Valid reports whether id names a known preset.
func Valid(id string) bool {
	_, ok := catalog[id]
	return ok
}

// IDs lists the known preset names.
func IDs() []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	return ids
}
