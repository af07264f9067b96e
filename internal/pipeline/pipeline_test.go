package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofitape/api/internal/client"
	"github.com/lofitape/api/internal/config"
	"github.com/lofitape/api/internal/media"
	"github.com/lofitape/api/internal/model"
	"github.com/lofitape/api/internal/preset"
)

// fakeRunner simulates the external tool: it writes output files so the
// pipeline's renames and uploads work, and reports configurable loudness.
type fakeRunner struct {
	transformErr error
	transformDb  float64 // loudness of the transform output
	mixErr       error
	mixDb        float64
	mp3Db        float64

	transformCalls int
	boostCalls     int
	boostGains     []float64
	mixCalls       int
	encodeCalls    int

	measured []string
}

func (r *fakeRunner) Transform(ctx context.Context, _, output string, _ preset.Config) error {
	r.transformCalls++
	if r.transformErr != nil {
		return r.transformErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.WriteFile(output, []byte("wav"), 0o644)
}

func (r *fakeRunner) MeasureMeanVolume(_ context.Context, path string) (float64, error) {
	r.measured = append(r.measured, filepath.Base(path))
	switch filepath.Base(path) {
	case "mixed.wav":
		return r.mixDb, nil
	case "out.mp3":
		return r.mp3Db, nil
	default:
		return r.transformDb, nil
	}
}

func (r *fakeRunner) Boost(_ context.Context, _, output string, gain float64) error {
	r.boostCalls++
	r.boostGains = append(r.boostGains, gain)
	return os.WriteFile(output, []byte("boosted"), 0o644)
}

func (r *fakeRunner) MixTextures(_ context.Context, _ string, _ []media.Texture, _ float64, output string) error {
	r.mixCalls++
	if r.mixErr != nil {
		return r.mixErr
	}
	return os.WriteFile(output, []byte("mixed"), 0o644)
}

func (r *fakeRunner) EncodeMP3(_ context.Context, _, output string) error {
	r.encodeCalls++
	return os.WriteFile(output, []byte("mp3"), 0o644)
}

type fakeAcquirer struct {
	err error
}

func (a *fakeAcquirer) Acquire(_ context.Context, _ model.SourceKind, _, workDir string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	path := filepath.Join(workDir, "source.wav")
	return path, os.WriteFile(path, []byte("source"), 0o644)
}

type progressLog struct {
	values []int
	steps  []string
}

func (p *progressLog) report(progress int, step string) {
	p.values = append(p.values, progress)
	p.steps = append(p.steps, step)
}

func testPipelineCfg(textureDir string) config.PipelineConfig {
	return config.PipelineConfig{
		StageTimeout:     2 * time.Second,
		EncodeTimeout:    2 * time.Second,
		SilenceThreshold: -20,
		FinalGuard:       -30,
		TextureDir:       textureDir,
		SampleRate:       44100,
		Channels:         2,
	}
}

func uploadJob() *model.Job {
	return &model.Job{
		ID:         "j1",
		SourceKind: model.SourceUpload,
		SourceRef:  "some/staged.wav",
		Preset:     "default",
	}
}

func newTestPipeline(t *testing.T, r *fakeRunner, a *fakeAcquirer, textureDir string) (*Pipeline, *client.LocalClient, string) {
	t.Helper()
	artifactDir := t.TempDir()
	storage, err := client.NewLocalClient(artifactDir)
	require.NoError(t, err)
	workRoot := t.TempDir()
	return New(testPipelineCfg(textureDir), r, a, storage, workRoot), storage, workRoot
}

func TestProcessHappyPath(t *testing.T) {
	r := &fakeRunner{transformDb: -12, mp3Db: -14}
	p, storage, workRoot := newTestPipeline(t, r, &fakeAcquirer{}, t.TempDir())

	prog := &progressLog{}
	result, err := p.Process(context.Background(), uploadJob(), prog.report)
	require.NoError(t, err)

	assert.Equal(t, "/api/download/j1/mp3", result.MP3URL)
	assert.Equal(t, "/api/download/j1/wav", result.WAVURL)

	// Artifacts are durably retrievable through the store.
	rc, err := storage.Open(context.Background(), client.ArtifactKey("j1", "mp3"))
	require.NoError(t, err)
	rc.Close()

	// Progress is non-decreasing and terminates at 100.
	last := -1
	for _, v := range prog.values {
		assert.GreaterOrEqual(t, v, last)
		last = v
	}
	assert.Equal(t, 100, last)

	// No boost ran: the output was loud enough.
	assert.Zero(t, r.boostCalls)
	assert.Equal(t, 1, r.transformCalls)
	assert.Equal(t, 1, r.encodeCalls)

	// Workspace intermediates are gone.
	entries, err := os.ReadDir(workRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessQuietOutputRepaired(t *testing.T) {
	r := &fakeRunner{transformDb: -25, mp3Db: -14}
	p, _, _ := newTestPipeline(t, r, &fakeAcquirer{}, t.TempDir())

	prog := &progressLog{}
	_, err := p.Process(context.Background(), uploadJob(), prog.report)
	require.NoError(t, err)

	// One corrective boost, not a second transform pass.
	assert.Equal(t, 1, r.boostCalls)
	assert.Equal(t, []float64{10.0}, r.boostGains)
	assert.Equal(t, 1, r.transformCalls)
}

func TestProcessFinalGuardBoost(t *testing.T) {
	r := &fakeRunner{transformDb: -12, mp3Db: -35}
	p, _, _ := newTestPipeline(t, r, &fakeAcquirer{}, t.TempDir())

	_, err := p.Process(context.Background(), uploadJob(), func(int, string) {})
	require.NoError(t, err)

	assert.Equal(t, []float64{20.0}, r.boostGains, "single-shot final boost")
}

func TestProcessTransformTimeout(t *testing.T) {
	r := &fakeRunner{transformErr: context.DeadlineExceeded}
	p, _, workRoot := newTestPipeline(t, r, &fakeAcquirer{}, t.TempDir())

	_, err := p.Process(context.Background(), uploadJob(), func(int, string) {})

	var f *model.Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, model.FailStageTimeout, f.Code)

	// Cleanup runs on the failure path too.
	entries, rdErr := os.ReadDir(workRoot)
	require.NoError(t, rdErr)
	assert.Empty(t, entries)
}

func TestProcessAcquireFailurePropagates(t *testing.T) {
	srcErr := model.NewFailure(model.FailSourcePrivate, errors.New("private"))
	p, _, _ := newTestPipeline(t, &fakeRunner{}, &fakeAcquirer{err: srcErr}, t.TempDir())

	_, err := p.Process(context.Background(), uploadJob(), func(int, string) {})

	var f *model.Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, model.FailSourcePrivate, f.Code)
}

func TestProcessUnknownPreset(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeRunner{}, &fakeAcquirer{}, t.TempDir())
	job := uploadJob()
	job.Preset = "vaporwave"

	_, err := p.Process(context.Background(), job, func(int, string) {})

	var f *model.Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, model.FailInvalidArgument, f.Code)
}

func TestProcessTexturesSkippedWhenMissing(t *testing.T) {
	r := &fakeRunner{transformDb: -12, mp3Db: -14}
	// Empty texture dir: stage is skipped without failing the job.
	p, _, _ := newTestPipeline(t, r, &fakeAcquirer{}, t.TempDir())

	_, err := p.Process(context.Background(), uploadJob(), func(int, string) {})
	require.NoError(t, err)
	assert.Zero(t, r.mixCalls)
}

func TestProcessTexturesMixed(t *testing.T) {
	textureDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(textureDir, "vinyl_crackle.wav"), []byte("tex"), 0o644))

	r := &fakeRunner{transformDb: -12, mixDb: -16, mp3Db: -14}
	p, _, _ := newTestPipeline(t, r, &fakeAcquirer{}, textureDir)

	_, err := p.Process(context.Background(), uploadJob(), func(int, string) {})
	require.NoError(t, err)
	assert.Equal(t, 1, r.mixCalls)
}

func TestProcessTextureMixFailureDegrades(t *testing.T) {
	textureDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(textureDir, "vinyl_crackle.wav"), []byte("tex"), 0o644))

	r := &fakeRunner{transformDb: -12, mixErr: errors.New("amix blew up"), mp3Db: -14}
	p, _, _ := newTestPipeline(t, r, &fakeAcquirer{}, textureDir)

	result, err := p.Process(context.Background(), uploadJob(), func(int, string) {})
	require.NoError(t, err, "texture failure degrades, never fails the job")
	assert.NotNil(t, result)
}

func TestProcessSilentMixDiscarded(t *testing.T) {
	textureDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(textureDir, "vinyl_crackle.wav"), []byte("tex"), 0o644))

	r := &fakeRunner{transformDb: -12, mixDb: -80, mp3Db: -14}
	p, _, _ := newTestPipeline(t, r, &fakeAcquirer{}, textureDir)

	_, err := p.Process(context.Background(), uploadJob(), func(int, string) {})
	require.NoError(t, err)
	assert.Equal(t, 1, r.mixCalls)
	// The mixed file was measured and rejected; the original WAV shipped.
	assert.Contains(t, r.measured, "mixed.wav")
}

func TestLoadTextures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vinyl_crackle.wav"), []byte("v"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rain_ambient.wav"), []byte("r"), 0o644))

	textures := loadTextures(dir, 0.8)
	require.Len(t, textures, 2)
	assert.InDelta(t, 0.8, textures[0].Gain, 1e-9)  // vinyl weight 1.0
	assert.InDelta(t, 1.2, textures[1].Gain, 1e-9)  // rain weight 1.5
	assert.Empty(t, loadTextures(filepath.Join(dir, "missing"), 0.8))
}
