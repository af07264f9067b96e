// Package pipeline runs the multi-stage lo-fi transform for one attempt:
// acquire, primary transform, loudness verify/repair, texture layering,
// encode, final loudness guard, publish. Stages are strictly sequential;
// retry happens at whole-attempt granularity and is owned by the queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lofitape/api/internal/client"
	"github.com/lofitape/api/internal/config"
	"github.com/lofitape/api/internal/media"
	"github.com/lofitape/api/internal/model"
	"github.com/lofitape/api/internal/preset"
)

// ProgressFunc receives progress milestones as stages advance. Values are
// non-decreasing within an attempt.
type ProgressFunc func(progress int, step string)

// Acquirer resolves the job source into a local file (see internal/source).
type Acquirer interface {
	Acquire(ctx context.Context, kind model.SourceKind, ref, workDir string) (string, error)
}

// Corrective gains applied by the loudness repair stages, matching the
// bounded single-shot repair contract: verify, patch once, move on.
const (
	repairBoostGain = 10.0
	finalBoostGain  = 20.0

	// Mixed output below this is considered a failed texture pass and the
	// un-layered signal is kept instead.
	mixSanityFloorDb = -50.0
)

// Pipeline executes attempts. It is stateless between jobs and safe for
// concurrent use by the worker pool.
type Pipeline struct {
	cfg      config.PipelineConfig
	runner   media.Runner
	acquirer Acquirer
	storage  client.StorageClient
	workRoot string
}

// New creates a Pipeline.
func New(cfg config.PipelineConfig, runner media.Runner, acquirer Acquirer, storage client.StorageClient, workRoot string) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		runner:   runner,
		acquirer: acquirer,
		storage:  storage,
		workRoot: workRoot,
	}
}

// Process runs one attempt end to end. All intermediates are removed on
// every exit path; only published artifacts survive.
func (p *Pipeline) Process(ctx context.Context, job *model.Job, report ProgressFunc) (*model.JobResult, error) {
	ws, err := newWorkspace(p.workRoot, job.ID)
	if err != nil {
		return nil, model.NewFailure(model.FailInternal, err)
	}
	defer ws.cleanup()

	cfg, ok := preset.Lookup(job.Preset)
	if !ok {
		// Submission validates presets; reaching this means the record was
		// tampered with or the catalog shrank.
		return nil, model.NewFailure(model.FailInvalidArgument, fmt.Errorf("unknown preset %q", job.Preset))
	}

	// Stage 1: acquire (0-30%).
	report(2, "acquiring source")
	input, err := p.acquirer.Acquire(ctx, job.SourceKind, job.SourceRef, ws.dir)
	if err != nil {
		return nil, err
	}
	report(30, "applying effects")

	// Stage 2: primary transform (30-60%).
	if err := p.runStage(ctx, p.cfg.StageTimeout, "transform", func(sctx context.Context) error {
		return p.runner.Transform(sctx, input, ws.tempWavPath(), cfg)
	}); err != nil {
		return nil, err
	}
	report(55, "verifying loudness")

	// Stage 3: loudness verification. Heavy filtering plus compression can
	// collapse signal level; output loudness is a contract to verify and
	// patch, not a reason to re-run the chain.
	if err := p.verifyAndRepair(ctx, ws); err != nil {
		return nil, err
	}
	report(60, "layering textures")

	// Stage 4: texture layering (60-80%), optional.
	p.layerTextures(ctx, ws, cfg.TextureLevel)
	report(80, "encoding")

	// Stage 6: encode deliverables (80-95%). The WAV deliverable is the
	// final working WAV; MP3 is encoded from it.
	if err := p.runStage(ctx, p.cfg.EncodeTimeout, "encode", func(sctx context.Context) error {
		return p.runner.EncodeMP3(sctx, ws.wavPath(), ws.mp3Path())
	}); err != nil {
		return nil, err
	}

	// Stage 5/6: final loudness guard on the encoded output. Single-shot;
	// no repair loop, no runaway amplification.
	p.finalGuard(ctx, ws)
	report(95, "publishing")

	// Stage 7: publish, then succeed.
	result, err := p.publish(ctx, job.ID, ws)
	if err != nil {
		return nil, err
	}
	report(100, "done")
	return result, nil
}

// runStage executes one external-tool invocation under its own timeout and
// maps the outcome to the failure taxonomy with the failing stage attached.
func (p *Pipeline) runStage(ctx context.Context, timeout time.Duration, stage string, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(sctx)
	if err == nil {
		return nil
	}
	cause := fmt.Errorf("stage %s: %w", stage, err)
	log.Printf("pipeline: %v", cause)
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewFailure(model.FailStageTimeout, cause)
	}
	var f *model.Failure
	if errors.As(err, &f) {
		return f
	}
	return model.NewFailure(model.FailStageFailure, cause)
}

func (p *Pipeline) verifyAndRepair(ctx context.Context, ws *workspace) error {
	return p.runStage(ctx, p.cfg.StageTimeout, "loudness-verify", func(sctx context.Context) error {
		db, err := p.runner.MeasureMeanVolume(sctx, ws.tempWavPath())
		if err != nil {
			return err
		}
		if db >= p.cfg.SilenceThreshold {
			return os.Rename(ws.tempWavPath(), ws.wavPath())
		}

		log.Printf("pipeline: output at %.1f dB, below %.1f dB, boosting", db, p.cfg.SilenceThreshold)
		if err := p.runner.Boost(sctx, ws.tempWavPath(), ws.wavPath(), repairBoostGain); err != nil {
			return err
		}
		_ = os.Remove(ws.tempWavPath())
		return nil
	})
}

// layerTextures mixes ambient layers under the signal. The stage degrades
// instead of failing: missing assets skip it, a broken mix keeps the
// un-layered WAV.
func (p *Pipeline) layerTextures(ctx context.Context, ws *workspace, level float64) {
	textures := loadTextures(p.cfg.TextureDir, level)
	if len(textures) == 0 {
		return
	}

	err := p.runStage(ctx, p.cfg.StageTimeout, "texture-mix", func(sctx context.Context) error {
		return p.runner.MixTextures(sctx, ws.wavPath(), textures, mainGainFor(len(textures)), ws.mixedWavPath())
	})
	if err != nil {
		log.Printf("pipeline: texture layering failed, continuing without textures: %v", err)
		return
	}

	db, err := p.runner.MeasureMeanVolume(ctx, ws.mixedWavPath())
	if err != nil || db <= mixSanityFloorDb {
		log.Printf("pipeline: mixed output unusable (%.1f dB, err=%v), keeping original", db, err)
		_ = os.Remove(ws.mixedWavPath())
		return
	}
	_ = os.Remove(ws.wavPath())
	_ = os.Rename(ws.mixedWavPath(), ws.wavPath())
}

// finalGuard re-measures the MP3 and applies one last corrective boost if
// it is still too quiet. Best-effort: a failed guard never fails the job.
func (p *Pipeline) finalGuard(ctx context.Context, ws *workspace) {
	db, err := p.runner.MeasureMeanVolume(ctx, ws.mp3Path())
	if err != nil || db >= p.cfg.FinalGuard {
		return
	}
	log.Printf("pipeline: final output at %.1f dB, below %.1f dB, boosting", db, p.cfg.FinalGuard)

	boosted := ws.boostedPath("out.mp3")
	if err := p.runner.Boost(ctx, ws.mp3Path(), boosted, finalBoostGain); err != nil {
		log.Printf("pipeline: final boost failed, keeping quiet output: %v", err)
		return
	}
	_ = os.Remove(ws.mp3Path())
	_ = os.Rename(boosted, ws.mp3Path())
}

func (p *Pipeline) publish(ctx context.Context, jobID string, ws *workspace) (*model.JobResult, error) {
	mp3URL, err := p.publishFile(ctx, client.ArtifactKey(jobID, "mp3"), ws.mp3Path(), "audio/mpeg")
	if err != nil {
		return nil, err
	}
	wavURL, err := p.publishFile(ctx, client.ArtifactKey(jobID, "wav"), ws.wavPath(), "audio/wav")
	if err != nil {
		return nil, err
	}
	return &model.JobResult{MP3URL: mp3URL, WAVURL: wavURL}, nil
}

func (p *Pipeline) publishFile(ctx context.Context, key, path, contentType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", model.NewFailure(model.FailPublishFailure, fmt.Errorf("open %s: %w", key, err))
	}
	defer f.Close()

	url, err := p.storage.Upload(ctx, key, f, contentType)
	if err != nil {
		return "", model.NewFailure(model.FailPublishFailure, fmt.Errorf("upload %s: %w", key, err))
	}
	return url, nil
}
