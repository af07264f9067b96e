// Package service owns job admission and lookup. Submission validates
// everything that can be rejected synchronously before a record exists;
// anything that needs the source or the tools is the pipeline's problem.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/lofitape/api/internal/model"
	"github.com/lofitape/api/internal/preset"
	"github.com/lofitape/api/internal/queue"
	"github.com/lofitape/api/internal/source"
	"github.com/lofitape/api/internal/store"
)

// MaxUploadBytes caps direct uploads.
const MaxUploadBytes = 100 << 20

// Admission errors the handler maps onto 4xx responses.
var (
	ErrUnknownPreset  = errors.New("unknown preset")
	ErrInvalidURL     = errors.New("source url is not a recognized video link")
	ErrUploadTooLarge = fmt.Errorf("upload exceeds %d bytes", int64(MaxUploadBytes))
	ErrUploadNotAudio = errors.New("upload is not a supported audio file")
	ErrNotFound       = store.ErrNotFound
)

// audio containers accepted for direct upload, by detected content type.
var allowedUploadTypes = []string{
	"audio/mpeg",
	"audio/wav",
	"audio/x-wav",
	"audio/flac",
	"audio/ogg",
	"audio/mp4",
	"audio/aac",
	"video/webm", // bare Opus/Vorbis audio detects as webm
}

// JobService admits conversion jobs and answers status queries.
type JobService struct {
	store     store.JobStore
	scheduler queue.Scheduler
	uploadDir string
}

// NewJobService creates a JobService staging uploads under uploadDir.
func NewJobService(jobStore store.JobStore, scheduler queue.Scheduler, uploadDir string) *JobService {
	return &JobService{
		store:     jobStore,
		scheduler: scheduler,
		uploadDir: uploadDir,
	}
}

// SubmitYouTube admits a job for a remote source. URL shape problems are
// rejected here, before any record exists; whether the video actually
// resolves is decided by the first attempt.
func (s *JobService) SubmitYouTube(ctx context.Context, sourceURL, presetID string) (*model.CreateJobResponse, error) {
	presetID, err := resolvePreset(presetID)
	if err != nil {
		return nil, err
	}
	videoID, ok := source.ExtractVideoID(sourceURL)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, sourceURL)
	}
	return s.admit(ctx, model.SourceYouTube, source.CanonicalURL(videoID), presetID)
}

// SubmitUpload stages the uploaded file and admits a job referencing it.
func (s *JobService) SubmitUpload(ctx context.Context, file *multipart.FileHeader, presetID string) (*model.CreateJobResponse, error) {
	presetID, err := resolvePreset(presetID)
	if err != nil {
		return nil, err
	}
	if file.Size > MaxUploadBytes {
		return nil, ErrUploadTooLarge
	}

	staged, err := s.stage(file)
	if err != nil {
		return nil, err
	}

	resp, err := s.admit(ctx, model.SourceUpload, staged, presetID)
	if err != nil {
		_ = os.Remove(staged)
		return nil, err
	}
	return resp, nil
}

// GetStatus returns the external view of a job, or ErrNotFound.
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.Snapshot, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	snap := job.Snapshot()
	return &snap, nil
}

// GetResult returns the artifact locations of a completed job.
func (s *JobService) GetResult(ctx context.Context, jobID string) (*model.JobResult, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted || job.Result == nil {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, ErrNotFound)
	}
	return job.Result, nil
}

func (s *JobService) admit(ctx context.Context, kind model.SourceKind, ref, presetID string) (*model.CreateJobResponse, error) {
	now := time.Now().UTC()
	job := &model.Job{
		ID:         uuid.New().String(),
		SourceKind: kind,
		SourceRef:  ref,
		Preset:     presetID,
		Status:     model.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}
	if err := s.scheduler.Enqueue(ctx, job.ID); err != nil {
		// The record exists but will never run; fail it so pollers are not
		// left watching an eternal pending.
		failure := model.NewFailure(model.FailInternal, err)
		if markErr := s.store.MarkFailed(ctx, job.ID, failure); markErr != nil {
			log.Printf("service: job %s mark failed after enqueue error: %v", job.ID, markErr)
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	log.Printf("service: admitted %s job %s preset=%s", kind, job.ID, presetID)
	return &model.CreateJobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

// stage copies the upload into the staging directory under a generated
// name. The original filename never touches the filesystem.
func (s *JobService) stage(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return "", fmt.Errorf("sniff upload: %w", err)
	}
	if !uploadTypeAllowed(mtype) {
		return "", fmt.Errorf("%w: detected %s", ErrUploadNotAudio, mtype.String())
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	staged := filepath.Join(s.uploadDir, uuid.New().String()+mtype.Extension())
	dst, err := os.Create(staged)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, MaxUploadBytes+1)); err != nil {
		_ = os.Remove(staged)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	return staged, nil
}

func uploadTypeAllowed(mtype *mimetype.MIME) bool {
	for _, allowed := range allowedUploadTypes {
		if mtype.Is(allowed) {
			return true
		}
	}
	return false
}

func resolvePreset(presetID string) (string, error) {
	if presetID == "" {
		return preset.DefaultID, nil
	}
	if !preset.Valid(presetID) {
		return "", fmt.Errorf("%w: %q", ErrUnknownPreset, presetID)
	}
	return presetID, nil
}
