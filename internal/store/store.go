// Package store persists Job records and enforces the state machine rules:
// forward-only status transitions, per-attempt monotonic progress, and
// exactly one of result/failure once terminal.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/lofitape/api/internal/model"
)

// ErrNotFound is returned when no record exists for a job id. Expired
// records look the same as never-created ones.
var ErrNotFound = errors.New("job not found")

// JobStore is the single shared mutation point between the assigned worker
// and pollers. Implementations must support concurrent read-while-write.
type JobStore interface {
	// Create stores a new record; the job must be in pending state.
	Create(ctx context.Context, job *model.Job) error

	// Get returns a copy of the record, or ErrNotFound.
	Get(ctx context.Context, jobID string) (*model.Job, error)

	// MarkProcessing transitions the job to processing for the given
	// attempt, resetting progress when the attempt advances.
	MarkProcessing(ctx context.Context, jobID string, attempt int) error

	// UpdateProgress records the latest progress for an attempt. Values are
	// clamped to [0,100]; a late-arriving lower value for the same attempt
	// is ignored. Never fails a terminal record.
	UpdateProgress(ctx context.Context, jobID string, attempt, progress int, step string) error

	// MarkCompleted transitions to completed with the artifact locations.
	MarkCompleted(ctx context.Context, jobID string, result *model.JobResult) error

	// MarkFailed transitions to failed with a user-safe failure.
	MarkFailed(ctx context.Context, jobID string, failure *model.Failure) error
}

// The apply* helpers hold the transition rules shared by every backend.
// Each returns false when the mutation must be ignored.

func applyProcessing(job *model.Job, attempt int) bool {
	if job.Status.Terminal() {
		return false
	}
	if attempt < job.Attempt {
		return false
	}
	if attempt > job.Attempt {
		// New attempt: progress starts over.
		job.Progress = 0
		job.Step = ""
	}
	job.Attempt = attempt
	job.Status = model.JobStatusProcessing
	job.UpdatedAt = time.Now().UTC()
	return true
}

func applyProgress(job *model.Job, attempt, progress int, step string) bool {
	if job.Status.Terminal() {
		return false
	}
	if attempt < job.Attempt {
		return false
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	// Same attempt: non-decreasing. A lower value means stage reordering,
	// not real regression.
	if attempt == job.Attempt && progress < job.Progress {
		return false
	}
	if attempt > job.Attempt {
		job.Attempt = attempt
	}
	job.Progress = progress
	if step != "" {
		job.Step = step
	}
	if job.Status == model.JobStatusPending {
		job.Status = model.JobStatusProcessing
	}
	job.UpdatedAt = time.Now().UTC()
	return true
}

func applyCompleted(job *model.Job, result *model.JobResult) bool {
	if !job.Status.CanTransitionTo(model.JobStatusCompleted) {
		return false
	}
	job.Status = model.JobStatusCompleted
	job.Progress = 100
	job.Result = result
	job.Failure = nil
	job.UpdatedAt = time.Now().UTC()
	return true
}

func applyFailed(job *model.Job, failure *model.Failure) bool {
	if !job.Status.CanTransitionTo(model.JobStatusFailed) {
		return false
	}
	job.Status = model.JobStatusFailed
	job.Failure = failure
	job.Result = nil
	job.UpdatedAt = time.Now().UTC()
	return true
}
