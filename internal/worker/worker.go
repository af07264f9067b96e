// Package worker executes conversion attempts handed out by the queue. It
// owns the job's state transitions for the duration of an attempt: mark
// processing, stream progress, and settle the terminal state exactly once.
package worker

import (
	"context"
	"errors"
	"log"

	"github.com/lofitape/api/internal/config"
	"github.com/lofitape/api/internal/model"
	"github.com/lofitape/api/internal/pipeline"
	"github.com/lofitape/api/internal/queue"
	"github.com/lofitape/api/internal/store"
	"github.com/lofitape/api/internal/websocket"
)

// Processor runs one pipeline attempt (see internal/pipeline).
type Processor interface {
	Process(ctx context.Context, job *model.Job, report pipeline.ProgressFunc) (*model.JobResult, error)
}

// ConvertWorker drives conversion attempts.
type ConvertWorker struct {
	store     store.JobStore
	processor Processor
	hub       *websocket.Hub
	cfg       config.WorkerConfig
}

// NewConvertWorker creates a worker.
func NewConvertWorker(jobStore store.JobStore, processor Processor, hub *websocket.Hub, cfg config.WorkerConfig) *ConvertWorker {
	return &ConvertWorker{
		store:     jobStore,
		processor: processor,
		hub:       hub,
		cfg:       cfg,
	}
}

// HandleAttempt satisfies queue.Handler. A returned error asks the
// scheduler to retry when the failure is retryable and attempts remain;
// the terminal failed state is written here, only on the last attempt.
func (w *ConvertWorker) HandleAttempt(ctx context.Context, jobID string, attempt int) error {
	job, err := w.store.Get(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		// The record expired between enqueue and pickup; nothing to do and
		// nothing a retry could recover.
		log.Printf("worker: job %s no longer exists, dropping", jobID)
		return nil
	}
	if err != nil {
		return model.NewFailure(model.FailInternal, err)
	}
	if job.Status.Terminal() {
		// Redelivery after a settled outcome is a no-op.
		return nil
	}

	if err := w.store.MarkProcessing(ctx, jobID, attempt); err != nil {
		return model.NewFailure(model.FailInternal, err)
	}
	job.Status = model.JobStatusProcessing
	job.Attempt = attempt
	w.hub.BroadcastProgress(jobID, 0, model.JobStatusProcessing, "starting")
	log.Printf("worker: job %s attempt %d/%d", jobID, attempt, w.cfg.MaxAttempts)

	attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	result, err := w.processor.Process(attemptCtx, job, func(progress int, step string) {
		if err := w.store.UpdateProgress(ctx, jobID, attempt, progress, step); err != nil {
			log.Printf("worker: job %s progress update: %v", jobID, err)
		}
		w.hub.BroadcastProgress(jobID, progress, model.JobStatusProcessing, step)
	})
	if err != nil {
		return w.settleFailure(ctx, jobID, attempt, err)
	}

	if err := w.store.MarkCompleted(ctx, jobID, result); err != nil {
		return model.NewFailure(model.FailInternal, err)
	}
	w.hub.BroadcastComplete(jobID, result)
	log.Printf("worker: job %s completed", jobID)
	return nil
}

func (w *ConvertWorker) settleFailure(ctx context.Context, jobID string, attempt int, cause error) error {
	failure := model.AsFailure(cause)
	final := attempt >= w.cfg.MaxAttempts || !queue.Retryable(cause)
	if !final {
		log.Printf("worker: job %s attempt %d failed (%s), retrying", jobID, attempt, failure.Code)
		return cause
	}

	if err := w.store.MarkFailed(ctx, jobID, failure); err != nil {
		log.Printf("worker: job %s mark failed: %v", jobID, err)
	}
	w.hub.BroadcastError(jobID, failure)
	log.Printf("worker: job %s failed permanently on attempt %d: %s", jobID, attempt, failure.Code)
	return cause
}
