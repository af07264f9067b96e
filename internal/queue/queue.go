// Package queue schedules job attempts. The Redis-backed scheduler rides on
// asynq; the in-memory scheduler covers single-node deployments without
// Redis. Both guarantee at-most-once admission per job ID and retry failed
// attempts with exponential backoff up to the configured attempt cap.
package queue

import (
	"context"
	"errors"

	"github.com/lofitape/api/internal/model"
)

// Handler runs a single attempt for a job. attempt is 1-based and advances
// only when a previous attempt failed with a retryable error.
type Handler func(ctx context.Context, jobID string, attempt int) error

// Scheduler admits jobs and drives attempts through a Handler.
type Scheduler interface {
	// Enqueue admits a job for processing. Re-admitting an ID that is
	// already queued or running is a no-op.
	Enqueue(ctx context.Context, jobID string) error

	// Start begins consuming with h and blocks until Shutdown.
	Start(h Handler) error

	// Shutdown stops intake and waits for in-flight attempts.
	Shutdown()
}

// ErrQueueFull is returned when the in-memory scheduler cannot admit more
// work without blocking the caller.
var ErrQueueFull = errors.New("queue: backlog full")

// Retryable reports whether a failed attempt should be tried again.
// Verdicts about the source itself are final: re-running the attempt cannot
// make a private video public or a long track short.
func Retryable(err error) bool {
	f := model.AsFailure(err)
	switch f.Code {
	case model.FailInvalidArgument,
		model.FailSourcePrivate,
		model.FailSourceRestricted,
		model.FailSourceTooLong:
		return false
	default:
		return true
	}
}
