package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lofitape/api/internal/model"
)

// MemoryStore is the fallback backend used when Redis is not configured,
// and the backend of choice in tests. Records are purged after the
// retention window by a janitor goroutine.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*model.Job
	retention time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewMemoryStore creates a store and starts its janitor. retention <= 0
// disables purging.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	s := &MemoryStore{
		jobs:      make(map[string]*model.Job),
		retention: retention,
		stop:      make(chan struct{}),
	}
	if retention > 0 {
		go s.janitor()
	}
	return s
}

// Close stops the janitor.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-s.retention)
			s.mu.Lock()
			for id, job := range s.jobs {
				if job.UpdatedAt.Before(cutoff) {
					delete(s.jobs, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryStore) Create(_ context.Context, job *model.Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *MemoryStore) MarkProcessing(_ context.Context, jobID string, attempt int) error {
	return s.update(jobID, func(job *model.Job) bool {
		return applyProcessing(job, attempt)
	})
}

func (s *MemoryStore) UpdateProgress(_ context.Context, jobID string, attempt, progress int, step string) error {
	return s.update(jobID, func(job *model.Job) bool {
		return applyProgress(job, attempt, progress, step)
	})
}

func (s *MemoryStore) MarkCompleted(_ context.Context, jobID string, result *model.JobResult) error {
	return s.update(jobID, func(job *model.Job) bool {
		return applyCompleted(job, result)
	})
}

func (s *MemoryStore) MarkFailed(_ context.Context, jobID string, failure *model.Failure) error {
	return s.update(jobID, func(job *model.Job) bool {
		return applyFailed(job, failure)
	})
}

func (s *MemoryStore) update(jobID string, mutate func(*model.Job) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	mutate(job)
	return nil
}
