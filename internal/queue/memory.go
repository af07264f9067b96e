package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lofitape/api/internal/config"
)

const memoryBacklog = 256

// MemoryScheduler runs the queue in-process when Redis is not configured.
// Jobs admitted here do not survive a restart; the trade is accepted for
// zero-dependency deployments and tests.
type MemoryScheduler struct {
	cfg   config.WorkerConfig
	tasks chan string

	mu       sync.Mutex
	admitted map[string]struct{}
	closed   bool

	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewMemoryScheduler creates an in-process scheduler.
func NewMemoryScheduler(cfg config.WorkerConfig) *MemoryScheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &MemoryScheduler{
		cfg:      cfg,
		tasks:    make(chan string, memoryBacklog),
		admitted: make(map[string]struct{}),
		quit:     make(chan struct{}),
	}
}

func (s *MemoryScheduler) Enqueue(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrQueueFull
	}
	if _, dup := s.admitted[jobID]; dup {
		return nil
	}

	select {
	case s.tasks <- jobID:
		s.admitted[jobID] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *MemoryScheduler) Start(h Handler) error {
	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.consume(h)
	}
	s.wg.Wait()
	return nil
}

func (s *MemoryScheduler) consume(h Handler) {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case jobID := <-s.tasks:
			s.runAttempts(h, jobID)
		}
	}
}

// runAttempts drives one job through up to MaxAttempts attempts with
// exponential backoff between them. Final disposition is the handler's
// responsibility; the scheduler only decides whether another attempt runs.
func (s *MemoryScheduler) runAttempts(h Handler, jobID string) {
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err := h(context.Background(), jobID, attempt)
		if err == nil {
			return
		}
		if !Retryable(err) || attempt == s.cfg.MaxAttempts {
			log.Printf("queue: job %s exhausted after attempt %d: %v", jobID, attempt, err)
			return
		}

		delay := s.cfg.RetryBase << (attempt - 1)
		select {
		case <-s.quit:
			return
		case <-time.After(delay):
		}
	}
}

func (s *MemoryScheduler) Shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.quit)
	})
	s.wg.Wait()
}
