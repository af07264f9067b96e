package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lofitape/api/internal/config"
)

// TaskTypeProcess is the asynq task type for conversion jobs.
const TaskTypeProcess = "lofi:process"

const queueName = "lofi"

// taskRetention keeps finished task metadata around for inspection via
// asynq tooling; job state itself lives in the store.
const taskRetention = 24 * time.Hour

type processPayload struct {
	JobID string `json:"jobId"`
}

// AsynqScheduler is the Redis-backed Scheduler. Task IDs equal job IDs, so
// Redis enforces at-most-once admission across all API replicas.
type AsynqScheduler struct {
	client *asynq.Client
	server *asynq.Server
	cfg    config.WorkerConfig
}

// NewAsynqScheduler creates a scheduler on the given Redis connection.
func NewAsynqScheduler(redisCfg config.RedisConfig, workerCfg config.WorkerConfig) *AsynqScheduler {
	opt := asynq.RedisClientOpt{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	}
	return &AsynqScheduler{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueName: 1,
			},
			RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
				return workerCfg.RetryBase << n
			},
			LogLevel: asynq.WarnLevel,
		}),
		cfg: workerCfg,
	}
}

func (s *AsynqScheduler) Enqueue(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(processPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}

	_, err = s.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeProcess, payload),
		asynq.TaskID(jobID),
		asynq.Queue(queueName),
		asynq.MaxRetry(s.cfg.MaxAttempts-1),
		asynq.Timeout(s.cfg.JobTimeout),
		asynq.Retention(taskRetention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (s *AsynqScheduler) Start(h Handler) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeProcess, func(ctx context.Context, t *asynq.Task) error {
		var p processPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			log.Printf("queue: dropping malformed task: %v", err)
			return fmt.Errorf("unmarshal task payload: %w", asynq.SkipRetry)
		}

		retried, _ := asynq.GetRetryCount(ctx)
		err := h(ctx, p.JobID, retried+1)
		if err != nil && !Retryable(err) {
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		return err
	})
	return s.server.Run(mux)
}

func (s *AsynqScheduler) Shutdown() {
	s.server.Shutdown()
	_ = s.client.Close()
}
