package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lofitape/api/internal/model"
)

const jobKeyPrefix = "job:"

// RedisStore keeps Job records in Redis as JSON under "job:<id>" with a
// retention TTL. Records expire after the retention window; artifacts in the
// artifact store outlive them.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a store with the given retention TTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, job *model.Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	// NX guards against id reuse.
	ok, err := s.rdb.SetNX(ctx, jobKey(job.ID), data, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *RedisStore) MarkProcessing(ctx context.Context, jobID string, attempt int) error {
	return s.update(ctx, jobID, func(job *model.Job) bool {
		return applyProcessing(job, attempt)
	})
}

func (s *RedisStore) UpdateProgress(ctx context.Context, jobID string, attempt, progress int, step string) error {
	return s.update(ctx, jobID, func(job *model.Job) bool {
		return applyProgress(job, attempt, progress, step)
	})
}

func (s *RedisStore) MarkCompleted(ctx context.Context, jobID string, result *model.JobResult) error {
	return s.update(ctx, jobID, func(job *model.Job) bool {
		return applyCompleted(job, result)
	})
}

func (s *RedisStore) MarkFailed(ctx context.Context, jobID string, failure *model.Failure) error {
	return s.update(ctx, jobID, func(job *model.Job) bool {
		return applyFailed(job, failure)
	})
}

// update applies a guarded mutation under WATCH so a concurrent writer
// cannot interleave between read and write.
func (s *RedisStore) update(ctx context.Context, jobID string, mutate func(*model.Job) bool) error {
	key := jobKey(jobID)
	for {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					return ErrNotFound
				}
				return err
			}
			var job model.Job
			if err := json.Unmarshal(data, &job); err != nil {
				return err
			}
			if !mutate(&job) {
				// Guard rejected the mutation; nothing to write.
				return nil
			}
			payload, err := json.Marshal(&job)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, s.ttl)
				return nil
			})
			return err
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
}
