package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofitape/api/internal/config"
	"github.com/lofitape/api/internal/model"
	"github.com/lofitape/api/internal/pipeline"
	"github.com/lofitape/api/internal/store"
	"github.com/lofitape/api/internal/websocket"
)

type fakeProcessor struct {
	results []error // one entry per call; nil means success
	result  *model.JobResult
	calls   int
}

func (p *fakeProcessor) Process(_ context.Context, _ *model.Job, report pipeline.ProgressFunc) (*model.JobResult, error) {
	idx := p.calls
	p.calls++
	report(30, "applying effects")
	report(80, "encoding")

	if idx < len(p.results) && p.results[idx] != nil {
		return nil, p.results[idx]
	}
	if p.result == nil {
		p.result = &model.JobResult{MP3URL: "/api/download/j1/mp3", WAVURL: "/api/download/j1/wav"}
	}
	return p.result, nil
}

func workerCfg() config.WorkerConfig {
	return config.WorkerConfig{
		Concurrency: 1,
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
		JobTimeout:  time.Second,
	}
}

func seedJob(t *testing.T, s store.JobStore) *model.Job {
	t.Helper()
	job := &model.Job{
		ID:         "j1",
		SourceKind: model.SourceUpload,
		SourceRef:  "staged/j1.wav",
		Preset:     "default",
		Status:     model.JobStatusPending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.Create(context.Background(), job))
	return job
}

func newWorker(s store.JobStore, p Processor) *ConvertWorker {
	return NewConvertWorker(s, p, websocket.NewHub(), workerCfg())
}

func TestHandleAttemptSuccess(t *testing.T) {
	s := store.NewMemoryStore(0)
	defer s.Close()
	seedJob(t, s)

	w := newWorker(s, &fakeProcessor{})
	require.NoError(t, w.HandleAttempt(context.Background(), "j1", 1))

	job, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Result)
	assert.Equal(t, "/api/download/j1/mp3", job.Result.MP3URL)
	assert.Nil(t, job.Failure)
}

func TestHandleAttemptRetryableKeepsJobProcessing(t *testing.T) {
	s := store.NewMemoryStore(0)
	defer s.Close()
	seedJob(t, s)

	flaky := model.NewFailure(model.FailStageTimeout, errors.New("slow encode"))
	w := newWorker(s, &fakeProcessor{results: []error{flaky}})

	err := w.HandleAttempt(context.Background(), "j1", 1)
	require.Error(t, err, "scheduler must see the failure to retry")

	job, getErr := s.Get(context.Background(), "j1")
	require.NoError(t, getErr)
	assert.Equal(t, model.JobStatusProcessing, job.Status, "not terminal before the last attempt")
	assert.Nil(t, job.Failure)
}

func TestHandleAttemptFinalAttemptMarksFailed(t *testing.T) {
	s := store.NewMemoryStore(0)
	defer s.Close()
	seedJob(t, s)

	flaky := model.NewFailure(model.FailStageTimeout, errors.New("slow encode"))
	w := newWorker(s, &fakeProcessor{results: []error{flaky, flaky, flaky}})

	for attempt := 1; attempt <= 3; attempt++ {
		err := w.HandleAttempt(context.Background(), "j1", attempt)
		require.Error(t, err)
	}

	job, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.Failure)
	assert.Equal(t, model.FailStageTimeout, job.Failure.Code)
	assert.Equal(t, 3, job.Attempt)
	assert.Nil(t, job.Result)
}

func TestHandleAttemptPermanentFailureSettlesImmediately(t *testing.T) {
	s := store.NewMemoryStore(0)
	defer s.Close()
	seedJob(t, s)

	private := model.NewFailure(model.FailSourcePrivate, errors.New("private video"))
	w := newWorker(s, &fakeProcessor{results: []error{private}})

	err := w.HandleAttempt(context.Background(), "j1", 1)
	require.Error(t, err)

	job, getErr := s.Get(context.Background(), "j1")
	require.NoError(t, getErr)
	assert.Equal(t, model.JobStatusFailed, job.Status, "no point retrying a private source")
	assert.Equal(t, model.FailSourcePrivate, job.Failure.Code)
}

func TestHandleAttemptRetryResetsProgress(t *testing.T) {
	s := store.NewMemoryStore(0)
	defer s.Close()
	seedJob(t, s)

	flaky := model.NewFailure(model.FailStageFailure, errors.New("bad chain"))
	proc := &fakeProcessor{results: []error{flaky}}
	w := newWorker(s, proc)

	require.Error(t, w.HandleAttempt(context.Background(), "j1", 1))

	job, _ := s.Get(context.Background(), "j1")
	assert.Equal(t, 80, job.Progress, "first attempt reported up to 80")

	require.NoError(t, w.HandleAttempt(context.Background(), "j1", 2))

	job, _ = s.Get(context.Background(), "j1")
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.Attempt)
}

func TestHandleAttemptMissingJobIsDropped(t *testing.T) {
	s := store.NewMemoryStore(0)
	defer s.Close()

	proc := &fakeProcessor{}
	w := newWorker(s, proc)

	require.NoError(t, w.HandleAttempt(context.Background(), "ghost", 1))
	assert.Zero(t, proc.calls)
}

func TestHandleAttemptTerminalJobIsNoOp(t *testing.T) {
	s := store.NewMemoryStore(0)
	defer s.Close()
	seedJob(t, s)
	require.NoError(t, s.MarkProcessing(context.Background(), "j1", 1))
	require.NoError(t, s.MarkCompleted(context.Background(), "j1", &model.JobResult{MP3URL: "x", WAVURL: "y"}))

	proc := &fakeProcessor{}
	w := newWorker(s, proc)

	require.NoError(t, w.HandleAttempt(context.Background(), "j1", 2))
	assert.Zero(t, proc.calls, "redelivery after completion runs nothing")
}
