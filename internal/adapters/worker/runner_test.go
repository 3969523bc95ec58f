package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
	"github.com/openregistrar/auditcore/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type runnerMocks struct {
	queue   *mocks.MockQueueRepository
	results *mocks.MockResultRepository
	engine  *mocks.MockRulesEngine
}

func newTestRunner(t *testing.T) (*Runner, runnerMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := runnerMocks{
		queue:   mocks.NewMockQueueRepository(ctrl),
		results: mocks.NewMockResultRepository(ctrl),
		engine:  mocks.NewMockRulesEngine(ctrl),
	}
	runner, err := NewRunner(RunnerOptions{
		Engine:     m.engine,
		QueueRepo:  m.queue,
		ResultRepo: m.results,
		Lease:      30 * time.Second,
		WorkerID:   "worker-test",
	})
	require.NoError(t, err)
	return runner, m
}

func queuedJob() *model.Job {
	return &model.Job{
		ID:        "job-1",
		StudentID: "stu-100",
		AreaCode:  "major/csci",
		Catalog:   "2024-25",
		Run:       1,
		Status:    model.JobStatusClaimed,
		InputData: json.RawMessage(`{"courses":[]}`),
	}
}

func TestNewRunnerValidation(t *testing.T) {
	ctrl := gomock.NewController(t)

	_, err := NewRunner(RunnerOptions{
		QueueRepo:  mocks.NewMockQueueRepository(ctrl),
		ResultRepo: mocks.NewMockResultRepository(ctrl),
	})
	assert.Error(t, err)

	_, err = NewRunner(RunnerOptions{Engine: mocks.NewMockRulesEngine(ctrl)})
	assert.Error(t, err)
}

func TestProcessJobSuccess(t *testing.T) {
	runner, m := newTestRunner(t)
	job := queuedJob()

	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(&model.Evaluation{
		Tree: model.SatisfactionNode{Type: "area", Satisfied: true},
	}, nil)
	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).
		Return(&model.Result{ID: "res-1", Status: model.ResultStatusOK}, nil)
	m.queue.EXPECT().Complete(gomock.Any(), "job-1").Return(true, nil)

	runner.processJob(context.Background(), job)
}

func TestProcessJobPermanentFailureCompletes(t *testing.T) {
	runner, m := newTestRunner(t)
	job := queuedJob()

	// A permanent failure is recorded as a failed result; the queue row is
	// done either way, so the job completes rather than retrying.
	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.Permanent("area file does not parse"))
	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
			assert.Equal(t, model.ResultStatusFailed, req.Status)
			return &model.Result{ID: "res-failed", Status: req.Status}, nil
		})
	m.queue.EXPECT().Complete(gomock.Any(), "job-1").Return(true, nil)

	runner.processJob(context.Background(), job)
}

func TestProcessJobTransientFailureRetries(t *testing.T) {
	runner, m := newTestRunner(t)
	job := queuedJob()

	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.Transient("engine unavailable"))
	m.queue.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.FailJobParams) (bool, error) {
			assert.Equal(t, "job-1", params.ID)
			assert.False(t, params.Permanent)
			assert.NotEmpty(t, params.ErrMsg)
			return true, nil
		})

	runner.processJob(context.Background(), job)
}

func TestProcessJobTimeoutFailsTransiently(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := runnerMocks{
		queue:   mocks.NewMockQueueRepository(ctrl),
		results: mocks.NewMockResultRepository(ctrl),
		engine:  mocks.NewMockRulesEngine(ctrl),
	}
	runner, err := NewRunner(RunnerOptions{
		Engine:     m.engine,
		QueueRepo:  m.queue,
		ResultRepo: m.results,
		Lease:      30 * time.Second,
		JobTimeout: 20 * time.Millisecond,
		WorkerID:   "worker-test",
	})
	require.NoError(t, err)

	// The engine hangs past the job's execution budget; the runner must cut
	// it off and send the job down the retry path, not the dead-letter path.
	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ *model.EvaluateRequest) (*model.Evaluation, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	m.queue.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.FailJobParams) (bool, error) {
			assert.Equal(t, "job-1", params.ID)
			assert.False(t, params.Permanent)
			assert.Contains(t, params.ErrMsg, "execution budget")
			return true, nil
		})

	runner.processJob(context.Background(), queuedJob())
}

func TestRunnerRunProcessesUntilCancel(t *testing.T) {
	runner, m := newTestRunner(t)

	processed := make(chan struct{})

	first := m.queue.EXPECT().ClaimNext(gomock.Any(), gomock.Any()).
		Return(queuedJob(), nil)
	m.queue.EXPECT().ClaimNext(gomock.Any(), gomock.Any()).
		Return(nil, model.ErrNoJobsAvailable).AnyTimes().After(first)

	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(&model.Evaluation{
		Tree: model.SatisfactionNode{Type: "area"},
	}, nil)
	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).
		Return(&model.Result{ID: "res-1"}, nil)
	m.queue.EXPECT().Complete(gomock.Any(), "job-1").DoAndReturn(
		func(_ context.Context, _ string) (bool, error) {
			close(processed)
			return true, nil
		})

	// The default notifier polls the repository for wakeups; park it until
	// shutdown.
	m.queue.EXPECT().WaitForNotification(gomock.Any()).DoAndReturn(
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-processed:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after context cancellation")
	}
}

func TestRunnerRunStopsOnClaimError(t *testing.T) {
	runner, m := newTestRunner(t)

	claimErr := errors.New("connection refused")
	m.queue.EXPECT().ClaimNext(gomock.Any(), gomock.Any()).Return(nil, claimErr)
	m.queue.EXPECT().WaitForNotification(gomock.Any()).DoAndReturn(
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}).AnyTimes()

	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, claimErr)
}

func TestResolveWorkerID(t *testing.T) {
	assert.Equal(t, "worker-7", resolveWorkerID("worker-7"))
	assert.NotEmpty(t, resolveWorkerID(""))
	assert.NotEqual(t, resolveWorkerID(""), resolveWorkerID(""))
}

func TestResolveDefaults(t *testing.T) {
	assert.Equal(t, 30*time.Second, resolveLease(0))
	assert.Equal(t, time.Minute, resolveLease(time.Minute))
	assert.Equal(t, 10*time.Minute, resolveJobTimeout(0))
	assert.Equal(t, time.Minute, resolveJobTimeout(time.Minute))
	assert.Equal(t, 1, resolveWorkers(0))
	assert.Equal(t, 4, resolveWorkers(4))
}
