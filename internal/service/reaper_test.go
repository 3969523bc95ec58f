package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/openregistrar/auditcore/config"
	"github.com/openregistrar/auditcore/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockReaperRepo is a simple mock implementation for testing. Each operation
// pops the next count from its queue and returns 0 once exhausted, matching
// the batch-drain contract.
type mockReaperRepo struct {
	requeueCalls  int
	requeueCounts []int64
	requeueErr    error

	expiredJobsCalls  int
	expiredJobsCounts []int64
	expiredJobsErr    error

	expiredResultsCalls  int
	expiredResultsCounts []int64
	expiredResultsErr    error

	deadCalls  int
	deadCounts []int64
	deadErr    error
	deadParams []core.DeleteOldDeadJobsParams
}

func popCount(counts *[]int64) int64 {
	if len(*counts) == 0 {
		return 0
	}
	head := (*counts)[0]
	*counts = (*counts)[1:]
	return head
}

func (m *mockReaperRepo) RequeueExpiredLeases(_ context.Context, _ int) (int64, error) {
	m.requeueCalls++
	if m.requeueErr != nil {
		return 0, m.requeueErr
	}
	return popCount(&m.requeueCounts), nil
}

func (m *mockReaperRepo) DeleteExpiredJobs(_ context.Context, _ int) (int64, error) {
	m.expiredJobsCalls++
	if m.expiredJobsErr != nil {
		return 0, m.expiredJobsErr
	}
	return popCount(&m.expiredJobsCounts), nil
}

func (m *mockReaperRepo) DeleteExpiredResults(_ context.Context, _ int) (int64, error) {
	m.expiredResultsCalls++
	if m.expiredResultsErr != nil {
		return 0, m.expiredResultsErr
	}
	return popCount(&m.expiredResultsCounts), nil
}

func (m *mockReaperRepo) DeleteOldDeadJobs(_ context.Context, params core.DeleteOldDeadJobsParams) (int64, error) {
	m.deadCalls++
	m.deadParams = append(m.deadParams, params)
	if m.deadErr != nil {
		return 0, m.deadErr
	}
	return popCount(&m.deadCounts), nil
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:   time.Minute,
		DeadMaxAge: 24 * time.Hour,
		BatchSize:  100,
	}
}

func newTestReaperService(t *testing.T, repo *mockReaperRepo) *ReaperService {
	t.Helper()
	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:   repo,
		Config: testReaperConfig(),
		Logger: slog.Default(),
	})
	require.NoError(t, err)
	return svc
}

func TestNewReaperServiceRequiresRepo(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{Config: testReaperConfig()})
	assert.Error(t, err)
}

func TestReaperRunCleanupRunsAllSteps(t *testing.T) {
	repo := &mockReaperRepo{
		requeueCounts:        []int64{2},
		expiredJobsCounts:    []int64{1},
		expiredResultsCounts: []int64{4},
		deadCounts:           []int64{3},
	}
	svc := newTestReaperService(t, repo)

	err := svc.runCleanup(context.Background())
	require.NoError(t, err)

	// Each step drains until a zero-count batch: one productive call plus
	// one empty call.
	assert.Equal(t, 2, repo.requeueCalls)
	assert.Equal(t, 2, repo.expiredJobsCalls)
	assert.Equal(t, 2, repo.expiredResultsCalls)
	assert.Equal(t, 2, repo.deadCalls)
}

func TestReaperRunCleanupDrainsBatches(t *testing.T) {
	repo := &mockReaperRepo{
		requeueCounts: []int64{100, 100, 7},
	}
	svc := newTestReaperService(t, repo)

	err := svc.runCleanup(context.Background())
	require.NoError(t, err)

	// Three productive batches plus the terminating empty batch.
	assert.Equal(t, 4, repo.requeueCalls)
}

func TestReaperRunCleanupPassesDeadJobParams(t *testing.T) {
	repo := &mockReaperRepo{}
	svc := newTestReaperService(t, repo)

	err := svc.runCleanup(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, repo.deadParams)
	assert.Equal(t, 24*time.Hour, repo.deadParams[0].MaxAge)
	assert.Equal(t, 100, repo.deadParams[0].BatchSize)
}

func TestReaperRunCleanupContinuesAfterStepFailure(t *testing.T) {
	repo := &mockReaperRepo{
		requeueErr: errors.New("deadlock detected"),
		deadCounts: []int64{5},
	}
	svc := newTestReaperService(t, repo)

	err := svc.runCleanup(context.Background())
	require.Error(t, err)

	// Later steps still ran despite the earlier failure.
	assert.Positive(t, repo.expiredJobsCalls)
	assert.Positive(t, repo.expiredResultsCalls)
	assert.Positive(t, repo.deadCalls)
}

func TestReaperRunCleanupCanceledContext(t *testing.T) {
	repo := &mockReaperRepo{
		requeueErr:        context.Canceled,
		expiredJobsErr:    context.Canceled,
		expiredResultsErr: context.Canceled,
		deadErr:           context.Canceled,
	}
	svc := newTestReaperService(t, repo)

	err := svc.runCleanup(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReaperRunStopsOnContextCancel(t *testing.T) {
	repo := &mockReaperRepo{}
	svc := newTestReaperService(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop after context cancellation")
	}
}

func TestSuppressContextCancellation(t *testing.T) {
	assert.NoError(t, suppressContextCancellation(context.Canceled))
	assert.NoError(t, suppressContextCancellation(context.DeadlineExceeded))
	assert.NoError(t, suppressContextCancellation(nil))

	err := errors.New("db down")
	assert.Equal(t, err, suppressContextCancellation(err))
}
