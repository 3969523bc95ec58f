package data

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
	"github.com/openregistrar/auditcore/internal/testutil"
)

func TestBackoffDelaySchedule(t *testing.T) {
	base := 30 * time.Second
	ceil := 900 * time.Second

	for attempts := 0; attempts <= 6; attempts++ {
		expected := base << attempts
		if expected > ceil {
			expected = ceil
		}
		lower := time.Duration(float64(expected) * 0.75)
		upper := time.Duration(float64(expected) * 1.25)

		for i := 0; i < 20; i++ {
			delay := backoffDelay(base, ceil, attempts)
			assert.GreaterOrEqual(t, delay, lower, "attempts=%d", attempts)
			assert.LessOrEqual(t, delay, upper, "attempts=%d", attempts)
		}
	}
}

func TestBackoffDelayDefaultsAndCeilFloor(t *testing.T) {
	// A zero base falls back to the default, and a ceiling below the base is
	// raised to it so the delay never collapses to zero.
	delay := backoffDelay(0, 0, 0)
	assert.GreaterOrEqual(t, delay, time.Duration(float64(30*time.Second)*0.75))
	assert.LessOrEqual(t, delay, time.Duration(float64(30*time.Second)*1.25))

	delay = backoffDelay(time.Minute, time.Second, 0)
	assert.GreaterOrEqual(t, delay, time.Duration(float64(time.Minute)*0.75))
}

func enqueueRequest(studentID, areaCode string, priority int) *model.EnqueueRequest {
	p := priority
	return &model.EnqueueRequest{
		StudentID: studentID,
		AreaCode:  areaCode,
		Catalog:   "2024-25",
		Priority:  &p,
		InputData: json.RawMessage(`{"courses":[{"clbid":"c-1"}]}`),
	}
}

func TestQueueRepoEnqueueCoalescesPendingRow(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewQueueRepo(db, RepoConfig{})
	ctx := context.Background()

	first, err := repo.Enqueue(ctx, enqueueRequest("stu-100", "major/csci", 60))
	require.NoError(t, err)

	second := enqueueRequest("stu-100", "major/csci", 40)
	second.InputData = json.RawMessage(`{"courses":[{"clbid":"c-2"}]}`)
	coalesced, err := repo.Enqueue(ctx, second)
	require.NoError(t, err)

	// Same pending row: the run survives, the most urgent priority wins, and
	// the newest input replaces the old one.
	assert.Equal(t, first.ID, coalesced.ID)
	assert.Equal(t, first.Run, coalesced.Run)
	assert.Equal(t, 40, coalesced.Priority)
	assert.JSONEq(t, `{"courses":[{"clbid":"c-2"}]}`, string(coalesced.InputData))

	var pending int
	require.NoError(t, db.QueryRowContext(ctx, `
		SELECT count(*) FROM audit_queue
		WHERE student_id = 'stu-100' AND area_code = 'major/csci' AND status = 'pending'
	`).Scan(&pending))
	assert.Equal(t, 1, pending)
}

func TestQueueRepoClaimOrdersByPriority(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewQueueRepo(db, RepoConfig{})
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, enqueueRequest("stu-100", "major/csci", 90))
	require.NoError(t, err)
	urgent, err := repo.Enqueue(ctx, enqueueRequest("stu-200", "major/math", 10))
	require.NoError(t, err)

	claimed, err := repo.ClaimNext(ctx, core.ClaimParams{WorkerID: "w-1", LeaseSeconds: 30})
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, claimed.ID)
	assert.Equal(t, model.JobStatusClaimed, claimed.Status)
	require.NotNil(t, claimed.ClaimedBy)
	assert.Equal(t, "w-1", *claimed.ClaimedBy)
}

func TestQueueRepoExpiredJobsNeverClaimable(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewQueueRepo(db, RepoConfig{})
	ctx := context.Background()

	req := enqueueRequest("stu-100", "major/csci", 50)
	past := time.Now().Add(-time.Minute)
	req.ExpiresAt = &past
	_, err := repo.Enqueue(ctx, req)
	require.NoError(t, err)

	_, err = repo.ClaimNext(ctx, core.ClaimParams{WorkerID: "w-1", LeaseSeconds: 30})
	assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
}

func TestQueueRepoFailTransientRequeuesWithBackoff(t *testing.T) {
	db := testutil.OpenTestDB(t)
	clock := NewFixedTimeProvider(time.Now().UTC())
	repo := NewQueueRepo(db, RepoConfig{
		RetryDelaySeconds:    60,
		RetryMaxDelaySeconds: 600,
		TimeProvider:         clock,
	})
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, enqueueRequest("stu-100", "major/csci", 50))
	require.NoError(t, err)
	claimed, err := repo.ClaimNext(ctx, core.ClaimParams{WorkerID: "w-1", LeaseSeconds: 30})
	require.NoError(t, err)

	failed, err := repo.Fail(ctx, core.FailJobParams{ID: claimed.ID, ErrMsg: "engine unavailable"})
	require.NoError(t, err)
	assert.True(t, failed)

	job, err := repo.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, 1, job.AttemptCount)
	assert.Nil(t, job.ClaimedBy)
	require.NotNil(t, job.LastError)
	assert.Equal(t, "engine unavailable", *job.LastError)

	// First retry waits the jittered base delay, 60s within [75%, 125%].
	require.NotNil(t, job.NotBefore)
	wait := job.NotBefore.Sub(clock.Now())
	assert.GreaterOrEqual(t, wait, 45*time.Second)
	assert.LessOrEqual(t, wait, 75*time.Second)

	// Still pending, but not deliverable until the backoff elapses.
	_, err = repo.ClaimNext(ctx, core.ClaimParams{WorkerID: "w-2", LeaseSeconds: 30})
	assert.ErrorIs(t, err, model.ErrNoJobsAvailable)

	clock.Advance(80 * time.Second)
	reclaimed, err := repo.ClaimNext(ctx, core.ClaimParams{WorkerID: "w-2", LeaseSeconds: 30})
	require.NoError(t, err)
	assert.Equal(t, claimed.ID, reclaimed.ID)
}

func TestQueueRepoFailPermanentDeadLetters(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewQueueRepo(db, RepoConfig{})
	ctx := context.Background()

	_, err := repo.Enqueue(ctx, enqueueRequest("stu-100", "major/csci", 50))
	require.NoError(t, err)
	claimed, err := repo.ClaimNext(ctx, core.ClaimParams{WorkerID: "w-1", LeaseSeconds: 30})
	require.NoError(t, err)

	failed, err := repo.Fail(ctx, core.FailJobParams{
		ID:        claimed.ID,
		ErrMsg:    "area file does not parse",
		Permanent: true,
	})
	require.NoError(t, err)
	assert.True(t, failed)

	job, err := repo.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDead, job.Status)
	assert.Equal(t, 1, job.AttemptCount)
	assert.Nil(t, job.LeaseExpiresAt)
}

func TestQueueRepoFailExhaustedAttemptsDeadLetters(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewQueueRepo(db, RepoConfig{})
	ctx := context.Background()

	job, err := repo.Enqueue(ctx, enqueueRequest("stu-100", "major/csci", 50))
	require.NoError(t, err)

	// Two attempts already burned; the next transient failure exhausts the
	// budget of three and the job parks as dead instead of retrying.
	_, err = db.ExecContext(ctx, `
		UPDATE audit_queue
		SET status = 'claimed', claimed_by = 'w-1', attempt_count = 2,
		    lease_expires_at = now() + interval '30 seconds'
		WHERE id = $1
	`, job.ID)
	require.NoError(t, err)

	failed, err := repo.Fail(ctx, core.FailJobParams{ID: job.ID, ErrMsg: "engine unavailable"})
	require.NoError(t, err)
	assert.True(t, failed)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDead, got.Status)
	assert.Equal(t, 3, got.AttemptCount)
}

func TestQueueRepoBlockRefusesEnqueue(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewQueueRepo(db, RepoConfig{})
	ctx := context.Background()

	lineage := model.Lineage{StudentID: "stu-100", AreaCode: "major/csci"}
	require.NoError(t, repo.Block(ctx, lineage, "registrar hold"))

	_, err := repo.Enqueue(ctx, enqueueRequest("stu-100", "major/csci", 50))
	assert.True(t, apperrors.IsQueueBlocked(err))

	unblocked, err := repo.Unblock(ctx, lineage)
	require.NoError(t, err)
	assert.True(t, unblocked)

	_, err = repo.Enqueue(ctx, enqueueRequest("stu-100", "major/csci", 50))
	assert.NoError(t, err)
}
