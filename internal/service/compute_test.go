package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/domain/clausehash"
	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
	"github.com/openregistrar/auditcore/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type computeServiceMocks struct {
	engine  *mocks.MockRulesEngine
	results *mocks.MockResultRepository
	memos   *mocks.MockMemoRepository
}

func newTestComputeService(t *testing.T) (*ComputeService, computeServiceMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := computeServiceMocks{
		engine:  mocks.NewMockRulesEngine(ctrl),
		results: mocks.NewMockResultRepository(ctrl),
		memos:   mocks.NewMockMemoRepository(ctrl),
	}
	svc, err := NewComputeService(ComputeServiceOptions{
		Engine:  m.engine,
		Results: m.results,
		Memos:   m.memos,
	})
	require.NoError(t, err)
	return svc, m
}

func newTestComputeServiceWithExceptions(t *testing.T) (*ComputeService, computeServiceMocks, *mocks.MockExceptionRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := computeServiceMocks{
		engine:  mocks.NewMockRulesEngine(ctrl),
		results: mocks.NewMockResultRepository(ctrl),
		memos:   mocks.NewMockMemoRepository(ctrl),
	}
	exceptions := mocks.NewMockExceptionRepository(ctrl)
	svc, err := NewComputeService(ComputeServiceOptions{
		Engine:     m.engine,
		Results:    m.results,
		Memos:      m.memos,
		Exceptions: exceptions,
	})
	require.NoError(t, err)
	return svc, m, exceptions
}

func snapshotHashOf(t *testing.T, input json.RawMessage) string {
	t.Helper()
	hash, err := clausehash.Sum(input)
	require.NoError(t, err)
	return hash
}

func claimedJob() *model.Job {
	return &model.Job{
		ID:        "job-1",
		StudentID: "stu-100",
		AreaCode:  "major/csci",
		Catalog:   "2024-25",
		Run:       3,
		Status:    model.JobStatusClaimed,
		InputData: json.RawMessage(`{"courses":[{"clbid":"c-1"}]}`),
	}
}

func TestNewComputeServiceValidation(t *testing.T) {
	ctrl := gomock.NewController(t)

	_, err := NewComputeService(ComputeServiceOptions{
		Results: mocks.NewMockResultRepository(ctrl),
	})
	assert.Error(t, err)

	_, err = NewComputeService(ComputeServiceOptions{
		Engine: mocks.NewMockRulesEngine(ctrl),
	})
	assert.Error(t, err)
}

func TestComputeProcessRequiresJob(t *testing.T) {
	svc, _ := newTestComputeService(t)
	_, err := svc.Process(context.Background(), nil)
	assert.Error(t, err)
}

func TestComputeProcessEvaluation(t *testing.T) {
	svc, m := newTestComputeService(t)
	job := claimedJob()

	m.engine.EXPECT().Evaluate(gomock.Any(), &model.EvaluateRequest{
		AreaCode: "major/csci",
		Catalog:  "2024-25",
		Student:  job.InputData,
	}).Return(&model.Evaluation{
		Tree:       model.SatisfactionNode{Type: "area", Satisfied: true, Rank: 20, MaxRank: 20},
		Rank:       20,
		MaxRank:    20,
		GPA:        3.4,
		Iterations: 12,
	}, nil)

	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
			assert.Equal(t, model.ResultStatusOK, req.Status)
			assert.Equal(t, 3, req.Run)
			assert.InDelta(t, 20.0, req.Rank, 0.001)
			assert.InDelta(t, 3.4, req.GPA, 0.001)
			assert.Equal(t, 12, req.Iterations)

			var tree model.SatisfactionNode
			require.NoError(t, json.Unmarshal(req.ResultTree, &tree))
			assert.True(t, tree.Satisfied)
			return &model.Result{ID: "res-1", Revision: 4, Status: req.Status}, nil
		})

	result, err := svc.Process(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "res-1", result.ID)
}

func TestComputeProcessBakesEnabledExceptionsIntoStoredTree(t *testing.T) {
	svc, m, exceptions := newTestComputeServiceWithExceptions(t)
	job := claimedJob()

	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(&model.Evaluation{
		Tree: model.SatisfactionNode{
			Type:    "area",
			MaxRank: 20,
			Children: []model.SatisfactionNode{
				{Type: "requirement", Name: "Core", Rank: 10, MaxRank: 20},
			},
		},
		Rank:    10,
		MaxRank: 20,
		GPA:     3.4,
	}, nil)

	exceptions.EXPECT().ListForLineage(gomock.Any(), core.ExceptionListParams{
		StudentID:   "stu-100",
		AreaCode:    "major/csci",
		EnabledOnly: true,
	}).Return([]*model.Exception{{
		ID:        "exc-1",
		StudentID: "stu-100",
		AreaCode:  "major/csci",
		Type:      model.ExceptionForcedPass,
		Path:      []string{"$", "%Core"},
		IsEnabled: true,
	}}, nil)

	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
			// The stored tree already reflects the forced pass; readers
			// never re-apply anything.
			var tree model.SatisfactionNode
			require.NoError(t, json.Unmarshal(req.ResultTree, &tree))
			assert.True(t, tree.Satisfied)
			require.Len(t, tree.Children, 1)
			assert.True(t, tree.Children[0].Overridden)
			assert.True(t, tree.Children[0].Satisfied)

			assert.InDelta(t, 20.0, req.Rank, 0.001)
			assert.InDelta(t, 20.0, req.MaxRank, 0.001)
			return &model.Result{ID: "res-1", Status: req.Status}, nil
		})

	_, err := svc.Process(context.Background(), job)
	require.NoError(t, err)
}

func TestComputeProcessExceptionListFailureStoresNothing(t *testing.T) {
	svc, m, exceptions := newTestComputeServiceWithExceptions(t)
	job := claimedJob()

	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(&model.Evaluation{
		Tree: model.SatisfactionNode{Type: "area"},
	}, nil)
	exceptions.EXPECT().ListForLineage(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.Transient("exceptions unavailable"))

	_, err := svc.Process(context.Background(), job)
	require.Error(t, err)
	assert.False(t, apperrors.IsPermanent(err))
}

func TestComputeProcessMemoHit(t *testing.T) {
	svc, m := newTestComputeService(t)
	job := claimedJob()

	// Same clause, different key order: the stored memo must still match
	// after canonicalisation.
	clause := json.RawMessage(`{"count":2,"subject":"CSCI"}`)
	stored := json.RawMessage(`{"subject":"CSCI","count":2}`)
	hash, err := clausehash.Sum(clause)
	require.NoError(t, err)

	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(&model.Evaluation{
		Tree:           model.SatisfactionNode{Type: "area"},
		PendingClauses: []model.PendingClause{{Clause: clause}},
	}, nil)

	snapshot := snapshotHashOf(t, job.InputData)
	m.memos.EXPECT().Lookup(gomock.Any(), core.MemoLookupParams{
		StudentID:    "stu-100",
		ClauseHash:   hash,
		SnapshotHash: snapshot,
	}).Return(&model.MemoEntry{
		ClauseHash:   hash,
		SnapshotHash: snapshot,
		Clause:       stored,
		CLBIDs:       []string{"c-1", "c-2"},
	}, nil)

	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
			require.Len(t, req.Memos, 1)
			assert.Equal(t, hash, req.Memos[0].ClauseHash)
			assert.Equal(t, snapshot, req.Memos[0].SnapshotHash)
			assert.Equal(t, []string{"c-1", "c-2"}, req.Memos[0].CLBIDs)
			return &model.Result{ID: "res-1"}, nil
		})

	_, err = svc.Process(context.Background(), job)
	require.NoError(t, err)
}

func TestComputeProcessMemoMiss(t *testing.T) {
	svc, m := newTestComputeService(t)
	job := claimedJob()

	clause := json.RawMessage(`{"subject":"CSCI"}`)
	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(&model.Evaluation{
		Tree:           model.SatisfactionNode{Type: "area"},
		PendingClauses: []model.PendingClause{{Clause: clause}},
	}, nil)

	m.memos.EXPECT().Lookup(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.NotFound("memo not found"))

	m.engine.EXPECT().Candidates(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.CandidateRequest) ([]string, error) {
			assert.Equal(t, "2024-25", req.Catalog)
			return []string{"c-9"}, nil
		})

	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
			require.Len(t, req.Memos, 1)
			assert.Equal(t, []string{"c-9"}, req.Memos[0].CLBIDs)
			return &model.Result{ID: "res-1"}, nil
		})

	_, err := svc.Process(context.Background(), job)
	require.NoError(t, err)
}

func TestComputeProcessMemoScopedToCourseSnapshot(t *testing.T) {
	svc, m := newTestComputeService(t)

	// The student dropped a course since the memo was written. The lookup
	// carries the new snapshot's hash, so the stale memo never matches and
	// candidates are recomputed against the current courses.
	job := claimedJob()
	job.InputData = json.RawMessage(`{"courses":[]}`)
	snapshot := snapshotHashOf(t, job.InputData)

	clause := json.RawMessage(`{"subject":"CSCI"}`)
	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(&model.Evaluation{
		Tree:           model.SatisfactionNode{Type: "area"},
		PendingClauses: []model.PendingClause{{Clause: clause}},
	}, nil)

	m.memos.EXPECT().Lookup(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.MemoLookupParams) (*model.MemoEntry, error) {
			assert.Equal(t, snapshot, params.SnapshotHash)
			return nil, apperrors.NotFound("memo not found")
		})

	m.engine.EXPECT().Candidates(gomock.Any(), gomock.Any()).Return(nil, nil)

	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
			require.Len(t, req.Memos, 1)
			assert.Equal(t, snapshot, req.Memos[0].SnapshotHash)
			assert.Empty(t, req.Memos[0].CLBIDs)
			return &model.Result{ID: "res-1"}, nil
		})

	_, err := svc.Process(context.Background(), job)
	require.NoError(t, err)
}

func TestComputeProcessMemoClauseMismatchRecomputes(t *testing.T) {
	svc, m := newTestComputeService(t)
	job := claimedJob()

	clause := json.RawMessage(`{"subject":"CSCI"}`)
	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(&model.Evaluation{
		Tree:           model.SatisfactionNode{Type: "area"},
		PendingClauses: []model.PendingClause{{Clause: clause}},
	}, nil)

	// Hash collision scenario: the stored clause differs, so its clbids
	// must not be reused.
	m.memos.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(&model.MemoEntry{
		Clause: json.RawMessage(`{"subject":"MATH"}`),
		CLBIDs: []string{"c-stale"},
	}, nil)

	m.engine.EXPECT().Candidates(gomock.Any(), gomock.Any()).Return([]string{"c-fresh"}, nil)

	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
			require.Len(t, req.Memos, 1)
			assert.Equal(t, []string{"c-fresh"}, req.Memos[0].CLBIDs)
			return &model.Result{ID: "res-1"}, nil
		})

	_, err := svc.Process(context.Background(), job)
	require.NoError(t, err)
}

func TestComputeProcessDeduplicatesPendingClauses(t *testing.T) {
	svc, m := newTestComputeService(t)
	job := claimedJob()

	clause := json.RawMessage(`{"subject":"CSCI"}`)
	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(&model.Evaluation{
		Tree: model.SatisfactionNode{Type: "area"},
		PendingClauses: []model.PendingClause{
			{Clause: clause},
			{Clause: json.RawMessage(` {"subject": "CSCI"} `)},
		},
	}, nil)

	m.memos.EXPECT().Lookup(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.NotFound("memo not found")).Times(1)
	m.engine.EXPECT().Candidates(gomock.Any(), gomock.Any()).
		Return([]string{"c-1"}, nil).Times(1)

	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
			assert.Len(t, req.Memos, 1)
			return &model.Result{ID: "res-1"}, nil
		})

	_, err := svc.Process(context.Background(), job)
	require.NoError(t, err)
}

func TestComputeProcessPermanentFailureStoresFailedResult(t *testing.T) {
	svc, m := newTestComputeService(t)
	job := claimedJob()

	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.Permanent("area file does not parse"))

	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
			assert.Equal(t, model.ResultStatusFailed, req.Status)

			var detail map[string]string
			require.NoError(t, json.Unmarshal(req.Error, &detail))
			assert.Contains(t, detail["error"], "area file does not parse")
			return &model.Result{ID: "res-failed", Status: req.Status}, nil
		})

	result, err := svc.Process(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, model.ResultStatusFailed, result.Status)
}

func TestComputeProcessTransientFailureStoresNothing(t *testing.T) {
	svc, m := newTestComputeService(t)
	job := claimedJob()

	m.engine.EXPECT().Evaluate(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.Transient("engine unavailable"))

	_, err := svc.Process(context.Background(), job)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestComputeProcessLinkJob(t *testing.T) {
	svc, m := newTestComputeService(t)

	run := 2
	job := claimedJob()
	job.LinkOnly = true
	job.LinkRun = &run
	job.InputData = nil

	target := &model.Result{
		ID:      "res-target",
		Run:     2,
		Status:  model.ResultStatusOK,
		Rank:    15,
		MaxRank: 20,
		GPA:     3.1,
	}
	m.results.EXPECT().GetByRun(gomock.Any(), job.Lineage(), 2).Return(target, nil)

	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
			assert.Equal(t, model.ResultStatusLink, req.Status)
			require.NotNil(t, req.LinkTo)
			assert.Equal(t, "res-target", *req.LinkTo)
			assert.InDelta(t, 15.0, req.Rank, 0.001)
			return &model.Result{ID: "res-link", Status: req.Status}, nil
		})

	result, err := svc.Process(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "res-link", result.ID)
}

func TestComputeProcessLinkJobMissingTargetStoresFailedResult(t *testing.T) {
	svc, m := newTestComputeService(t)

	run := 9
	job := claimedJob()
	job.LinkOnly = true
	job.LinkRun = &run

	m.results.EXPECT().GetByRun(gomock.Any(), job.Lineage(), 9).
		Return(nil, apperrors.NotFound("no result for run"))

	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
			assert.Equal(t, model.ResultStatusFailed, req.Status)

			var detail map[string]string
			require.NoError(t, json.Unmarshal(req.Error, &detail))
			assert.Contains(t, detail["error"], "run 9 not found")
			return &model.Result{ID: "res-failed", Status: req.Status}, nil
		})

	result, err := svc.Process(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, model.ResultStatusFailed, result.Status)
}

func TestComputeProcessLinkJobWithoutRunStoresFailedResult(t *testing.T) {
	svc, m := newTestComputeService(t)

	job := claimedJob()
	job.LinkOnly = true

	m.results.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
			assert.Equal(t, model.ResultStatusFailed, req.Status)
			return &model.Result{ID: "res-failed", Status: req.Status}, nil
		})

	result, err := svc.Process(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, model.ResultStatusFailed, result.Status)
}
