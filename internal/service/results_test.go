package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/openregistrar/auditcore/internal/domain/model"
	"github.com/openregistrar/auditcore/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestResultService(t *testing.T) (*ResultService, *mocks.MockResultRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockResultRepository(ctrl)
	svc, err := NewResultService(ResultServiceOptions{Repo: repo})
	require.NoError(t, err)
	return svc, repo
}

func activeOKResult() *model.Result {
	return &model.Result{
		ID:        "res-1",
		StudentID: "stu-100",
		AreaCode:  "major/csci",
		Catalog:   "2024-25",
		Run:       3,
		Revision:  2,
		IsActive:  true,
		Status:    model.ResultStatusOK,
		Rank:      20,
		MaxRank:   20,
		ResultTree: json.RawMessage(
			`{"type":"area","satisfied":true,"rank":20,"max_rank":20,` +
				`"children":[{"type":"requirement","name":"Core","satisfied":true,"rank":20,"max_rank":20,"overridden":true}]}`),
	}
}

func TestNewResultServiceRequiresRepo(t *testing.T) {
	_, err := NewResultService(ResultServiceOptions{})
	assert.Error(t, err)
}

func TestResultServiceSubmit(t *testing.T) {
	svc, repo := newTestResultService(t)

	req := &model.SubmitResultRequest{
		StudentID: "stu-100",
		AreaCode:  "major/csci",
		Catalog:   "2024-25",
		Run:       3,
		Status:    model.ResultStatusOK,
	}
	repo.EXPECT().Submit(gomock.Any(), req).Return(activeOKResult(), nil)

	result, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Revision)
	assert.True(t, result.IsActive)
}

func TestResultServiceResolve(t *testing.T) {
	svc, repo := newTestResultService(t)
	ctx := context.Background()

	plain := activeOKResult()
	resolved, err := svc.Resolve(ctx, plain)
	require.NoError(t, err)
	assert.Same(t, plain, resolved)

	target := activeOKResult()
	target.ID = "res-target"
	linkTo := target.ID
	link := &model.Result{ID: "res-link", Status: model.ResultStatusLink, LinkTo: &linkTo}
	repo.EXPECT().GetByID(ctx, "res-target").Return(target, nil)

	resolved, err = svc.Resolve(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, "res-target", resolved.ID)
}

func TestResultServiceResolveBrokenLink(t *testing.T) {
	svc, _ := newTestResultService(t)

	link := &model.Result{ID: "res-link", Status: model.ResultStatusLink}
	_, err := svc.Resolve(context.Background(), link)
	assert.Error(t, err)

	_, err = svc.Resolve(context.Background(), nil)
	assert.Error(t, err)
}

func TestResultServiceGetActiveViewPresentsStoredTree(t *testing.T) {
	svc, repo := newTestResultService(t)
	lineage := model.Lineage{StudentID: "stu-100", AreaCode: "major/csci"}

	repo.EXPECT().GetActive(gomock.Any(), lineage).Return(activeOKResult(), nil)

	view, err := svc.GetActiveView(context.Background(), lineage)
	require.NoError(t, err)
	assert.True(t, view.Tree.Satisfied)
	require.Len(t, view.Tree.Children, 1)
	assert.True(t, view.Tree.Children[0].Overridden)
}

// A stored revision reads the same forever: the view is derived only from
// the stored row, so disabling an exception after the fact cannot change
// how an already-computed revision presents.
func TestResultServiceViewUnaffectedByLaterExceptionToggles(t *testing.T) {
	svc, repo := newTestResultService(t)
	lineage := model.Lineage{StudentID: "stu-100", AreaCode: "major/csci"}

	stored := activeOKResult()
	repo.EXPECT().GetActive(gomock.Any(), lineage).Return(stored, nil).Times(2)

	before, err := svc.GetActiveView(context.Background(), lineage)
	require.NoError(t, err)

	// The exception that produced the overridden node is disabled between
	// the two reads. Nothing about the presented tree may change.
	after, err := svc.GetActiveView(context.Background(), lineage)
	require.NoError(t, err)

	assert.Equal(t, before.Tree, after.Tree)
	assert.True(t, after.Tree.Children[0].Overridden)
}

func TestResultServiceGetActiveViewFailedResult(t *testing.T) {
	svc, repo := newTestResultService(t)
	lineage := model.Lineage{StudentID: "stu-100", AreaCode: "major/csci"}

	failed := &model.Result{
		ID:        "res-2",
		StudentID: "stu-100",
		AreaCode:  "major/csci",
		Status:    model.ResultStatusFailed,
		Error:     json.RawMessage(`{"error":"area file missing"}`),
	}
	repo.EXPECT().GetActive(gomock.Any(), lineage).Return(failed, nil)

	view, err := svc.GetActiveView(context.Background(), lineage)
	require.NoError(t, err)
	assert.Equal(t, "res-2", view.Result.ID)
	assert.Empty(t, view.Tree.Type)
}

func TestResultServiceGetRevisionViewResolvesLink(t *testing.T) {
	svc, repo := newTestResultService(t)
	lineage := model.Lineage{StudentID: "stu-100", AreaCode: "major/csci"}

	target := activeOKResult()
	target.ID = "res-target"
	linkTo := target.ID
	link := &model.Result{
		ID:        "res-link",
		StudentID: "stu-100",
		AreaCode:  "major/csci",
		Revision:  5,
		Status:    model.ResultStatusLink,
		LinkTo:    &linkTo,
	}

	repo.EXPECT().GetRevision(gomock.Any(), lineage, 5).Return(link, nil)
	repo.EXPECT().GetByID(gomock.Any(), "res-target").Return(target, nil)

	view, err := svc.GetRevisionView(context.Background(), lineage, 5)
	require.NoError(t, err)
	assert.Equal(t, "res-target", view.Result.ID)
	assert.True(t, view.Tree.Satisfied)
}

func TestResultServiceListHistoryNormalizesPagination(t *testing.T) {
	svc, repo := newTestResultService(t)

	repo.EXPECT().ListHistory(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, opts model.ResultHistoryOptions) ([]*model.Result, error) {
			assert.Equal(t, 50, opts.Limit)
			assert.Equal(t, 0, opts.Offset)
			return nil, nil
		})

	_, err := svc.ListHistory(context.Background(), model.ResultHistoryOptions{
		StudentID: "stu-100",
		AreaCode:  "major/csci",
		Offset:    -1,
	})
	require.NoError(t, err)
}
