package service

import (
	"context"
	"testing"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
	"github.com/openregistrar/auditcore/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestExceptionService(t *testing.T) (*ExceptionService, *mocks.MockExceptionRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExceptionRepository(ctrl)
	svc, err := NewExceptionService(ExceptionServiceOptions{Repo: repo})
	require.NoError(t, err)
	return svc, repo
}

func TestNewExceptionServiceRequiresRepo(t *testing.T) {
	_, err := NewExceptionService(ExceptionServiceOptions{})
	assert.Error(t, err)
}

func TestExceptionServiceCreate(t *testing.T) {
	svc, repo := newTestExceptionService(t)

	req := &model.CreateExceptionRequest{
		StudentID: "stu-100",
		AreaCode:  "major/csci",
		Path:      []string{"$", "%Core"},
		Type:      model.ExceptionForcedPass,
		Author:    "advisor@example.edu",
	}
	repo.EXPECT().Create(gomock.Any(), req).Return(&model.Exception{
		ID:        "exc-1",
		StudentID: "stu-100",
		AreaCode:  "major/csci",
		Type:      model.ExceptionForcedPass,
		IsEnabled: true,
		Author:    "advisor@example.edu",
	}, nil)

	exc, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "exc-1", exc.ID)
	assert.True(t, exc.IsEnabled)
}

func TestExceptionServiceGetByIDNotFound(t *testing.T) {
	svc, repo := newTestExceptionService(t)

	repo.EXPECT().GetByID(gomock.Any(), "exc-missing").
		Return(nil, apperrors.NotFound("exception not found"))

	_, err := svc.GetByID(context.Background(), "exc-missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestExceptionServiceUpdate(t *testing.T) {
	svc, repo := newTestExceptionService(t)

	credits := 4.0
	req := model.UpdateExceptionRequest{OverrideCredits: &credits}
	// No audit emitter is wired, so no before image is loaded.
	repo.EXPECT().Update(gomock.Any(), "exc-1", req).Return(&model.Exception{
		ID:              "exc-1",
		Type:            model.ExceptionOverrideCredits,
		OverrideCredits: &credits,
		IsEnabled:       true,
	}, nil)

	exc, err := svc.Update(context.Background(), "exc-1", req)
	require.NoError(t, err)
	require.NotNil(t, exc.OverrideCredits)
	assert.InDelta(t, 4.0, *exc.OverrideCredits, 0.001)
}

func TestExceptionServiceSetEnabled(t *testing.T) {
	svc, repo := newTestExceptionService(t)

	repo.EXPECT().SetEnabled(gomock.Any(), "exc-1", false).Return(&model.Exception{
		ID:        "exc-1",
		IsEnabled: false,
	}, nil)

	exc, err := svc.SetEnabled(context.Background(), "exc-1", false)
	require.NoError(t, err)
	assert.False(t, exc.IsEnabled)
}

func TestExceptionServiceListForLineage(t *testing.T) {
	svc, repo := newTestExceptionService(t)

	params := core.ExceptionListParams{
		StudentID:   "stu-100",
		AreaCode:    "major/csci",
		EnabledOnly: true,
	}
	repo.EXPECT().ListForLineage(gomock.Any(), params).Return([]*model.Exception{
		{ID: "exc-1", IsEnabled: true},
		{ID: "exc-2", IsEnabled: true},
	}, nil)

	exceptions, err := svc.ListForLineage(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, exceptions, 2)
}
