package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testLineage = model.Lineage{StudentID: "stu-100", AreaCode: "major/csci"}

func okResult() *model.Result {
	return &model.Result{
		ID:         "res-1",
		StudentID:  "stu-100",
		AreaCode:   "major/csci",
		Catalog:    "2024-25",
		Run:        7,
		Revision:   2,
		IsActive:   true,
		Status:     model.ResultStatusOK,
		Rank:       12,
		MaxRank:    16,
		ResultTree: json.RawMessage(`{"type":"area","satisfied":false,"rank":12,"max_rank":16}`),
	}
}

func TestResultHandlersGetActive(t *testing.T) {
	t.Run("serves the stored tree", func(t *testing.T) {
		router, rm := newTestRouter(t)
		rm.results.EXPECT().GetActive(gomock.Any(), testLineage).Return(okResult(), nil)

		rec := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/results/stu-100/major%2Fcsci/active", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var view struct {
			Result model.Result           `json:"result"`
			Tree   model.SatisfactionNode `json:"tree"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.Equal(t, "res-1", view.Result.ID)
		assert.Equal(t, "area", view.Tree.Type)
	})

	t.Run("resolves link results", func(t *testing.T) {
		router, rm := newTestRouter(t)
		target := "res-target"
		link := &model.Result{
			ID:        "res-link",
			StudentID: "stu-100",
			AreaCode:  "major/csci",
			Status:    model.ResultStatusLink,
			LinkTo:    &target,
		}
		rm.results.EXPECT().GetActive(gomock.Any(), testLineage).Return(link, nil)
		rm.results.EXPECT().GetByID(gomock.Any(), "res-target").Return(okResult(), nil)

		rec := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/results/stu-100/major%2Fcsci/active", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var view struct {
			Result model.Result `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.Equal(t, "res-1", view.Result.ID)
	})

	t.Run("failed results carry no tree", func(t *testing.T) {
		router, rm := newTestRouter(t)
		failed := &model.Result{
			ID:        "res-2",
			StudentID: "stu-100",
			AreaCode:  "major/csci",
			Status:    model.ResultStatusFailed,
			Error:     json.RawMessage(`{"message":"area spec not found"}`),
		}
		rm.results.EXPECT().GetActive(gomock.Any(), testLineage).Return(failed, nil)

		rec := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/results/stu-100/major%2Fcsci/active", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no active result", func(t *testing.T) {
		router, rm := newTestRouter(t)
		rm.results.EXPECT().
			GetActive(gomock.Any(), testLineage).
			Return(nil, apperrors.NotFound("no active result"))

		rec := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/results/stu-100/major%2Fcsci/active", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeError(t, rec).Error)
	})
}

func TestResultHandlersGetRevision(t *testing.T) {
	t.Run("fetches one revision", func(t *testing.T) {
		router, rm := newTestRouter(t)
		rm.results.EXPECT().GetRevision(gomock.Any(), testLineage, 2).Return(okResult(), nil)

		rec := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/results/stu-100/major%2Fcsci/2", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects non-integer revision", func(t *testing.T) {
		router, _ := newTestRouter(t)

		rec := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/results/stu-100/major%2Fcsci/two", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_path", decodeError(t, rec).Error)
	})
}

func TestResultHandlersHistory(t *testing.T) {
	router, rm := newTestRouter(t)
	rm.results.EXPECT().
		ListHistory(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, opts model.ResultHistoryOptions) ([]*model.Result, error) {
			assert.Equal(t, "stu-100", opts.StudentID)
			require.NotNil(t, opts.Status)
			assert.Equal(t, model.ResultStatusOK, *opts.Status)
			return []*model.Result{okResult()}, nil
		})

	target := "/api/results/stu-100/major%2Fcsci/history?status=ok"
	rec := doRequest(router, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var results []*model.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Len(t, results, 1)
}

func TestResultHandlersGetByRun(t *testing.T) {
	t.Run("requires lineage query params", func(t *testing.T) {
		router, _ := newTestRouter(t)

		rec := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/results/run/7", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("fetches by run number", func(t *testing.T) {
		router, rm := newTestRouter(t)
		rm.results.EXPECT().GetByRun(gomock.Any(), testLineage, 7).Return(okResult(), nil)

		target := "/api/results/run/7?student_id=stu-100&area_code=major%2Fcsci"
		rec := doRequest(router, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestResultHandlersListMemos(t *testing.T) {
	router, rm := newTestRouter(t)
	rm.memos.EXPECT().
		ListByResult(gomock.Any(), "res-1").
		Return([]*model.MemoEntry{{ResultID: "res-1", ClauseHash: "abc123", CLBIDs: []string{"c1", "c2"}}}, nil)

	rec := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/results/id/res-1/memos", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var memos []*model.MemoEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &memos))
	require.Len(t, memos, 1)
	assert.Equal(t, []string{"c1", "c2"}, memos[0].CLBIDs)
}

func TestResultHandlersGetByID(t *testing.T) {
	router, rm := newTestRouter(t)
	rm.results.EXPECT().
		GetByID(gomock.Any(), "res-9").
		Return(nil, apperrors.NotFound("result not found"))

	rec := doRequest(router, httptest.NewRequest(http.MethodGet, "/api/results/id/res-9", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
