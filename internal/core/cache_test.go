package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
)

//go:generate mockgen -source=cache.go -destination=cache_mock.go -package=core

func sampleMemo() *model.MemoEntry {
	return &model.MemoEntry{
		ResultID:   "result-1",
		ClauseHash: "abc123",
		Clause:     json.RawMessage(`{"op":"all"}`),
		CLBIDs:     []string{"clbid-1", "clbid-2"},
	}
}

func TestMemoCacheService_Lookup(t *testing.T) {
	t.Parallel()

	params := MemoLookupParams{StudentID: "stu-1", ClauseHash: "abc123"}
	key := "memo:stu-1:abc123"

	tests := []struct {
		name    string
		setup   func(*MockCacheRepository, *MockMemoRepository)
		want    *model.MemoEntry
		wantErr bool
	}{
		{
			name: "cache hit skips database",
			setup: func(cache *MockCacheRepository, memos *MockMemoRepository) {
				encoded, _ := json.Marshal(sampleMemo())
				cache.EXPECT().Get(gomock.Any(), key).Return(encoded, nil)
			},
			want: sampleMemo(),
		},
		{
			name: "cache miss fills from database",
			setup: func(cache *MockCacheRepository, memos *MockMemoRepository) {
				cache.EXPECT().Get(gomock.Any(), key).Return(nil, nil)
				memos.EXPECT().Lookup(gomock.Any(), params).Return(sampleMemo(), nil)
				encoded, _ := json.Marshal(sampleMemo())
				cache.EXPECT().
					SetIfNotExists(gomock.Any(), key, encoded, 6*time.Hour).
					Return(true, nil)
			},
			want: sampleMemo(),
		},
		{
			name: "corrupt cache entry deleted and refetched",
			setup: func(cache *MockCacheRepository, memos *MockMemoRepository) {
				cache.EXPECT().Get(gomock.Any(), key).Return([]byte("{not json"), nil)
				cache.EXPECT().Delete(gomock.Any(), key).Return(true, nil)
				memos.EXPECT().Lookup(gomock.Any(), params).Return(sampleMemo(), nil)
				encoded, _ := json.Marshal(sampleMemo())
				cache.EXPECT().
					SetIfNotExists(gomock.Any(), key, encoded, 6*time.Hour).
					Return(true, nil)
			},
			want: sampleMemo(),
		},
		{
			name: "cache error falls through to database",
			setup: func(cache *MockCacheRepository, memos *MockMemoRepository) {
				cache.EXPECT().Get(gomock.Any(), key).Return(nil, errors.New("redis error"))
				memos.EXPECT().Lookup(gomock.Any(), params).Return(sampleMemo(), nil)
				encoded, _ := json.Marshal(sampleMemo())
				cache.EXPECT().
					SetIfNotExists(gomock.Any(), key, encoded, 6*time.Hour).
					Return(true, nil)
			},
			want: sampleMemo(),
		},
		{
			name: "database miss propagates not found",
			setup: func(cache *MockCacheRepository, memos *MockMemoRepository) {
				cache.EXPECT().Get(gomock.Any(), key).Return(nil, nil)
				memos.EXPECT().
					Lookup(gomock.Any(), params).
					Return(nil, apperrors.NotFound("memo not found"))
			},
			wantErr: true,
		},
		{
			name: "cache fill failure is ignored",
			setup: func(cache *MockCacheRepository, memos *MockMemoRepository) {
				cache.EXPECT().Get(gomock.Any(), key).Return(nil, nil)
				memos.EXPECT().Lookup(gomock.Any(), params).Return(sampleMemo(), nil)
				encoded, _ := json.Marshal(sampleMemo())
				cache.EXPECT().
					SetIfNotExists(gomock.Any(), key, encoded, 6*time.Hour).
					Return(false, errors.New("redis error"))
			},
			want: sampleMemo(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			cache := NewMockCacheRepository(ctrl)
			memos := NewMockMemoRepository(ctrl)
			tt.setup(cache, memos)

			service := NewMemoCacheService(MemoCacheServiceOptions{
				Cache:  cache,
				Memos:  memos,
				Config: DefaultMemoCacheConfig(),
			})
			got, err := service.Lookup(context.Background(), params)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoCacheService_LookupWithoutCache(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	memos := NewMockMemoRepository(ctrl)
	params := MemoLookupParams{StudentID: "stu-1", ClauseHash: "abc123"}
	memos.EXPECT().Lookup(gomock.Any(), params).Return(sampleMemo(), nil)

	service := NewMemoCacheService(MemoCacheServiceOptions{
		Cache:  nil,
		Memos:  memos,
		Config: DefaultMemoCacheConfig(),
	})
	got, err := service.Lookup(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, sampleMemo(), got)
}

func TestMemoCacheService_ListByResult(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cache := NewMockCacheRepository(ctrl)
	memos := NewMockMemoRepository(ctrl)
	memos.EXPECT().
		ListByResult(gomock.Any(), "result-1").
		Return([]*model.MemoEntry{sampleMemo()}, nil)

	service := NewMemoCacheService(MemoCacheServiceOptions{
		Cache:  cache,
		Memos:  memos,
		Config: DefaultMemoCacheConfig(),
	})
	got, err := service.ListByResult(context.Background(), "result-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc123", got[0].ClauseHash)
}

func TestDefaultMemoCacheConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultMemoCacheConfig()
	assert.Equal(t, 6*time.Hour, cfg.TTL)
}

func TestMemoCacheService_memoKey(t *testing.T) {
	t.Parallel()

	service := NewMemoCacheService(MemoCacheServiceOptions{
		Config: DefaultMemoCacheConfig(),
	})
	key := service.memoKey(MemoLookupParams{StudentID: "stu-9", ClauseHash: "deadbeef"})
	assert.Equal(t, "memo:stu-9:deadbeef", key)
}
