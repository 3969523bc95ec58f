// Package mocks provides mock implementations for testing the auditcore queue and result system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockQueueRepository(ctrl)
//	mockRepo.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for QueueRepository interface from internal/core package.
// This creates MockQueueRepository with methods for all QueueRepository interface methods:
// Enqueue, GetByID, ClaimNext, WaitForNotification, Heartbeat, Complete, Fail, List, Stats,
// Block, Unblock, IsBlocked
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=queue_repository_mock.go github.com/openregistrar/auditcore/internal/core QueueRepository

// Generate mock for ResultRepository interface from internal/core package.
// This creates MockResultRepository with methods for all ResultRepository interface methods:
// Submit, GetByID, GetActive, GetRevision, GetByRun, ListHistory
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=result_repository_mock.go github.com/openregistrar/auditcore/internal/core ResultRepository

// Generate mock for MemoRepository interface from internal/core package.
// This creates MockMemoRepository with methods for all MemoRepository interface methods:
// Lookup, ListByResult
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=memo_repository_mock.go github.com/openregistrar/auditcore/internal/core MemoRepository

// Generate mock for ExceptionRepository interface from internal/core package.
// This creates MockExceptionRepository with methods for all ExceptionRepository interface methods:
// Create, GetByID, Update, SetEnabled, ListForLineage
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=exception_repository_mock.go github.com/openregistrar/auditcore/internal/core ExceptionRepository

// Generate mock for WhatIfRepository interface from internal/core package.
// This creates MockWhatIfRepository with methods for all WhatIfRepository interface methods:
// Stage, ListStaged, ClearStaged, SaveTemplate, GetTemplate, ListTemplates
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=whatif_repository_mock.go github.com/openregistrar/auditcore/internal/core WhatIfRepository

// Generate mock for RulesEngine interface from internal/core package.
// This creates MockRulesEngine with methods for all RulesEngine interface methods:
// Evaluate, Candidates
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=rules_engine_mock.go github.com/openregistrar/auditcore/internal/core RulesEngine

// Generate mock for ReaperRepository interface from internal/core package.
// This creates MockReaperRepository with methods for all ReaperRepository interface methods:
// RequeueExpiredLeases, DeleteExpiredJobs, DeleteExpiredResults, DeleteOldDeadJobs
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/openregistrar/auditcore/internal/core ReaperRepository
