package data

import (
	"database/sql"
	"errors"
	"log/slog"
)

var (
	// ErrJobNotFound is returned when a queued job is not found.
	ErrJobNotFound = errors.New("job not found")
)

// RepoConfig holds configuration options for the queue repository.
type RepoConfig struct {
	// RetryDelaySeconds is the base retry delay; each failed attempt
	// doubles it up to RetryMaxDelaySeconds.
	RetryDelaySeconds    int
	RetryMaxDelaySeconds int
	Logger               *slog.Logger
	TimeProvider         TimeProvider
}

// QueueRepo provides database operations for the audit queue.
type QueueRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewQueueRepo creates a new QueueRepo instance with the given database connection and configuration.
func NewQueueRepo(db *sql.DB, cfg RepoConfig) *QueueRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &QueueRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const queueColumns = `
  id,
  student_id,
  area_code,
  catalog,
  run,
  status,
  priority,
  input_data,
  link_only,
  link_run,
  expires_at,
  claimed_by,
  lease_expires_at,
  not_before,
  attempt_count,
  max_attempts,
  last_error,
  submitted_at,
  updated_at
`
