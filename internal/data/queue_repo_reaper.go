package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 1000 is reserved for auditcore reaper operations.
const (
	advisoryLockReaperMajor          = 1000
	advisoryLockReaperRequeue        = 1 // minor key for RequeueExpiredLeases
	advisoryLockReaperExpiredJobs    = 2 // minor key for DeleteExpiredJobs
	advisoryLockReaperExpiredResults = 3 // minor key for DeleteExpiredResults
	advisoryLockReaperDeadJobs       = 4 // minor key for DeleteOldDeadJobs
)

const requeueDefaultBatchSize = 100

// RequeueExpiredLeases returns claimed jobs whose lease lapsed to the pending
// pool so another worker can pick them up. Uses advisory locks so concurrent
// sweeps do not conflict. Returns the number of jobs requeued.
func (r *QueueRepo) RequeueExpiredLeases(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = requeueDefaultBatchSize
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperRequeue).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
				UPDATE audit_queue
				SET status = 'pending',
				    claimed_by = NULL,
				    lease_expires_at = NULL,
				    updated_at = $1
				WHERE id IN (
					SELECT id FROM audit_queue
					WHERE status = 'claimed'
					  AND lease_expires_at IS NOT NULL
					  AND lease_expires_at < $1
					ORDER BY lease_expires_at
					LIMIT $2
				)
			`, currentTime.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("requeue expired leases: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteExpiredJobs removes pending jobs whose expires_at has passed without
// being claimed. Expired jobs must never be delivered; deleting them keeps
// the pending pool honest. Returns the number of jobs deleted.
func (r *QueueRepo) DeleteExpiredJobs(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperExpiredJobs).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
				DELETE FROM audit_queue
				WHERE id IN (
					SELECT id FROM audit_queue
					WHERE status = 'pending'
					  AND expires_at IS NOT NULL
					  AND expires_at <= $1
					ORDER BY expires_at
					LIMIT $2
				)
			`, currentTime.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("delete expired jobs: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteExpiredResults removes inactive results whose expires_at has passed.
// Active results are never reaped regardless of their expiry; memo rows go
// with their result via ON DELETE CASCADE.
func (r *QueueRepo) DeleteExpiredResults(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperExpiredResults).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
				DELETE FROM audit_results
				WHERE id IN (
					SELECT id FROM audit_results
					WHERE NOT is_active
					  AND expires_at IS NOT NULL
					  AND expires_at <= $1
					ORDER BY expires_at
					LIMIT $2
				)
			`, currentTime.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("delete expired results: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteOldDeadJobs removes dead-lettered jobs older than MaxAge.
// Processes up to BatchSize jobs per call to prevent long locks and I/O spikes.
func (r *QueueRepo) DeleteOldDeadJobs(ctx context.Context, params core.DeleteOldDeadJobsParams) (int64, error) {
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDeadJobs).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			cutoffTime := r.timeProvider.Now().Add(-params.MaxAge).UTC()
			res, err := tx.ExecContext(ctx, `
				DELETE FROM audit_queue
				WHERE id IN (
					SELECT id FROM audit_queue
					WHERE status = 'dead'
					  AND updated_at < $1
					ORDER BY updated_at
					LIMIT $2
				)
			`, cutoffTime, params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old dead jobs: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
