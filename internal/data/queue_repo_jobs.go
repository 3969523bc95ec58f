package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/data/pgxutil"
	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
)

// queueNotifyChannel is the pg_notify channel signalled whenever the pending
// pool gains work. Workers LISTEN on it instead of busy-polling.
const queueNotifyChannel = "audit_queue_update"

const (
	defaultRetryDelaySeconds    = 30
	defaultRetryMaxDelaySeconds = 900
	defaultMaxAttempts          = 3
)

func (r *QueueRepo) retryDelay() time.Duration {
	if r.cfg.RetryDelaySeconds > 0 {
		return time.Duration(r.cfg.RetryDelaySeconds) * time.Second
	}
	return defaultRetryDelaySeconds * time.Second
}

func (r *QueueRepo) retryMaxDelay() time.Duration {
	if r.cfg.RetryMaxDelaySeconds > 0 {
		return time.Duration(r.cfg.RetryMaxDelaySeconds) * time.Second
	}
	return defaultRetryMaxDelaySeconds * time.Second
}

// backoffDelay computes the retry delay for a job that has already failed
// attempts times: the base delay doubled per prior attempt, capped at ceil,
// jittered within [75%, 125%] so a burst of coordinated failures does not
// retry in lockstep.
func backoffDelay(base, ceil time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = defaultRetryDelaySeconds * time.Second
	}
	if ceil < base {
		ceil = base
	}
	delay := base
	for i := 0; i < attempts && delay < ceil; i++ {
		delay *= 2
	}
	if delay > ceil {
		delay = ceil
	}
	return time.Duration(float64(delay) * (0.75 + 0.5*rand.Float64()))
}

// SQL used by ClaimNext to atomically claim the next ready job. Expired jobs
// are never delivered, and blocked lineages are skipped in place.
const claimNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM audit_queue
    WHERE status = 'pending'
      AND (not_before IS NULL OR not_before <= $1)
      AND (expires_at IS NULL OR expires_at > $1)
      AND NOT EXISTS (
        SELECT 1 FROM audit_queue_blocks b
        WHERE b.student_id = audit_queue.student_id
          AND b.area_code = audit_queue.area_code
      )
    ORDER BY priority ASC, submitted_at ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE audit_queue q
  SET
    status = 'claimed',
    claimed_by = $2,
    lease_expires_at = $3,
    updated_at = $4
  FROM cte
  WHERE q.id = cte.id
  RETURNING q.id, q.student_id, q.area_code, q.catalog, q.run, q.status, q.priority, q.input_data, q.link_only, q.link_run, q.expires_at, q.claimed_by, q.lease_expires_at, q.not_before, q.attempt_count, q.max_attempts, q.last_error, q.submitted_at, q.updated_at`

// Enqueue inserts a pending job for the lineage, or coalesces into the
// existing pending row: the newest input wins, the most urgent priority
// survives. Blocked lineages are refused before any row is touched.
func (r *QueueRepo) Enqueue(ctx context.Context, req *model.EnqueueRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("enqueue request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, apperrors.Validation(validateErr.Error())
	}

	var job *model.Job
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var insertErr error
			job, insertErr = r.insertJobInTx(ctx, tx, req)
			return insertErr
		},
	}); txErr != nil {
		return nil, txErr
	}

	return job, nil
}

// insertJobInTx checks the block list, inserts or coalesces the job, and
// signals the queue channel, all inside one pgx transaction.
func (r *QueueRepo) insertJobInTx(ctx context.Context, tx pgx.Tx, req *model.EnqueueRequest) (*model.Job, error) {
	var blocked bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM audit_queue_blocks
			WHERE student_id = $1 AND area_code = $2
		)
	`, req.StudentID, req.AreaCode).Scan(&blocked); err != nil {
		return nil, fmt.Errorf("check queue block: %w", err)
	}
	if blocked {
		return nil, apperrors.QueueBlockedf(
			"lineage %s/%s is blocked from enqueueing", req.StudentID, req.AreaCode)
	}

	query, args := r.buildEnqueueQuery(req)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	job, collectErr := collectJobFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect job: %w", collectErr)
	}

	if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, queueNotifyChannel, job.ID); execErr != nil {
		return nil, fmt.Errorf("send queue notification: %w", execErr)
	}

	return job, nil
}

// buildEnqueueQuery builds the coalescing INSERT for an enqueue request.
// The run number comes from a global sequence and survives coalescing, so a
// submission folded into an existing pending row keeps that row's run.
func (r *QueueRepo) buildEnqueueQuery(req *model.EnqueueRequest) (string, []any) {
	if req == nil {
		return "", nil
	}

	query := `
      INSERT INTO audit_queue(student_id, area_code, catalog, run, status, priority, input_data, link_only, link_run, expires_at, max_attempts, submitted_at, updated_at)
      VALUES ($1, $2, $3, nextval('audit_run_seq'), 'pending', $4, $5, $6, $7, $8, $9, $10, $10)
      ON CONFLICT (student_id, area_code) WHERE status = 'pending'
      DO UPDATE SET
        catalog = EXCLUDED.catalog,
        priority = LEAST(audit_queue.priority, EXCLUDED.priority),
        input_data = EXCLUDED.input_data,
        link_only = EXCLUDED.link_only,
        link_run = EXCLUDED.link_run,
        expires_at = EXCLUDED.expires_at,
        updated_at = EXCLUDED.updated_at
      RETURNING ` + queueColumns

	input := req.InputData
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	args := []any{
		req.StudentID,
		req.AreaCode,
		req.Catalog,
		req.EffectivePriority(),
		[]byte(input),
		req.LinkOnly,
		req.LinkRun,
		nullableTime(req.ExpiresAt),
		defaultMaxAttempts,
		r.timeProvider.Now().UTC(),
	}
	return query, args
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// collectJobFromRows collects a single job from pgx rows using pgx v5 helpers.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	inputData                            []byte
	claimedBy, lastError                 sql.NullString
	linkRun                              sql.NullInt64
	expiresAt, leaseExpiresAt, notBefore sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.StudentID,
		&job.AreaCode,
		&job.Catalog,
		&job.Run,
		&job.Status,
		&job.Priority,
		&d.inputData,
		&job.LinkOnly,
		&d.linkRun,
		&d.expiresAt,
		&d.claimedBy,
		&d.leaseExpiresAt,
		&d.notBefore,
		&job.AttemptCount,
		&job.MaxAttempts,
		&d.lastError,
		&job.SubmittedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.InputData = cloneJSON(d.inputData)
	job.ClaimedBy = cloneNullableString(d.claimedBy)
	job.LastError = cloneNullableString(d.lastError)
	job.LinkRun = cloneNullableInt(d.linkRun)
	job.ExpiresAt = cloneNullableTime(d.expiresAt)
	job.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
	job.NotBefore = cloneNullableTime(d.notBefore)
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// ClaimNext claims the most urgent ready job under a lease. Expired leases
// are swept back to the pending pool first so a crashed worker's job is
// claimable again without waiting for the reaper.
func (r *QueueRepo) ClaimNext(ctx context.Context, params core.ClaimParams) (*model.Job, error) {
	if params.WorkerID == "" {
		return nil, errors.New("worker id is required")
	}
	if params.LeaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}

	if _, err := r.RequeueExpiredLeases(ctx, requeueDefaultBatchSize); err != nil {
		return nil, fmt.Errorf("requeue expired leases: %w", err)
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(params.LeaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				claimNextUpdateSQL,
				currentTime.UTC(),
				params.WorkerID,
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("claim job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("claim job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Heartbeat refreshes the lease on a claimed job.
func (r *QueueRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	query := `
		UPDATE audit_queue
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'claimed'
	`

	res, err := r.DB.ExecContext(ctx, query, jobID, leaseExpiration, currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}

	return true, nil
}

// Complete removes a finished job from the queue. Queue rows are ephemeral;
// the durable record of the computation lives in audit_results.
func (r *QueueRepo) Complete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM audit_queue
		WHERE id = $1 AND status = 'claimed'
	`, id)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Fail records a failed attempt. Transient failures return the job to the
// pending pool after a backoff computed from its attempt count; permanent
// failures and exhausted budgets park the job as dead. The row is locked
// first so the delay is derived from the attempt count actually on disk.
func (r *QueueRepo) Fail(ctx context.Context, params core.FailJobParams) (bool, error) {
	currentTime := r.timeProvider.Now()

	var failed bool
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			var attempts, maxAttempts int
			err := tx.QueryRow(ctx, `
				SELECT attempt_count, max_attempts
				FROM audit_queue
				WHERE id = $1 AND status = 'claimed'
				FOR UPDATE
			`, params.ID).Scan(&attempts, &maxAttempts)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("lock failed job: %w", err)
			}
			failed = true

			if params.Permanent || attempts+1 >= maxAttempts {
				if _, err := tx.Exec(ctx, `
					UPDATE audit_queue
					SET last_error = $2,
					    attempt_count = attempt_count + 1,
					    status = 'dead',
					    claimed_by = NULL,
					    lease_expires_at = NULL,
					    updated_at = $3
					WHERE id = $1
				`, params.ID, params.ErrMsg, currentTime.UTC()); err != nil {
					return fmt.Errorf("dead-letter job: %w", err)
				}
				return nil
			}

			retryNotBefore := currentTime.Add(backoffDelay(r.retryDelay(), r.retryMaxDelay(), attempts))
			if _, err := tx.Exec(ctx, `
				UPDATE audit_queue
				SET last_error = $2,
				    attempt_count = attempt_count + 1,
				    status = 'pending',
				    claimed_by = NULL,
				    lease_expires_at = NULL,
				    not_before = $3,
				    updated_at = $4
				WHERE id = $1
			`, params.ID, params.ErrMsg, retryNotBefore.UTC(), currentTime.UTC()); err != nil {
				return fmt.Errorf("requeue failed job: %w", err)
			}

			// Retried jobs need workers woken up again.
			if _, err := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, queueNotifyChannel, params.ID); err != nil {
				return fmt.Errorf("send retry notification: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	return failed, nil
}

// Stats returns counts of queue rows by state plus the number of blocked lineages.
func (r *QueueRepo) Stats(ctx context.Context) (*model.QueueStats, error) {
	var s model.QueueStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending') AS pending,
    count(*) FILTER (WHERE status = 'claimed') AS claimed,
    count(*) FILTER (WHERE status = 'dead')    AS dead,
    (SELECT count(*) FROM audit_queue_blocks)  AS blocked
  FROM audit_queue
  `).Scan(
		&s.Pending,
		&s.Claimed,
		&s.Dead,
		&s.Blocked,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new jobs are available.
func (r *QueueRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{queueNotifyChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", queueNotifyChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a queued job by its ID.
func (r *QueueRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+queueColumns+`
			FROM audit_queue
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Block stops a lineage from accepting new enqueues. Blocking is idempotent;
// re-blocking updates the recorded reason.
func (r *QueueRepo) Block(ctx context.Context, lineage model.Lineage, reason string) error {
	if err := lineage.Validate(); err != nil {
		return apperrors.Validation(err.Error())
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO audit_queue_blocks (student_id, area_code, reason, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, area_code) DO UPDATE
		SET reason = EXCLUDED.reason
	`, lineage.StudentID, lineage.AreaCode, reason, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("block lineage: %w", err)
	}
	return nil
}

// Unblock lifts a lineage's enqueue block. Returns false when no block existed.
func (r *QueueRepo) Unblock(ctx context.Context, lineage model.Lineage) (bool, error) {
	if err := lineage.Validate(); err != nil {
		return false, apperrors.Validation(err.Error())
	}

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM audit_queue_blocks
		WHERE student_id = $1 AND area_code = $2
	`, lineage.StudentID, lineage.AreaCode)
	if err != nil {
		return false, fmt.Errorf("unblock lineage: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unblock rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// IsBlocked reports whether a lineage is blocked from enqueueing.
func (r *QueueRepo) IsBlocked(ctx context.Context, lineage model.Lineage) (bool, error) {
	if err := lineage.Validate(); err != nil {
		return false, apperrors.Validation(err.Error())
	}

	var blocked bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM audit_queue_blocks
			WHERE student_id = $1 AND area_code = $2
		)
	`, lineage.StudentID, lineage.AreaCode).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("check queue block: %w", err)
	}
	return blocked, nil
}
