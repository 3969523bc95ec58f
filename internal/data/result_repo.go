package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/openregistrar/auditcore/internal/data/pgxutil"
	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
)

// ErrResultNotFound is returned when a result is not found.
var ErrResultNotFound = errors.New("result not found")

// ResultRepo provides database operations for committed audit results.
type ResultRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// ResultRepoConfig holds configuration options for the result repository.
type ResultRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewResultRepo creates a new ResultRepo instance with the given database connection and configuration.
func NewResultRepo(db *sql.DB, cfg ResultRepoConfig) *ResultRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &ResultRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const resultColumns = `
  id,
  student_id,
  area_code,
  catalog,
  run,
  revision,
  is_active,
  status,
  link_to,
  rank,
  max_rank,
  gpa,
  claimed_courses,
  result_tree,
  error,
  iterations,
  duration_ms,
  created_at,
  expires_at
`

// Advisory lock namespace for per-lineage submit serialization.
// Major key 1002 is reserved for result submission.
const advisoryLockSubmitMajor int64 = 1002

func advisoryLockSubmitMinor(lineage model.Lineage) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(lineage.StudentID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(lineage.AreaCode))
	hashValue := h.Sum32()
	maxInt32 := uint32(math.MaxInt32)
	if hashValue > maxInt32 {
		hashValue &= maxInt32
	}
	return int64(hashValue)
}

// Submit persists a finished computation. The new row's revision is one past
// the lineage's highest, assigned under a per-lineage advisory lock so that
// two racing submissions serialize instead of colliding. A non-speculative
// ok result always carries the highest revision at commit time and therefore
// takes the active pointer; link and speculative results never compete.
func (r *ResultRepo) Submit(ctx context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
	if req == nil {
		return nil, errors.New("submit result request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, apperrors.Validation(validateErr.Error())
	}

	lineage := model.Lineage{StudentID: req.StudentID, AreaCode: req.AreaCode}

	var result *model.Result
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			minorKey := advisoryLockSubmitMinor(lineage)
			if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1::integer, $2::integer)", advisoryLockSubmitMajor, minorKey); err != nil {
				return fmt.Errorf("acquire submit lock: %w", err)
			}

			var revision int
			if err := tx.QueryRow(ctx, `
				SELECT COALESCE(MAX(revision), 0) + 1
				FROM audit_results
				WHERE student_id = $1 AND area_code = $2
			`, req.StudentID, req.AreaCode).Scan(&revision); err != nil {
				return fmt.Errorf("next revision: %w", err)
			}

			takesActive := r.takesActivePointer(req)
			if takesActive {
				if _, err := tx.Exec(ctx, `
					UPDATE audit_results
					SET is_active = FALSE
					WHERE student_id = $1 AND area_code = $2 AND is_active
				`, req.StudentID, req.AreaCode); err != nil {
					return fmt.Errorf("retire active result: %w", err)
				}
			}

			inserted, insertErr := r.insertResultInTx(ctx, tx, insertResultParams{
				Req:      req,
				Revision: revision,
				IsActive: takesActive,
			})
			if insertErr != nil {
				return insertErr
			}

			if memoErr := r.insertMemosInTx(ctx, tx, inserted.ID, req.Memos); memoErr != nil {
				return memoErr
			}

			result = inserted
			return nil
		},
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return result, nil
}

// takesActivePointer decides whether the submission competes for the
// lineage's active pointer. Only committed ok results do; failures keep the
// last good result visible, and link or speculative results are lookups by
// construction.
func (r *ResultRepo) takesActivePointer(req *model.SubmitResultRequest) bool {
	return req.Status == model.ResultStatusOK && !req.Speculative
}

type insertResultParams struct {
	Req      *model.SubmitResultRequest
	Revision int
	IsActive bool
}

func (r *ResultRepo) insertResultInTx(ctx context.Context, tx pgx.Tx, p insertResultParams) (*model.Result, error) {
	query := `
      INSERT INTO audit_results(student_id, area_code, catalog, run, revision, is_active, status, link_to, rank, max_rank, gpa, claimed_courses, result_tree, error, iterations, duration_ms, created_at, expires_at)
      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
      RETURNING ` + resultColumns

	req := p.Req
	rows, err := tx.Query(ctx, query,
		req.StudentID,
		req.AreaCode,
		req.Catalog,
		req.Run,
		p.Revision,
		p.IsActive,
		req.Status,
		req.LinkTo,
		req.Rank,
		req.MaxRank,
		req.GPA,
		emptyJSONIfNil(req.ClaimedCourses),
		emptyJSONIfNil(req.ResultTree),
		nullableJSON(req.Error),
		req.Iterations,
		req.DurationMS,
		r.timeProvider.Now().UTC(),
		nullableTime(req.ExpiresAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}
	result, collectErr := collectResultFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect result: %w", collectErr)
	}
	return result, nil
}

// insertMemosInTx writes the result's memo rows. Memos are write-once: the
// first row for a (result, clause hash) pair wins and later duplicates from
// the same computation are dropped silently.
func (r *ResultRepo) insertMemosInTx(ctx context.Context, tx pgx.Tx, resultID string, memos []model.MemoEntry) error {
	if len(memos) == 0 {
		return nil
	}

	currentTime := r.timeProvider.Now().UTC()
	for _, memo := range memos {
		if _, err := tx.Exec(ctx, `
			INSERT INTO audit_memos(result_id, clause_hash, snapshot_hash, clause, clbids, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (result_id, clause_hash) DO NOTHING
		`, resultID, memo.ClauseHash, memo.SnapshotHash, []byte(memo.Clause), memo.CLBIDs, currentTime); err != nil {
			return fmt.Errorf("insert memo %s: %w", memo.ClauseHash, err)
		}
	}
	return nil
}

func emptyJSONIfNil(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte(`{}`)
	}
	return []byte(raw)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// GetByID retrieves a result by its ID.
func (r *ResultRepo) GetByID(ctx context.Context, id string) (*model.Result, error) {
	return r.getOne(ctx, `
		SELECT `+resultColumns+`
		FROM audit_results
		WHERE id = $1
	`, id)
}

// GetActive retrieves the lineage's active result, if any.
func (r *ResultRepo) GetActive(ctx context.Context, lineage model.Lineage) (*model.Result, error) {
	if err := lineage.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	return r.getOne(ctx, `
		SELECT `+resultColumns+`
		FROM audit_results
		WHERE student_id = $1 AND area_code = $2 AND is_active
	`, lineage.StudentID, lineage.AreaCode)
}

// GetRevision retrieves one specific revision of a lineage's history.
func (r *ResultRepo) GetRevision(ctx context.Context, lineage model.Lineage, revision int) (*model.Result, error) {
	if err := lineage.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	return r.getOne(ctx, `
		SELECT `+resultColumns+`
		FROM audit_results
		WHERE student_id = $1 AND area_code = $2 AND revision = $3
	`, lineage.StudentID, lineage.AreaCode, revision)
}

// GetByRun retrieves the result produced by a specific run. Link results
// reference runs, so this is the resolution step for a link lookup.
func (r *ResultRepo) GetByRun(ctx context.Context, lineage model.Lineage, run int) (*model.Result, error) {
	if err := lineage.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	return r.getOne(ctx, `
		SELECT `+resultColumns+`
		FROM audit_results
		WHERE student_id = $1 AND area_code = $2 AND run = $3
		ORDER BY revision DESC
		LIMIT 1
	`, lineage.StudentID, lineage.AreaCode, run)
}

func (r *ResultRepo) getOne(ctx context.Context, query string, args ...any) (*model.Result, error) {
	var result *model.Result
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		result, err = collectResultFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return result, nil
}

// ListHistory returns a lineage's result history in ascending revision
// order, so revision 1 comes first and the newest revision last.
func (r *ResultRepo) ListHistory(ctx context.Context, opts model.ResultHistoryOptions) ([]*model.Result, error) {
	lineage := model.Lineage{StudentID: opts.StudentID, AreaCode: opts.AreaCode}
	if err := lineage.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50 // Default limit
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}
	offset := max(opts.Offset, 0)

	query := `
		SELECT ` + resultColumns + `
		FROM audit_results
		WHERE student_id = $1 AND area_code = $2
	`
	args := []any{opts.StudentID, opts.AreaCode}
	if opts.Status != nil && *opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, string(*opts.Status))
	}
	query += fmt.Sprintf(" ORDER BY revision ASC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var results []*model.Result
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query result history: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			result, scanErr := scanResultFromRow(rows)
			if scanErr != nil {
				return fmt.Errorf("collect results: %w", scanErr)
			}
			results = append(results, result)
		}
		return rows.Err()
	}); err != nil {
		return nil, err
	}

	return results, nil
}

func collectResultFromRows(rows pgx.Rows) (*model.Result, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	result, err := scanResultFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return result, nil
}

type resultRowData struct {
	claimedCourses, resultTree, errJSON []byte
	linkTo                              sql.NullString
	expiresAt                           sql.NullTime
}

func (d *resultRowData) scanInto(scanner jobRowScanner, result *model.Result) error {
	return scanner.Scan(
		&result.ID,
		&result.StudentID,
		&result.AreaCode,
		&result.Catalog,
		&result.Run,
		&result.Revision,
		&result.IsActive,
		&result.Status,
		&d.linkTo,
		&result.Rank,
		&result.MaxRank,
		&result.GPA,
		&d.claimedCourses,
		&d.resultTree,
		&d.errJSON,
		&result.Iterations,
		&result.DurationMS,
		&result.CreatedAt,
		&d.expiresAt,
	)
}

func (d *resultRowData) apply(result *model.Result) {
	result.ClaimedCourses = cloneJSON(d.claimedCourses)
	result.ResultTree = cloneJSON(d.resultTree)
	if len(d.errJSON) > 0 {
		result.Error = append(json.RawMessage(nil), d.errJSON...)
	}
	result.LinkTo = cloneNullableString(d.linkTo)
	result.ExpiresAt = cloneNullableTime(d.expiresAt)
}

func scanResultFromRow(scanner jobRowScanner) (*model.Result, error) {
	result := &model.Result{}
	var data resultRowData
	if err := data.scanInto(scanner, result); err != nil {
		return nil, err
	}

	data.apply(result)
	return result, nil
}
