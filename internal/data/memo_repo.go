package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/data/pgxutil"
	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
)

// MemoRepo provides read access to memoized candidate enumerations. Memo
// rows are written by ResultRepo.Submit inside the owning result's
// transaction and are immutable afterwards.
type MemoRepo struct {
	DB *sql.DB
}

// NewMemoRepo creates a new MemoRepo instance with the given database connection.
func NewMemoRepo(db *sql.DB) *MemoRepo {
	return &MemoRepo{DB: db}
}

const memoColumns = `
  m.result_id,
  m.clause_hash,
  m.snapshot_hash,
  m.clause,
  m.clbids,
  m.created_at
`

// Lookup returns the newest memo matching the student's (clause hash,
// snapshot hash) pair. Memos written under a different course snapshot are
// never returned, so a re-audit after the student's courses change always
// recomputes. Callers must still verify the stored clause against their own
// before trusting the candidates; the hash alone is not proof of identity.
func (r *MemoRepo) Lookup(ctx context.Context, params core.MemoLookupParams) (*model.MemoEntry, error) {
	if params.StudentID == "" || params.ClauseHash == "" || params.SnapshotHash == "" {
		return nil, apperrors.Validation("student id, clause hash and snapshot hash are required")
	}

	query := `
		SELECT ` + memoColumns + `
		FROM audit_memos m
		JOIN audit_results res ON res.id = m.result_id
		WHERE res.student_id = $1 AND m.clause_hash = $2 AND m.snapshot_hash = $3
		ORDER BY res.revision DESC
		LIMIT 1
	`

	var memo *model.MemoEntry
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, params.StudentID, params.ClauseHash, params.SnapshotHash)
		if err != nil {
			return err
		}
		defer rows.Close()

		if !rows.Next() {
			if rowsErr := rows.Err(); rowsErr != nil {
				return rowsErr
			}
			return pgx.ErrNoRows
		}
		m, scanErr := scanMemoFromRow(rows)
		if scanErr != nil {
			return scanErr
		}
		memo = m
		return rows.Err()
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("no memo for clause hash %s", params.ClauseHash)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup memo: %w", err)
	}
	return memo, nil
}

// ListByResult returns all memos owned by one result.
func (r *MemoRepo) ListByResult(ctx context.Context, resultID string) ([]*model.MemoEntry, error) {
	if resultID == "" {
		return nil, apperrors.Validation("result id is required")
	}

	query := `
		SELECT ` + memoColumns + `
		FROM audit_memos m
		WHERE m.result_id = $1
		ORDER BY m.clause_hash
	`

	var memos []*model.MemoEntry
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, resultID)
		if err != nil {
			return fmt.Errorf("query memos: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			m, scanErr := scanMemoFromRow(rows)
			if scanErr != nil {
				return fmt.Errorf("collect memos: %w", scanErr)
			}
			memos = append(memos, m)
		}
		return rows.Err()
	}); err != nil {
		return nil, err
	}

	return memos, nil
}

func scanMemoFromRow(scanner jobRowScanner) (*model.MemoEntry, error) {
	memo := &model.MemoEntry{}
	var clause []byte
	if err := scanner.Scan(
		&memo.ResultID,
		&memo.ClauseHash,
		&memo.SnapshotHash,
		&clause,
		&memo.CLBIDs,
		&memo.CreatedAt,
	); err != nil {
		return nil, err
	}
	memo.Clause = cloneJSON(clause)
	return memo, nil
}
