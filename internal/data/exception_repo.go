package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/data/pgxutil"
	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
)

// ErrExceptionNotFound is returned when an exception is not found.
var ErrExceptionNotFound = errors.New("exception not found")

// ExceptionRepo provides database operations for advisor exceptions.
type ExceptionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// ExceptionRepoConfig holds configuration options for the exception repository.
type ExceptionRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewExceptionRepo creates a new ExceptionRepo instance with the given database connection and configuration.
func NewExceptionRepo(db *sql.DB, cfg ExceptionRepoConfig) *ExceptionRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &ExceptionRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const exceptionColumns = `
  id,
  student_id,
  area_code,
  path,
  type,
  clbid,
  forced_pass,
  override_credits,
  override_subject,
  is_enabled,
  author,
  notes,
  created_at,
  updated_at
`

// Create inserts a new advisor exception, enabled by default.
func (r *ExceptionRepo) Create(ctx context.Context, req *model.CreateExceptionRequest) (*model.Exception, error) {
	if req == nil {
		return nil, errors.New("create exception request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, apperrors.Validation(validateErr.Error())
	}

	query := `
      INSERT INTO audit_exceptions(student_id, area_code, path, type, clbid, forced_pass, override_credits, override_subject, is_enabled, author, notes, created_at, updated_at)
      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10, $11, $11)
      RETURNING ` + exceptionColumns

	currentTime := r.timeProvider.Now().UTC()

	var exc *model.Exception
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query,
			req.StudentID,
			req.AreaCode,
			req.Path,
			req.Type,
			req.CLBID,
			req.ForcedPass,
			req.OverrideCredits,
			req.OverrideSubject,
			req.Author,
			req.Notes,
			currentTime,
		)
		if err != nil {
			return fmt.Errorf("insert exception: %w", err)
		}
		defer rows.Close()
		e, collectErr := collectExceptionFromRows(rows)
		if collectErr != nil {
			return fmt.Errorf("collect exception: %w", collectErr)
		}
		exc = e
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return exc, nil
}

// GetByID retrieves an exception by its ID.
func (r *ExceptionRepo) GetByID(ctx context.Context, id string) (*model.Exception, error) {
	var exc *model.Exception
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+exceptionColumns+`
			FROM audit_exceptions
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		exc, err = collectExceptionFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExceptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exception: %w", err)
	}
	return exc, nil
}

// Update changes the override payload and notes of an exception. The
// lineage, path, and type of an existing row never change; advisors create
// a new exception instead.
func (r *ExceptionRepo) Update(ctx context.Context, id string, req model.UpdateExceptionRequest) (*model.Exception, error) {
	if validateErr := req.Validate(); validateErr != nil {
		return nil, apperrors.Validation(validateErr.Error())
	}

	query := `
		UPDATE audit_exceptions
		SET override_credits = COALESCE($2, override_credits),
		    override_subject = COALESCE($3, override_subject),
		    notes = COALESCE($4, notes),
		    updated_at = $5
		WHERE id = $1
		RETURNING ` + exceptionColumns

	var exc *model.Exception
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query,
			id,
			req.OverrideCredits,
			req.OverrideSubject,
			req.Notes,
			r.timeProvider.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("update exception: %w", err)
		}
		defer rows.Close()
		e, collectErr := collectExceptionFromRows(rows)
		if collectErr != nil {
			return fmt.Errorf("collect exception: %w", collectErr)
		}
		exc = e
		return nil
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExceptionNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return exc, nil
}

// SetEnabled toggles an exception without removing its row, preserving the
// advisor's override history.
func (r *ExceptionRepo) SetEnabled(ctx context.Context, id string, enabled bool) (*model.Exception, error) {
	query := `
		UPDATE audit_exceptions
		SET is_enabled = $2,
		    updated_at = $3
		WHERE id = $1
		RETURNING ` + exceptionColumns

	var exc *model.Exception
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, id, enabled, r.timeProvider.Now().UTC())
		if err != nil {
			return fmt.Errorf("set exception enabled: %w", err)
		}
		defer rows.Close()
		e, collectErr := collectExceptionFromRows(rows)
		if collectErr != nil {
			return fmt.Errorf("collect exception: %w", collectErr)
		}
		exc = e
		return nil
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExceptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set exception enabled: %w", err)
	}
	return exc, nil
}

// ListForLineage returns a lineage's exceptions, oldest first so overlays
// apply in authoring order.
func (r *ExceptionRepo) ListForLineage(ctx context.Context, params core.ExceptionListParams) ([]*model.Exception, error) {
	lineage := model.Lineage{StudentID: params.StudentID, AreaCode: params.AreaCode}
	if err := lineage.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	query := `
		SELECT ` + exceptionColumns + `
		FROM audit_exceptions
		WHERE student_id = $1 AND area_code = $2
	`
	args := []any{params.StudentID, params.AreaCode}
	if params.EnabledOnly {
		query += " AND is_enabled"
	}
	query += " ORDER BY created_at ASC, id ASC"

	var exceptions []*model.Exception
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query exceptions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			e, scanErr := scanExceptionFromRow(rows)
			if scanErr != nil {
				return fmt.Errorf("collect exceptions: %w", scanErr)
			}
			exceptions = append(exceptions, e)
		}
		return rows.Err()
	}); err != nil {
		return nil, err
	}

	return exceptions, nil
}

func collectExceptionFromRows(rows pgx.Rows) (*model.Exception, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	exc, err := scanExceptionFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return exc, nil
}

func scanExceptionFromRow(scanner jobRowScanner) (*model.Exception, error) {
	exc := &model.Exception{}
	var clbid, overrideSubject sql.NullString
	var overrideCredits sql.NullFloat64
	if err := scanner.Scan(
		&exc.ID,
		&exc.StudentID,
		&exc.AreaCode,
		&exc.Path,
		&exc.Type,
		&clbid,
		&exc.ForcedPass,
		&overrideCredits,
		&overrideSubject,
		&exc.IsEnabled,
		&exc.Author,
		&exc.Notes,
		&exc.CreatedAt,
		&exc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	exc.CLBID = cloneNullableString(clbid)
	exc.OverrideSubject = cloneNullableString(overrideSubject)
	if overrideCredits.Valid {
		v := overrideCredits.Float64
		exc.OverrideCredits = &v
	}
	return exc, nil
}
