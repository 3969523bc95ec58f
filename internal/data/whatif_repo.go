package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/openregistrar/auditcore/internal/data/pgxutil"
	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
)

// ErrTemplateNotFound is returned when a saved template is not found.
var ErrTemplateNotFound = errors.New("template not found")

// WhatIfRepo provides database operations for staged hypothetical changes
// and saved course templates.
type WhatIfRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// WhatIfRepoConfig holds configuration options for the what-if repository.
type WhatIfRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewWhatIfRepo creates a new WhatIfRepo instance with the given database connection and configuration.
func NewWhatIfRepo(db *sql.DB, cfg WhatIfRepoConfig) *WhatIfRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &WhatIfRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

// Stage inserts or replaces one hypothetical change. The table is keyed by
// (student, area, kind), so re-staging a kind overwrites the prior value.
func (r *WhatIfRepo) Stage(ctx context.Context, req *model.StageRequest) (*model.StagedChange, error) {
	if req == nil {
		return nil, errors.New("stage request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, apperrors.Validation(validateErr.Error())
	}

	query := `
      INSERT INTO whatif_stages(student_id, area_code, kind, value, updated_at)
      VALUES ($1, $2, $3, $4, $5)
      ON CONFLICT (student_id, area_code, kind) DO UPDATE
      SET value = EXCLUDED.value,
          updated_at = EXCLUDED.updated_at
      RETURNING student_id, area_code, kind, value, updated_at`

	var staged *model.StagedChange
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query,
			req.StudentID,
			req.AreaCode,
			req.Kind,
			[]byte(req.Value),
			r.timeProvider.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("stage change: %w", err)
		}
		defer rows.Close()

		if !rows.Next() {
			if rowsErr := rows.Err(); rowsErr != nil {
				return rowsErr
			}
			return pgx.ErrNoRows
		}
		s, scanErr := scanStagedChangeFromRow(rows)
		if scanErr != nil {
			return fmt.Errorf("collect staged change: %w", scanErr)
		}
		staged = s
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return staged, nil
}

// ListStaged returns a lineage's staged changes.
func (r *WhatIfRepo) ListStaged(ctx context.Context, lineage model.Lineage) ([]*model.StagedChange, error) {
	if err := lineage.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	query := `
		SELECT student_id, area_code, kind, value, updated_at
		FROM whatif_stages
		WHERE student_id = $1 AND area_code = $2
		ORDER BY kind
	`

	var staged []*model.StagedChange
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, lineage.StudentID, lineage.AreaCode)
		if err != nil {
			return fmt.Errorf("query staged changes: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			s, scanErr := scanStagedChangeFromRow(rows)
			if scanErr != nil {
				return fmt.Errorf("collect staged changes: %w", scanErr)
			}
			staged = append(staged, s)
		}
		return rows.Err()
	}); err != nil {
		return nil, err
	}

	return staged, nil
}

// ClearStaged drops all of a lineage's staged changes and returns the count removed.
func (r *WhatIfRepo) ClearStaged(ctx context.Context, lineage model.Lineage) (int64, error) {
	if err := lineage.Validate(); err != nil {
		return 0, apperrors.Validation(err.Error())
	}

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM whatif_stages
		WHERE student_id = $1 AND area_code = $2
	`, lineage.StudentID, lineage.AreaCode)
	if err != nil {
		return 0, fmt.Errorf("clear staged changes: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear staged rows affected: %w", err)
	}
	return rowsAffected, nil
}

const templateColumns = `
  id,
  student_id,
  name,
  revision,
  courses,
  created_at
`

// SaveTemplate appends a new revision of the named template. Saves never
// overwrite: each save takes revision MAX+1 for the (student, name) pair.
func (r *WhatIfRepo) SaveTemplate(ctx context.Context, req *model.SaveTemplateRequest) (*model.Template, error) {
	if req == nil {
		return nil, errors.New("save template request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, apperrors.Validation(validateErr.Error())
	}

	query := `
      INSERT INTO whatif_templates(student_id, name, revision, courses, created_at)
      SELECT $1, $2, COALESCE(MAX(revision), 0) + 1, $3, $4
      FROM whatif_templates
      WHERE student_id = $1 AND name = $2
      RETURNING ` + templateColumns

	var tmpl *model.Template
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, query,
				req.StudentID,
				req.Name,
				[]byte(req.Courses),
				r.timeProvider.Now().UTC(),
			)
			if err != nil {
				return fmt.Errorf("save template: %w", err)
			}
			defer rows.Close()

			if !rows.Next() {
				if rowsErr := rows.Err(); rowsErr != nil {
					return rowsErr
				}
				return pgx.ErrNoRows
			}
			t, scanErr := scanTemplateFromRow(rows)
			if scanErr != nil {
				return fmt.Errorf("collect template: %w", scanErr)
			}
			tmpl = t
			return rows.Err()
		},
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return tmpl, nil
}

// GetTemplate returns the newest revision of the named template.
func (r *WhatIfRepo) GetTemplate(ctx context.Context, studentID, name string) (*model.Template, error) {
	if studentID == "" || name == "" {
		return nil, apperrors.Validation("student id and template name are required")
	}

	query := `
		SELECT ` + templateColumns + `
		FROM whatif_templates
		WHERE student_id = $1 AND name = $2
		ORDER BY revision DESC
		LIMIT 1
	`

	var tmpl *model.Template
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, studentID, name)
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
		t, scanErr := scanTemplateFromRow(rows)
		if scanErr != nil {
			return scanErr
		}
		tmpl = t
		return rows.Err()
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tmpl, nil
}

// ListTemplates returns the newest revision of each of the student's templates.
func (r *WhatIfRepo) ListTemplates(ctx context.Context, studentID string) ([]*model.Template, error) {
	if studentID == "" {
		return nil, apperrors.Validation("student id is required")
	}

	query := `
		SELECT DISTINCT ON (name) ` + templateColumns + `
		FROM whatif_templates
		WHERE student_id = $1
		ORDER BY name, revision DESC
	`

	var templates []*model.Template
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, studentID)
		if err != nil {
			return fmt.Errorf("query templates: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			t, scanErr := scanTemplateFromRow(rows)
			if scanErr != nil {
				return fmt.Errorf("collect templates: %w", scanErr)
			}
			templates = append(templates, t)
		}
		return rows.Err()
	}); err != nil {
		return nil, err
	}

	return templates, nil
}

func scanStagedChangeFromRow(scanner jobRowScanner) (*model.StagedChange, error) {
	staged := &model.StagedChange{}
	var value []byte
	if err := scanner.Scan(
		&staged.StudentID,
		&staged.AreaCode,
		&staged.Kind,
		&value,
		&staged.UpdatedAt,
	); err != nil {
		return nil, err
	}
	staged.Value = cloneJSON(value)
	return staged, nil
}

func scanTemplateFromRow(scanner jobRowScanner) (*model.Template, error) {
	tmpl := &model.Template{}
	var courses []byte
	if err := scanner.Scan(
		&tmpl.ID,
		&tmpl.StudentID,
		&tmpl.Name,
		&tmpl.Revision,
		&courses,
		&tmpl.CreatedAt,
	); err != nil {
		return nil, err
	}
	tmpl.Courses = cloneJSON(courses)
	return tmpl, nil
}
