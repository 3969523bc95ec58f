package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/openregistrar/auditcore/internal/data/pgxutil"
	"github.com/openregistrar/auditcore/internal/domain/model"
)

// queueFilterQueryBuilder accumulates WHERE clauses and positional args for
// queue list queries.
type queueFilterQueryBuilder struct {
	query  string
	args   []any
	argIdx int
}

func (b *queueFilterQueryBuilder) addFilter(condition string, value any) {
	if value != nil {
		b.query += fmt.Sprintf(" AND %s = $%d", condition, b.argIdx)
		b.args = append(b.args, value)
		b.argIdx++
	}
}

// buildJobListQuery constructs the SQL query and args for the job list with filtering.
func buildJobListQuery(opts model.JobListOptions) (string, []any) {
	builder := &queueFilterQueryBuilder{
		query: `
		SELECT ` + queueColumns + `
		FROM audit_queue
		WHERE 1=1`,
		args:   []any{},
		argIdx: 1,
	}

	if opts.StudentID != "" {
		builder.addFilter("student_id", opts.StudentID)
	}
	if opts.AreaCode != "" {
		builder.addFilter("area_code", opts.AreaCode)
	}
	if opts.Status != nil && *opts.Status != "" {
		builder.addFilter("status", string(*opts.Status))
	}

	builder.query += `
		ORDER BY priority ASC, submitted_at ASC, id ASC`

	return builder.query, builder.args
}

// List returns queued jobs with optional filtering for admin inspection.
func (r *QueueRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50 // Default limit
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}
	offset := max(opts.Offset, 0)

	query, args := buildJobListQuery(opts)
	argIdx := len(args) + 1
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	var result []*model.Job
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query jobs with filters: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			job, scanErr := scanJobFromRow(rows)
			if scanErr != nil {
				return fmt.Errorf("collect jobs: %w", scanErr)
			}
			result = append(result, job)
		}
		return rows.Err()
	}); err != nil {
		return nil, err
	}

	return result, nil
}
