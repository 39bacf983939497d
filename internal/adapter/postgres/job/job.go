package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyang/job-dispatch/internal/adapter/postgres"
	"github.com/alanyang/job-dispatch/internal/apperr"
	domainjob "github.com/alanyang/job-dispatch/internal/domain/job"
)

const columns = `id, title, description, category, tags, skill_level, max_budget, deadline, status, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, j domainjob.Job) (domainjob.Job, error) {
	query := `
		INSERT INTO jobs (` + columns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING ` + columns

	if j.Tags == nil {
		j.Tags = []string{}
	}
	created, err := scanJob(r.pool.QueryRow(ctx, query,
		j.ID, j.Title, j.Description, j.Category, j.Tags, string(j.SkillLevel),
		j.MaxBudget, j.Deadline, string(j.Status), j.CreatedAt, j.UpdatedAt,
	))
	if err != nil {
		return domainjob.Job{}, postgres.Classify("inserting job", err)
	}
	return created, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domainjob.Job, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return domainjob.Job{}, postgres.Classify(fmt.Sprintf("job %s", id), err)
	}
	return j, nil
}

func (r *Repository) List(ctx context.Context, filters domainjob.ListFilters) ([]domainjob.Job, error) {
	query := `SELECT ` + columns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filters.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*filters.Status))
		argIdx++
	}

	if filters.OldestFirst {
		query += " ORDER BY created_at ASC, id"
	} else {
		query += " ORDER BY created_at DESC, id"
	}
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.Classify("listing jobs", err)
	}
	defer rows.Close()

	jobs := []domainjob.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, postgres.Classify("scanning job row", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Classify("listing jobs", err)
	}
	return jobs, nil
}

// UpdateStatus moves a job to `to`. With a non-empty from the write is a compare-and-set:
// a job in any other status is left alone and the call reports a conflict.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, to domainjob.Status, from ...domainjob.Status) error {
	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`
	args := []interface{}{string(to), now, id}
	if len(from) > 0 {
		query += ` AND status = ANY($4)`
		args = append(args, postgres.Strings(from))
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return postgres.Classify("updating job status", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if err != nil {
		return postgres.Classify(fmt.Sprintf("job %s", id), err)
	}
	return fmt.Errorf("job %s is %s, want one of %v: %w", id, current, from, apperr.ErrConflict)
}

func (r *Repository) CountByStatus(ctx context.Context) (map[domainjob.Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, postgres.Classify("counting jobs", err)
	}
	defer rows.Close()

	out := make(map[domainjob.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, postgres.Classify("scanning job count", err)
		}
		out[domainjob.Status(status)] = n
	}
	return out, postgres.Classify("counting jobs", rows.Err())
}

func scanJob(row pgx.Row) (domainjob.Job, error) {
	var j domainjob.Job
	err := row.Scan(
		&j.ID, &j.Title, &j.Description, &j.Category, &j.Tags, &j.SkillLevel,
		&j.MaxBudget, &j.Deadline, &j.Status, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return domainjob.Job{}, err
	}
	if j.Tags == nil {
		j.Tags = []string{}
	}
	j.CreatedAt, j.UpdatedAt = j.CreatedAt.UTC(), j.UpdatedAt.UTC()
	if j.Deadline != nil {
		d := j.Deadline.UTC()
		j.Deadline = &d
	}
	return j, nil
}
