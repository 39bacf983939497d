package distribution

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyang/job-dispatch/internal/adapter/postgres"
	"github.com/alanyang/job-dispatch/internal/apperr"
	domaindist "github.com/alanyang/job-dispatch/internal/domain/distribution"
	domainjob "github.com/alanyang/job-dispatch/internal/domain/job"
)

const (
	recordColumns = `id, job_id, job_name, criteria, total_agents, assigned_count, response_count,
		winning_agent_id, winning_agent_name, deadline, created_at`

	assignmentColumns = `distribution_id, agent_id, agent_name, agent_address, work_status, assigned_at,
		started_at, completed_at, progress, execution_result, error_message, execution_time_ms, retry_count`

	performanceColumns = `agent_id, total_jobs, completed_jobs, failed_jobs, avg_execution_time_ms, success_rate, updated_at`
)

// Repository implements port/distribution.Repository, PerformanceRepository and LogRepository.
// Every multi-row state change runs in a single transaction.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Open inserts the record and its assignments and moves the job from Open to Distributed,
// all or nothing. A second distribution for the same job, an agent listed twice or an agent
// that already holds an open assignment is a conflict.
func (r *Repository) Open(ctx context.Context, rec domaindist.Record, assignments []domaindist.Assignment) (domaindist.Record, error) {
	criteria, err := json.Marshal(rec.Criteria)
	if err != nil {
		return domaindist.Record{}, fmt.Errorf("marshaling criteria: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domaindist.Record{}, postgres.Classify("open distribution: begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(domainjob.StatusDistributed), now, rec.JobID, string(domainjob.StatusOpen))
	if err != nil {
		return domaindist.Record{}, postgres.Classify("open distribution: update job", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		if err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, rec.JobID).Scan(&status); err != nil {
			return domaindist.Record{}, postgres.Classify(fmt.Sprintf("open distribution: job %s", rec.JobID), err)
		}
		return domaindist.Record{}, fmt.Errorf("open distribution: job %s is %s: %w", rec.JobID, status, apperr.ErrConflict)
	}

	created, err := scanRecord(tx.QueryRow(ctx, `
		INSERT INTO distributions (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,0,NULL,'',$7,$8)
		RETURNING `+recordColumns,
		rec.ID, rec.JobID, rec.JobName, criteria, len(assignments), len(assignments), rec.Deadline, rec.CreatedAt,
	))
	if err != nil {
		return domaindist.Record{}, postgres.Classify("open distribution: insert record", err)
	}

	rows := make([][]any, len(assignments))
	for i, a := range assignments {
		rows[i] = []any{
			created.ID, a.AgentID, i, a.AgentName, a.AgentAddress, string(a.WorkStatus), a.AssignedAt,
			a.StartedAt, a.CompletedAt, a.Progress, a.ExecutionResult, a.ErrorMessage, a.ExecutionTimeMs, a.RetryCount,
		}
	}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"agent_assignments"}, []string{
		"distribution_id", "agent_id", "seq", "agent_name", "agent_address", "work_status", "assigned_at",
		"started_at", "completed_at", "progress", "execution_result", "error_message", "execution_time_ms", "retry_count",
	}, pgx.CopyFromRows(rows))
	if err != nil {
		return domaindist.Record{}, postgres.Classify("open distribution: insert assignments", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domaindist.Record{}, postgres.Classify("open distribution: commit", err)
	}
	return created, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domaindist.Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM distributions WHERE id = $1`, id))
	if err != nil {
		return domaindist.Record{}, postgres.Classify(fmt.Sprintf("distribution %s", id), err)
	}
	return rec, nil
}

func (r *Repository) GetByJobID(ctx context.Context, jobID uuid.UUID) (domaindist.Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM distributions WHERE job_id = $1`, jobID))
	if err != nil {
		return domaindist.Record{}, postgres.Classify(fmt.Sprintf("distribution for job %s", jobID), err)
	}
	return rec, nil
}

// ListAssignments returns the legs in the order they were offered.
func (r *Repository) ListAssignments(ctx context.Context, distributionID uuid.UUID) ([]domaindist.Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+` FROM agent_assignments
		WHERE distribution_id = $1
		ORDER BY assigned_at, seq`, distributionID)
	if err != nil {
		return nil, postgres.Classify("listing assignments", err)
	}
	out, err := collectAssignments(rows)
	if err != nil {
		return nil, postgres.Classify("listing assignments", err)
	}
	if len(out) == 0 {
		if _, err := r.GetByID(ctx, distributionID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) GetAssignment(ctx context.Context, key domaindist.Key) (domaindist.Assignment, error) {
	a, err := scanAssignment(r.pool.QueryRow(ctx, `
		SELECT `+assignmentColumns+` FROM agent_assignments
		WHERE distribution_id = $1 AND agent_id = $2`, key.DistributionID, key.AgentID))
	if err != nil {
		return domaindist.Assignment{}, postgres.Classify(fmt.Sprintf("assignment %s", key.TaskID()), err)
	}
	return a, nil
}

// UpdateAssignment applies patch under a row lock. With a non-empty from the current status
// must be one of them, otherwise nothing is written and the call reports a conflict.
func (r *Repository) UpdateAssignment(ctx context.Context, key domaindist.Key, from []domaindist.WorkStatus, patch domaindist.Patch) (domaindist.Assignment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domaindist.Assignment{}, postgres.Classify("update assignment: begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := scanAssignment(tx.QueryRow(ctx, `
		SELECT `+assignmentColumns+` FROM agent_assignments
		WHERE distribution_id = $1 AND agent_id = $2
		FOR UPDATE`, key.DistributionID, key.AgentID))
	if err != nil {
		return domaindist.Assignment{}, postgres.Classify(fmt.Sprintf("assignment %s", key.TaskID()), err)
	}
	if len(from) > 0 && !slices.Contains(from, a.WorkStatus) {
		return domaindist.Assignment{}, fmt.Errorf("assignment %s is %s: %w", key.TaskID(), a.WorkStatus, apperr.ErrConflict)
	}

	a.Apply(patch, time.Now().UTC())
	_, err = tx.Exec(ctx, `
		UPDATE agent_assignments SET
			work_status = $3, started_at = $4, completed_at = $5, progress = $6,
			execution_result = $7, error_message = $8, execution_time_ms = $9, retry_count = $10
		WHERE distribution_id = $1 AND agent_id = $2`,
		key.DistributionID, key.AgentID, string(a.WorkStatus), a.StartedAt, a.CompletedAt, a.Progress,
		a.ExecutionResult, a.ErrorMessage, a.ExecutionTimeMs, a.RetryCount)
	if err != nil {
		return domaindist.Assignment{}, postgres.Classify("update assignment", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domaindist.Assignment{}, postgres.Classify("update assignment: commit", err)
	}
	return a, nil
}

// RefreshResponseCount recomputes the number of legs that ever started. The stored value never
// decreases.
func (r *Repository) RefreshResponseCount(ctx context.Context, distributionID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		UPDATE distributions d SET response_count = GREATEST(d.response_count, (
			SELECT COUNT(*) FROM agent_assignments aa
			WHERE aa.distribution_id = d.id AND aa.started_at IS NOT NULL))
		WHERE d.id = $1
		RETURNING d.response_count`, distributionID).Scan(&n)
	if err != nil {
		return 0, postgres.Classify(fmt.Sprintf("distribution %s", distributionID), err)
	}
	return n, nil
}

// Resolve records the winner, completes the job and cancels every other open leg in one
// transaction. The distribution row is locked first, so concurrent resolutions serialize and
// the loser sees a conflict.
func (r *Repository) Resolve(ctx context.Context, res domaindist.Resolution) ([]domaindist.Assignment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, postgres.Classify("resolve: begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var jobID uuid.UUID
	var winner *uuid.UUID
	err = tx.QueryRow(ctx, `SELECT job_id, winning_agent_id FROM distributions WHERE id = $1 FOR UPDATE`,
		res.DistributionID).Scan(&jobID, &winner)
	if err != nil {
		return nil, postgres.Classify(fmt.Sprintf("resolve: distribution %s", res.DistributionID), err)
	}
	if winner != nil {
		return nil, fmt.Errorf("resolve: distribution %s already has a winner: %w", res.DistributionID, apperr.ErrConflict)
	}

	var status string
	err = tx.QueryRow(ctx, `SELECT work_status FROM agent_assignments WHERE distribution_id = $1 AND agent_id = $2`,
		res.DistributionID, res.WinnerAgentID).Scan(&status)
	if err != nil {
		key := domaindist.Key{DistributionID: res.DistributionID, AgentID: res.WinnerAgentID}
		return nil, postgres.Classify(fmt.Sprintf("resolve: assignment %s", key.TaskID()), err)
	}
	if domaindist.WorkStatus(status) != domaindist.StatusCompleted {
		return nil, fmt.Errorf("resolve: winner %s is %s: %w", res.WinnerAgentID, status, apperr.ErrConflict)
	}

	at := res.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	tag, err := tx.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3 AND status = ANY($4)`,
		string(domainjob.StatusCompleted), at, jobID, postgres.Strings(domainjob.Unresolved()))
	if err != nil {
		return nil, postgres.Classify("resolve: complete job", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("resolve: job %s is not awaiting a result: %w", jobID, apperr.ErrConflict)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE distributions SET winning_agent_id = $2, winning_agent_name = $3 WHERE id = $1`,
		res.DistributionID, res.WinnerAgentID, res.WinnerName); err != nil {
		return nil, postgres.Classify("resolve: record winner", err)
	}

	rows, err := tx.Query(ctx, `
		WITH cancelled AS (
			UPDATE agent_assignments SET work_status = $3, error_message = $4, completed_at = $5
			WHERE distribution_id = $1 AND agent_id <> $2 AND work_status = ANY($6)
			RETURNING *
		)
		SELECT `+assignmentColumns+` FROM cancelled ORDER BY assigned_at, seq`,
		res.DistributionID, res.WinnerAgentID, string(domaindist.StatusCancelled), res.Message, at,
		postgres.Strings(domaindist.Open()))
	if err != nil {
		return nil, postgres.Classify("resolve: cancel losers", err)
	}
	cancelled, err := collectAssignments(rows)
	if err != nil {
		return nil, postgres.Classify("resolve: cancel losers", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, postgres.Classify("resolve: commit", err)
	}
	return cancelled, nil
}

// ListExpired returns unresolved distributions past their deadline whose job still awaits a
// result, earliest deadline first.
func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]domaindist.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.id, d.job_id, d.job_name, d.criteria, d.total_agents, d.assigned_count, d.response_count,
			d.winning_agent_id, d.winning_agent_name, d.deadline, d.created_at
		FROM distributions d
		JOIN jobs j ON j.id = d.job_id
		WHERE d.winning_agent_id IS NULL AND d.deadline < $1 AND j.status = ANY($2)
		ORDER BY d.deadline`, now, postgres.Strings(domainjob.Unresolved()))
	if err != nil {
		return nil, postgres.Classify("listing expired distributions", err)
	}
	defer rows.Close()

	var out []domaindist.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, postgres.Classify("scanning distribution row", err)
		}
		out = append(out, rec)
	}
	return out, postgres.Classify("listing expired distributions", rows.Err())
}

func (r *Repository) CountAssignmentsByStatus(ctx context.Context) (map[domaindist.WorkStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT work_status, COUNT(*) FROM agent_assignments GROUP BY work_status`)
	if err != nil {
		return nil, postgres.Classify("counting assignments", err)
	}
	defer rows.Close()

	out := make(map[domaindist.WorkStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, postgres.Classify("scanning assignment count", err)
		}
		out[domaindist.WorkStatus(status)] = n
	}
	return out, postgres.Classify("counting assignments", rows.Err())
}

func scanRecord(row pgx.Row) (domaindist.Record, error) {
	var rec domaindist.Record
	var criteria []byte
	if err := row.Scan(
		&rec.ID, &rec.JobID, &rec.JobName, &criteria, &rec.TotalAgents, &rec.AssignedCount, &rec.ResponseCount,
		&rec.WinningAgentID, &rec.WinningAgentName, &rec.Deadline, &rec.CreatedAt,
	); err != nil {
		return domaindist.Record{}, err
	}
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &rec.Criteria); err != nil {
			return domaindist.Record{}, fmt.Errorf("unmarshaling criteria: %w", err)
		}
	}
	if rec.Criteria.Tags == nil {
		rec.Criteria.Tags = []string{}
	}
	rec.Deadline, rec.CreatedAt = rec.Deadline.UTC(), rec.CreatedAt.UTC()
	return rec, nil
}

func scanAssignment(row pgx.Row) (domaindist.Assignment, error) {
	var a domaindist.Assignment
	if err := row.Scan(
		&a.DistributionID, &a.AgentID, &a.AgentName, &a.AgentAddress, &a.WorkStatus, &a.AssignedAt,
		&a.StartedAt, &a.CompletedAt, &a.Progress, &a.ExecutionResult, &a.ErrorMessage, &a.ExecutionTimeMs, &a.RetryCount,
	); err != nil {
		return domaindist.Assignment{}, err
	}
	a.AssignedAt = a.AssignedAt.UTC()
	a.StartedAt = utcPtr(a.StartedAt)
	a.CompletedAt = utcPtr(a.CompletedAt)
	return a, nil
}

func collectAssignments(rows pgx.Rows) ([]domaindist.Assignment, error) {
	defer rows.Close()
	out := []domaindist.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
