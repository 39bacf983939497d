package distribution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alanyang/job-dispatch/internal/adapter/postgres"
	domaindist "github.com/alanyang/job-dispatch/internal/domain/distribution"
)

// RecordOutcome folds one terminal outcome into the agent's aggregate in a single upsert, so
// concurrent outcomes for the same agent never lose an increment. The running average covers
// successful completions only.
func (r *Repository) RecordOutcome(ctx context.Context, agentID uuid.UUID, success bool, executionTimeMs int64) (domaindist.Performance, error) {
	completed, failed, initialAvg, initialRate := 0, 1, 0.0, 0.0
	if success {
		completed, failed, initialAvg, initialRate = 1, 0, float64(executionTimeMs), 1
	}

	p, err := scanPerformance(r.pool.QueryRow(ctx, `
		INSERT INTO agent_performance AS p (`+performanceColumns+`)
		VALUES ($1, 1, $2, $3, $4, $5, $6)
		ON CONFLICT (agent_id) DO UPDATE SET
			total_jobs = p.total_jobs + 1,
			completed_jobs = p.completed_jobs + EXCLUDED.completed_jobs,
			failed_jobs = p.failed_jobs + EXCLUDED.failed_jobs,
			avg_execution_time_ms = CASE WHEN EXCLUDED.completed_jobs = 1
				THEN (p.avg_execution_time_ms * p.completed_jobs + $7) / (p.completed_jobs + 1)
				ELSE p.avg_execution_time_ms END,
			success_rate = (p.completed_jobs + EXCLUDED.completed_jobs)::float8 / (p.total_jobs + 1),
			updated_at = EXCLUDED.updated_at
		RETURNING `+performanceColumns,
		agentID, completed, failed, initialAvg, initialRate, time.Now().UTC(), float64(executionTimeMs),
	))
	if err != nil {
		return domaindist.Performance{}, postgres.Classify(fmt.Sprintf("record outcome for agent %s", agentID), err)
	}
	return p, nil
}

func (r *Repository) GetPerformance(ctx context.Context, agentID uuid.UUID) (domaindist.Performance, error) {
	p, err := scanPerformance(r.pool.QueryRow(ctx,
		`SELECT `+performanceColumns+` FROM agent_performance WHERE agent_id = $1`, agentID))
	if err != nil {
		return domaindist.Performance{}, postgres.Classify(fmt.Sprintf("performance for agent %s", agentID), err)
	}
	return p, nil
}

// TopPerformers orders by success rate, then completions. A non-positive limit returns everyone.
func (r *Repository) TopPerformers(ctx context.Context, limit int) ([]domaindist.Performance, error) {
	query := `SELECT ` + performanceColumns + ` FROM agent_performance
		ORDER BY success_rate DESC, completed_jobs DESC, agent_id`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.Classify("listing top performers", err)
	}
	defer rows.Close()

	out := []domaindist.Performance{}
	for rows.Next() {
		p, err := scanPerformance(rows)
		if err != nil {
			return nil, postgres.Classify("scanning performance row", err)
		}
		out = append(out, p)
	}
	return out, postgres.Classify("listing top performers", rows.Err())
}

func (r *Repository) AppendLog(ctx context.Context, e domaindist.LogEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshaling log payload: %w", err)
	}
	if e.Payload == nil {
		payload = []byte("{}")
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO execution_logs (id, job_id, distribution_id, agent_id, event_type, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.JobID, e.DistributionID, e.AgentID, e.EventType, payload, e.Timestamp)
	if err != nil {
		return postgres.Classify("appending execution log", err)
	}
	return nil
}

func (r *Repository) ListLogs(ctx context.Context, jobID uuid.UUID) ([]domaindist.LogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, distribution_id, agent_id, event_type, payload, created_at
		FROM execution_logs WHERE job_id = $1
		ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, postgres.Classify("listing execution logs", err)
	}
	defer rows.Close()

	out := []domaindist.LogEntry{}
	for rows.Next() {
		var e domaindist.LogEntry
		var distID, agentID *uuid.UUID
		var payload []byte
		if err := rows.Scan(&e.ID, &e.JobID, &distID, &agentID, &e.EventType, &payload, &e.Timestamp); err != nil {
			return nil, postgres.Classify("scanning execution log row", err)
		}
		if distID != nil {
			e.DistributionID = *distID
		}
		if agentID != nil {
			e.AgentID = *agentID
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("unmarshaling log payload: %w", err)
			}
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, postgres.Classify("listing execution logs", rows.Err())
}

func scanPerformance(row pgx.Row) (domaindist.Performance, error) {
	var p domaindist.Performance
	if err := row.Scan(
		&p.AgentID, &p.TotalJobs, &p.CompletedJobs, &p.FailedJobs, &p.AvgExecutionTimeMs, &p.SuccessRate, &p.UpdatedAt,
	); err != nil {
		return domaindist.Performance{}, err
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
