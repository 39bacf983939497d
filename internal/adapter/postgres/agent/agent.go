package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyang/job-dispatch/internal/adapter/postgres"
	"github.com/alanyang/job-dispatch/internal/apperr"
	domainagent "github.com/alanyang/job-dispatch/internal/domain/agent"
	domaindist "github.com/alanyang/job-dispatch/internal/domain/distribution"
)

const columns = `id, name, tags, skill, reputation, success_rate, total_jobs_completed,
	is_active, auto_accept, address, is_free, price, created_at`

// Repository implements both port/agent.Repository and port/agent.CandidateReader.
// [LSP] Both interfaces are satisfied; consumers depend only on the interface they need.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, a domainagent.Agent) (domainagent.Agent, error) {
	query := `
		INSERT INTO agents (` + columns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING ` + columns

	if a.Tags == nil {
		a.Tags = []string{}
	}
	created, err := scanAgent(r.pool.QueryRow(ctx, query,
		a.ID, a.Name, a.Tags, string(a.Skill), a.Reputation, a.SuccessRate, a.TotalJobsCompleted,
		a.IsActive, a.AutoAccept, a.Address, a.IsFree, a.Price, a.CreatedAt,
	))
	if err != nil {
		return domainagent.Agent{}, postgres.Classify("inserting agent", err)
	}
	return created, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domainagent.Agent, error) {
	a, err := scanAgent(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM agents WHERE id = $1`, id))
	if err != nil {
		return domainagent.Agent{}, postgres.Classify(fmt.Sprintf("agent %s", id), err)
	}
	return a, nil
}

// List returns agents in registration order.
func (r *Repository) List(ctx context.Context, filters domainagent.ListFilters) ([]domainagent.Agent, error) {
	query := `SELECT ` + columns + ` FROM agents WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filters.IsActive != nil {
		query += fmt.Sprintf(" AND is_active = $%d", argIdx)
		args = append(args, *filters.IsActive)
		argIdx++
	}
	if filters.AutoAccept != nil {
		query += fmt.Sprintf(" AND auto_accept = $%d", argIdx)
		args = append(args, *filters.AutoAccept)
	}
	query += " ORDER BY created_at, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.Classify("listing agents", err)
	}
	defer rows.Close()

	agents := []domainagent.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, postgres.Classify("scanning agent row", err)
		}
		agents = append(agents, a)
	}
	return agents, postgres.Classify("listing agents", rows.Err())
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE agents SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return postgres.Classify("updating agent active flag", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// UpdateStats mirrors the performance aggregate onto the agent profile.
func (r *Repository) UpdateStats(ctx context.Context, id uuid.UUID, totalCompleted int, successRate float64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET total_jobs_completed = $1, success_rate = $2 WHERE id = $3`,
		totalCompleted, successRate, id)
	if err != nil {
		return postgres.Classify("updating agent stats", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// ListCandidates returns active auto-accepting agents in registration order, each with its
// open assignment count and the number of assignments it received since `since`.
func (r *Repository) ListCandidates(ctx context.Context, since time.Time) ([]domainagent.Candidate, error) {
	query := `
		SELECT a.id, a.name, a.tags, a.skill, a.reputation, a.success_rate, a.total_jobs_completed,
			a.is_active, a.auto_accept, a.address, a.is_free, a.price, a.created_at,
			COUNT(aa.agent_id) FILTER (WHERE aa.work_status = ANY($1)) AS active_assignments,
			COUNT(aa.agent_id) FILTER (WHERE aa.assigned_at >= $2) AS recent_assignments
		FROM agents a
		LEFT JOIN agent_assignments aa ON aa.agent_id = a.id
		WHERE a.is_active AND a.auto_accept
		GROUP BY a.id
		ORDER BY a.created_at, a.id`

	rows, err := r.pool.Query(ctx, query, postgres.Strings(domaindist.Open()), since)
	if err != nil {
		return nil, postgres.Classify("listing candidates", err)
	}
	defer rows.Close()

	out := []domainagent.Candidate{}
	for rows.Next() {
		var c domainagent.Candidate
		a := &c.Agent
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Tags, &a.Skill, &a.Reputation, &a.SuccessRate, &a.TotalJobsCompleted,
			&a.IsActive, &a.AutoAccept, &a.Address, &a.IsFree, &a.Price, &a.CreatedAt,
			&c.ActiveAssignments, &c.RecentAssignments,
		); err != nil {
			return nil, postgres.Classify("scanning candidate row", err)
		}
		normalize(a)
		out = append(out, c)
	}
	return out, postgres.Classify("listing candidates", rows.Err())
}

func scanAgent(row pgx.Row) (domainagent.Agent, error) {
	var a domainagent.Agent
	if err := row.Scan(
		&a.ID, &a.Name, &a.Tags, &a.Skill, &a.Reputation, &a.SuccessRate, &a.TotalJobsCompleted,
		&a.IsActive, &a.AutoAccept, &a.Address, &a.IsFree, &a.Price, &a.CreatedAt,
	); err != nil {
		return domainagent.Agent{}, err
	}
	normalize(&a)
	return a, nil
}

func normalize(a *domainagent.Agent) {
	if a.Tags == nil {
		a.Tags = []string{}
	}
	a.CreatedAt = a.CreatedAt.UTC()
}
