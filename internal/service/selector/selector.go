package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/domain/distribution"
	"github.com/alanyang/job-dispatch/internal/domain/event"
	"github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/metrics"
	"github.com/alanyang/job-dispatch/internal/observability"
	"github.com/alanyang/job-dispatch/internal/port/agentclient"
	portdist "github.com/alanyang/job-dispatch/internal/port/distribution"
	portbus "github.com/alanyang/job-dispatch/internal/port/eventbus"
	"github.com/alanyang/job-dispatch/internal/service/tracker"
)

type Strategy string

const (
	FirstCompleted Strategy = "first_completed"
	BestScored     Strategy = "best_scored"
)

// ParseStrategy accepts the strategy names case-insensitively. Empty means FirstCompleted.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FirstCompleted:
		return FirstCompleted, nil
	case BestScored:
		return BestScored, nil
	}
	return "", fmt.Errorf("%w: unknown selection strategy %q", apperr.ErrValidation, s)
}

const (
	completionBase  = 100.0
	maxSpeedBonus   = 50.0
	maxContentBonus = 20.0
	charsPerPoint   = 100.0
	msPerSpeedPoint = 60000.0
)

// ResultScore rates a completed result: a completion base, a speed bonus that reaches zero at
// 50 minutes and a content bonus that saturates at 2000 characters.
func ResultScore(a distribution.Assignment) float64 {
	speed := math.Max(0, maxSpeedBonus-float64(a.ExecutionTimeMs)/msPerSpeedPoint)
	content := math.Min(maxContentBonus, float64(utf8.RuneCountInString(a.ExecutionResult))/charsPerPoint)
	return completionBase + speed + content
}

// Pick chooses the winner among the Completed legs. Ties go to the earlier leg in list order.
func Pick(legs []distribution.Assignment, strategy Strategy) (distribution.Assignment, bool) {
	var (
		best  distribution.Assignment
		found bool
		score float64
	)
	for _, a := range legs {
		if a.WorkStatus != distribution.StatusCompleted {
			continue
		}
		switch strategy {
		case BestScored:
			s := ResultScore(a)
			if !found || s > score {
				best, score, found = a, s, true
			}
		default:
			if !found || completedBefore(a, best) {
				best, found = a, true
			}
		}
	}
	return best, found
}

func completedBefore(a, b distribution.Assignment) bool {
	switch {
	case a.CompletedAt == nil:
		return false
	case b.CompletedAt == nil:
		return true
	}
	return a.CompletedAt.Before(*b.CompletedAt)
}

// Selection reports what SelectWinner did.
type Selection struct {
	DistributionID  uuid.UUID                 `json:"distribution_id"`
	Strategy        Strategy                  `json:"strategy"`
	Resolved        bool                      `json:"resolved"`
	AlreadyResolved bool                      `json:"already_resolved"`
	Winner          *distribution.Assignment  `json:"winner,omitempty"`
	Cancelled       []distribution.Assignment `json:"cancelled,omitempty"`
}

type Service struct {
	repo    portdist.Repository
	tracker *tracker.Service
	client  agentclient.Client
	bus     portbus.EventBus
	metrics *metrics.Collector
}

func NewService(repo portdist.Repository, tr *tracker.Service, client agentclient.Client, bus portbus.EventBus, m *metrics.Collector) *Service {
	return &Service{repo: repo, tracker: tr, client: client, bus: bus, metrics: m}
}

// SelectWinner resolves a distribution. Without a Completed leg it does nothing. Resolution is
// one atomic store call; a distribution that already has a winner is reported, not re-resolved.
// Losing agents are then asked to cancel, best-effort.
func (s *Service) SelectWinner(ctx context.Context, distributionID uuid.UUID, strategy Strategy) (sel Selection, err error) {
	ctx, span := observability.StartSpan(ctx, "distribution.select",
		attribute.String("distribution.id", distributionID.String()),
		attribute.String("selection.strategy", string(strategy)))
	defer func() { observability.EndSpan(span, err) }()

	sel = Selection{DistributionID: distributionID, Strategy: strategy}

	rec, err := s.repo.GetByID(ctx, distributionID)
	if err != nil {
		return sel, fmt.Errorf("select winner: %w", err)
	}
	if rec.Resolved() {
		sel.AlreadyResolved = true
		return sel, nil
	}
	legs, err := s.repo.ListAssignments(ctx, distributionID)
	if err != nil {
		return sel, fmt.Errorf("select winner: %w", err)
	}
	winner, ok := Pick(legs, strategy)
	if !ok {
		slog.InfoContext(ctx, "no completed result to select", "distribution_id", distributionID)
		return sel, nil
	}

	cancelled, err := s.repo.Resolve(ctx, distribution.Resolution{
		DistributionID: distributionID,
		WinnerAgentID:  winner.AgentID,
		WinnerName:     winner.AgentName,
		Message:        distribution.CancelledMessage,
		At:             time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			if latest, getErr := s.repo.GetByID(ctx, distributionID); getErr == nil && latest.Resolved() {
				sel.AlreadyResolved = true
				return sel, nil
			}
		}
		return sel, fmt.Errorf("resolve distribution: %w", err)
	}

	sel.Resolved = true
	sel.Winner = &winner
	sel.Cancelled = cancelled

	s.metrics.DistributionResolved(string(strategy))
	s.metrics.JobOutcome(string(job.StatusCompleted))
	s.tracker.RecordResolved(ctx, cancelled)
	s.cancelLosers(ctx, cancelled)

	if err := s.bus.Publish(ctx, event.New(event.TypeDistributionResolved, distributionID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish DistributionResolved event", "distribution_id", distributionID, "error", err)
	}
	if err := s.bus.Publish(ctx, event.New(event.TypeJobCompleted, rec.JobID)); err != nil {
		slog.ErrorContext(ctx, "failed to publish JobCompleted event", "job_id", rec.JobID, "error", err)
	}
	slog.InfoContext(ctx, "winner selected",
		"distribution_id", distributionID, "job_id", rec.JobID,
		"agent_id", winner.AgentID, "strategy", strategy, "cancelled", len(cancelled))
	return sel, nil
}

// cancelLosers asks every cancelled agent to stop, in parallel. Failures are logged only.
func (s *Service) cancelLosers(ctx context.Context, cancelled []distribution.Assignment) {
	var g errgroup.Group
	for _, a := range cancelled {
		if a.AgentAddress == "" {
			continue
		}
		g.Go(func() error {
			if !s.client.Cancel(ctx, a.AgentAddress, a.Key().TaskID()) {
				slog.WarnContext(ctx, "agent did not acknowledge cancel", "task_id", a.Key().TaskID())
			}
			return nil
		})
	}
	_ = g.Wait()
}
