package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeJobSubmitted         Type = "job_submitted"
	TypeJobDistributed       Type = "job_distributed"
	TypeJobInProgress        Type = "job_in_progress"
	TypeJobCompleted         Type = "job_completed"
	TypeJobCancelled         Type = "job_cancelled"
	TypeJobExpired           Type = "job_expired"
	TypeAssignmentUpdated    Type = "assignment_updated"
	TypeDistributionResolved Type = "distribution_resolved"
	TypeAgentRegistered      Type = "agent_registered"
	TypeAgentUpdated         Type = "agent_updated"
)

// Channel is a domain-scoped NOTIFY channel.
// All event types within a domain share one LISTEN connection.
type Channel string

const (
	ChannelJob          Channel = "job"
	ChannelDistribution Channel = "distribution"
	ChannelAgent        Channel = "agent"
)

var typeToChannel = map[Type]Channel{
	TypeJobSubmitted:         ChannelJob,
	TypeJobDistributed:       ChannelJob,
	TypeJobInProgress:        ChannelJob,
	TypeJobCompleted:         ChannelJob,
	TypeJobCancelled:         ChannelJob,
	TypeJobExpired:           ChannelJob,
	TypeAssignmentUpdated:    ChannelDistribution,
	TypeDistributionResolved: ChannelDistribution,
	TypeAgentRegistered:      ChannelAgent,
	TypeAgentUpdated:         ChannelAgent,
}

// ChannelFor returns the domain channel for a given event type.
func ChannelFor(t Type) Channel { return typeToChannel[t] }

// Channels lists every domain channel.
func Channels() []Channel {
	return []Channel{ChannelJob, ChannelDistribution, ChannelAgent}
}

// Event carries identifiers only, not full state.
// Subscribers fetch fresh state from the appropriate repository.
// SubjectID is the second half of a composite key (the agent of an assignment), or uuid.Nil.
type Event struct {
	Type      Type      `json:"type"`
	EntityID  uuid.UUID `json:"entity_id"`
	SubjectID uuid.UUID `json:"subject_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func New(eventType Type, entityID uuid.UUID) Event {
	return Event{
		Type:      eventType,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
}

// NewFor builds an event about a composite-keyed entity.
func NewFor(eventType Type, entityID, subjectID uuid.UUID) Event {
	e := New(eventType, entityID)
	e.SubjectID = subjectID
	return e
}
