package distribution

type WorkStatus string

const (
	StatusAssigned  WorkStatus = "assigned"
	StatusWorking   WorkStatus = "working"
	StatusCompleted WorkStatus = "completed"
	StatusFailed    WorkStatus = "failed"
	StatusCancelled WorkStatus = "cancelled"
	StatusTimeout   WorkStatus = "timeout"
)

// Working → Working carries progress updates.
var validTransitions = map[WorkStatus][]WorkStatus{
	StatusAssigned:  {StatusWorking, StatusTimeout, StatusCancelled},
	StatusWorking:   {StatusWorking, StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimeout:   {},
}

func (s WorkStatus) CanTransitionTo(target WorkStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s WorkStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// SourcesOf returns every status that may transition into target. Stores use it as the
// compare-and-set guard for an update.
func SourcesOf(target WorkStatus) []WorkStatus {
	var out []WorkStatus
	for _, from := range []WorkStatus{StatusAssigned, StatusWorking, StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout} {
		if from.CanTransitionTo(target) {
			out = append(out, from)
		}
	}
	return out
}

// Open lists the non-terminal statuses.
func Open() []WorkStatus { return []WorkStatus{StatusAssigned, StatusWorking} }
