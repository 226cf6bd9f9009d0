package workflow

import "github.com/garyjia/budget-approval/internal/domain/entity"

// State is a status value of either an approval request or an approval level record.
// Request and level machines share the value space ("approved", "rejected", "completed").
type State string

const (
	// Request states
	StateDraft      State = entity.RequestStatusDraft
	StateSubmitted  State = entity.RequestStatusSubmitted
	StateInProgress State = entity.RequestStatusInProgress
	StateApproved   State = entity.RequestStatusApproved
	StateRejected   State = entity.RequestStatusRejected
	StateCompleted  State = entity.RequestStatusCompleted

	// Level-only state
	StatePending State = entity.LevelStatusPending
)

var validStates = map[State]bool{
	StateDraft:      true,
	StateSubmitted:  true,
	StateInProgress: true,
	StateApproved:   true,
	StateRejected:   true,
	StateCompleted:  true,
	StatePending:    true,
}

var terminalStates = map[State]bool{
	StateRejected:  true,
	StateCompleted: true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known request or level status
func (s State) IsValid() bool {
	return validStates[s]
}
