package workflow

// State is an expense's position in the approval lifecycle.
type State string

const (
	StatePending     State = "PENDING"
	StateUnderReview State = "UNDER_REVIEW"
	StateApproved    State = "APPROVED"
	StateRejected    State = "REJECTED"
)

var validStates = map[State]bool{
	StatePending:     true,
	StateUnderReview: true,
	StateApproved:    true,
	StateRejected:    true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
}

// IsTerminal returns true if no further transitions are allowed from s.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if s is a known lifecycle state.
func (s State) IsValid() bool {
	return validStates[s]
}

func (s State) String() string {
	return string(s)
}
