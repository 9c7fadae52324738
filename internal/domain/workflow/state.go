package workflow

// State represents a submission status in the approval lifecycle
type State string

const (
	StateDraft     State = "draft"
	StateSubmitted State = "submitted"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StatePaid      State = "paid"
)

var validStates = map[State]bool{
	StateDraft:     true,
	StateSubmitted: true,
	StateApproved:  true,
	StateRejected:  true,
	StatePaid:      true,
}

var terminalStates = map[State]bool{
	StateRejected: true,
	StatePaid:     true,
}

// ParseState converts a status string into a State
func ParseState(s string) (State, bool) {
	state := State(s)
	return state, state.IsValid()
}

// IsTerminal returns true if no further transitions leave the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known submission status
func (s State) IsValid() bool {
	return validStates[s]
}
