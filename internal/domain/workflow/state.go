package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// State represents a position of a request in its approval lifecycle
type State string

const (
	StateDraft            State = "DRAFT"
	StateSubmitted        State = "SUBMITTED"
	StateApproved         State = "APPROVED"
	StateRejected         State = "REJECTED"
	StateChangesRequested State = "CHANGES_REQUESTED"
)

// pendingPrefix is followed by the 1-based level number, e.g. PENDING_APPROVAL_L2
const pendingPrefix = "PENDING_APPROVAL_L"

var fixedStates = map[State]bool{
	StateDraft:            true,
	StateSubmitted:        true,
	StateApproved:         true,
	StateRejected:         true,
	StateChangesRequested: true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
}

// PendingState returns the state of a request waiting on approval level k
func PendingState(level int) State {
	return State(fmt.Sprintf("%s%d", pendingPrefix, level))
}

// PendingLevel returns the level encoded in a PENDING_APPROVAL_Lk state
func (s State) PendingLevel() (int, bool) {
	raw, ok := strings.CutPrefix(string(s), pendingPrefix)
	if !ok || raw == "" {
		return 0, false
	}
	level, err := strconv.Atoi(raw)
	if err != nil || level < 1 || strconv.Itoa(level) != raw {
		return 0, false
	}
	return level, true
}

// IsPending returns true if the state is waiting on an approver decision
func (s State) IsPending() bool {
	_, ok := s.PendingLevel()
	return ok
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsEditable returns true if the owner may change the request and submit it again
func (s State) IsEditable() bool {
	return s == StateDraft || s == StateChangesRequested
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return fixedStates[s] || s.IsPending()
}
