package workflow

import (
	"fmt"

	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// BuildApprovalStateMachine creates a state machine for a matrix with the given number of levels.
// PENDING_APPROVAL_Lk advances to Lk+1 on approve, and the last level approves the request.
func BuildApprovalStateMachine(levels int, initialState domainwf.State) (domainwf.StateMachine, error) {
	if levels < 1 {
		return nil, fmt.Errorf("%w: matrix has %d levels", domainwf.ErrNoApprovalMatrix, levels)
	}
	if level, ok := initialState.PendingLevel(); ok && level > levels {
		return nil, fmt.Errorf("%w: %s is beyond a %d level matrix", domainwf.ErrInvalidState, initialState, levels)
	}

	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StateDraft).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted)

	builder.Configure(domainwf.StateSubmitted).
		Permit(domainwf.TriggerRoute, domainwf.PendingState(1))

	builder.ConfigureLevels(levels, func(k int, c domainwf.StateConfiguration) {
		next := domainwf.StateApproved
		if k < levels {
			next = domainwf.PendingState(k + 1)
		}
		c.Permit(domainwf.TriggerApprove, next).
			Permit(domainwf.TriggerReject, domainwf.StateRejected).
			Permit(domainwf.TriggerRequestChanges, domainwf.StateChangesRequested)
	})

	// resubmission restarts at level 1
	builder.Configure(domainwf.StateChangesRequested).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted)

	// APPROVED and REJECTED have no outgoing edges
	return builder.Build(initialState)
}
