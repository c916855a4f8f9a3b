package workflow

import "github.com/garyjia/expense-approval/internal/domain/entity"

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSubmit         Trigger = "SUBMIT"
	TriggerRoute          Trigger = "ROUTE"
	TriggerApprove        Trigger = "APPROVE"
	TriggerReject         Trigger = "REJECT"
	TriggerRequestChanges Trigger = "REQUEST_CHANGES"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// TriggerForDecision maps an approver decision onto the trigger it fires
func TriggerForDecision(decision string) (Trigger, bool) {
	switch decision {
	case entity.DecisionApprove:
		return TriggerApprove, true
	case entity.DecisionReject:
		return TriggerReject, true
	case entity.DecisionChangesRequested:
		return TriggerRequestChanges, true
	default:
		return "", false
	}
}
