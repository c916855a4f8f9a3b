package event

// Type identifies the type of domain event
type Type string

const (
	TypeExpenseSaved     Type = "expense.saved"
	TypeReportSubmitted  Type = "report.submitted"
	TypeApprovalDecided  Type = "approval.decided"
	TypeStatusChanged    Type = "approval.status_changed"
	TypeApproverAdded    Type = "approval.approver_added"
	TypeApproversMissing Type = "approval.approvers_missing"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExpenseSaved,
		TypeReportSubmitted,
		TypeApprovalDecided,
		TypeStatusChanged,
		TypeApproverAdded,
		TypeApproversMissing:
		return true
	default:
		return false
	}
}
