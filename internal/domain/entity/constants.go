package entity

// Expense status constants
const (
	ExpenseStatusDraft     = "DRAFT"
	ExpenseStatusSubmitted = "SUBMITTED"
	ExpenseStatusApproved  = "APPROVED"
	ExpenseStatusRejected  = "REJECTED"
	ExpenseStatusCancelled = "CANCELLED"
)

// Overall approval instance status constants
const (
	ApprovalStatusPending          = "PENDING"
	ApprovalStatusApproved         = "APPROVED"
	ApprovalStatusRejected         = "REJECTED"
	ApprovalStatusChangesRequested = "CHANGES_REQUESTED"
)

// Approver decision constants
const (
	DecisionApprove          = "approve"
	DecisionReject           = "reject"
	DecisionChangesRequested = "changes_requested"
)

// Role labels recorded on decisions by approvers not matched through a company role
const (
	ApproverRoleNamed      = "named_approver"
	ApproverRoleAdditional = "additional_approver"
)

// Request types that can run through an approval matrix
const (
	RequestTypeExpenseReport = "EXPENSE_REPORT"
)

// Base currency used by the aggregation readers
const BaseCurrency = "INR"

// IsValidDecision reports whether d is one of the supported approver decisions
func IsValidDecision(d string) bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionChangesRequested:
		return true
	default:
		return false
	}
}

// IsExcludedFromDuplicateSearch reports whether an expense or report in this status is ignored as a duplicate candidate
func IsExcludedFromDuplicateSearch(status string) bool {
	return status == ExpenseStatusRejected || status == ExpenseStatusCancelled
}
