package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid for the requested action
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrWrongLevel is returned when a decision targets a level other than the current one
	ErrWrongLevel = errors.New("decision level is not the current level")

	// ErrUnauthorizedApprover is returned when the approver is not eligible for the level
	ErrUnauthorizedApprover = errors.New("approver is not authorized for this level")

	// ErrInvalidDecision is returned for decisions other than approve, reject or changes_requested
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrNotFound is returned when the request or its approval instance does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a concurrent decision already moved the instance
	ErrConflict = errors.New("concurrent modification")

	// ErrNoApprovalMatrix is returned when the company has no levels configured for the request type
	ErrNoApprovalMatrix = errors.New("no approval matrix configured")
)

// Reason codes reported to callers of rejected operations
const (
	ReasonInvalidState         = "INVALID_STATE"
	ReasonWrongLevel           = "WRONG_LEVEL"
	ReasonUnauthorizedApprover = "UNAUTHORIZED_APPROVER"
	ReasonInvalidDecision      = "INVALID_DECISION"
	ReasonNotFound             = "NOT_FOUND"
	ReasonConflict             = "CONFLICT"
	ReasonNoApprovalMatrix     = "NO_APPROVAL_MATRIX"
)

var reasonCodes = []struct {
	err  error
	code string
}{
	{ErrWrongLevel, ReasonWrongLevel},
	{ErrUnauthorizedApprover, ReasonUnauthorizedApprover},
	{ErrInvalidDecision, ReasonInvalidDecision},
	{ErrNotFound, ReasonNotFound},
	{ErrConflict, ReasonConflict},
	{ErrNoApprovalMatrix, ReasonNoApprovalMatrix},
	{ErrInvalidState, ReasonInvalidState},
	{ErrInvalidTransition, ReasonInvalidState},
	{ErrGuardFailed, ReasonInvalidState},
}

// ReasonCode returns the caller-facing reason code for err, or "" when err is not a validation error
func ReasonCode(err error) string {
	if err == nil {
		return ""
	}
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return ""
}

// IsValidationError reports whether err is a rejected operation rather than an internal failure
func IsValidationError(err error) bool {
	return ReasonCode(err) != ""
}
