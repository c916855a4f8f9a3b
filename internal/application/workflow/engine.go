package workflow

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DecisionRequest is one approver's decision on the level it is asked to decide
type DecisionRequest struct {
	RequestType string `json:"request_type"`
	RequestID   int64  `json:"request_id"`
	Level       int    `json:"level"`
	ApproverID  int64  `json:"approver_id"`
	Decision    string `json:"decision"`
	Comment     string `json:"comment"`
}

// Transition describes the state change an operation made
type Transition struct {
	Instance      *entity.ApprovalInstance `json:"instance"`
	PreviousState domainwf.State           `json:"previous_state"`
	NewState      domainwf.State           `json:"new_state"`
}

// ApprovalEngine runs requests through their company's approval matrix.
// Rejected operations return errors that domainwf.ReasonCode maps to a reason code;
// they never leave partial writes behind.
type ApprovalEngine interface {
	// Submit moves a DRAFT or CHANGES_REQUESTED report to PENDING_APPROVAL_L1, restarting the chain
	Submit(ctx context.Context, reportID, submitterID int64) (*Transition, error)

	// Decide records a decision at the current level and advances, approves, rejects or returns the request
	Decide(ctx context.Context, req DecisionRequest) (*Transition, error)

	// AddApprover makes userID an extra eligible approver for a pending level
	AddApprover(ctx context.Context, requestType string, requestID int64, level int, userID, addedBy int64) error

	// GetInstance returns the approval instance of a request with its full history
	GetInstance(ctx context.Context, requestType string, requestID int64) (*entity.ApprovalInstance, error)
}
