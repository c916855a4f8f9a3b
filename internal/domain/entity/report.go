package entity

import "time"

// ExpenseReport aggregates one user's expenses over a date range.
// Status holds the approval workflow state (see domain/workflow).
type ExpenseReport struct {
	ID          int64              `json:"id"`
	UserID      int64              `json:"user_id"`
	CompanyID   int64              `json:"company_id"`
	Name        string             `json:"name"`
	Status      string             `json:"status"`
	FromDate    time.Time          `json:"from_date"`
	ToDate      time.Time          `json:"to_date"`
	TotalAmount float64            `json:"total_amount"`
	Currency    string             `json:"currency"`
	Approvers   []ApproverDecision `json:"approvers,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ApproverDecision is the effective decision recorded for one approval level of a report
type ApproverDecision struct {
	Level      int       `json:"level"`
	ApproverID int64     `json:"approver_id"`
	Role       string    `json:"role,omitempty"`
	Decision   string    `json:"decision"`
	Comment    string    `json:"comment,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}
