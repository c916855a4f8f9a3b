package entity

import "time"

// DuplicateFlag classifies how strongly an expense resembles another one in the same company
type DuplicateFlag string

const (
	DuplicatePotential DuplicateFlag = "POTENTIAL_DUPLICATE"
	DuplicateStrong    DuplicateFlag = "STRONG_DUPLICATE"
)

// Expense represents a single spend line item.
// DuplicateFlag and DuplicateReason are advisory and never gate persistence or submission.
type Expense struct {
	ID               int64          `json:"id"`
	UserID           int64          `json:"user_id"`
	ReportID         *int64         `json:"report_id,omitempty"`
	Vendor           string         `json:"vendor"`
	Amount           float64        `json:"amount"`
	Currency         string         `json:"currency"`
	OriginalAmount   *float64       `json:"original_amount,omitempty"`
	OriginalCurrency string         `json:"original_currency,omitempty"`
	ExpenseDate      time.Time      `json:"expense_date"`
	InvoiceID        string         `json:"invoice_id,omitempty"`
	InvoiceDate      *time.Time     `json:"invoice_date,omitempty"`
	Status           string         `json:"status"`
	Category         string         `json:"category,omitempty"`
	Project          string         `json:"project,omitempty"`
	CostCentre       string         `json:"cost_centre,omitempty"`
	ReceiptPath      string         `json:"receipt_path,omitempty"`
	DuplicateFlag    *DuplicateFlag `json:"duplicate_flag,omitempty"`
	DuplicateReason  *string        `json:"duplicate_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ComparisonDate returns the invoice date when present, otherwise the expense date
func (e *Expense) ComparisonDate() time.Time {
	if e.InvoiceDate != nil && !e.InvoiceDate.IsZero() {
		return *e.InvoiceDate
	}
	return e.ExpenseDate
}

// ComparisonAmount prefers the pre-conversion amount so cross-currency copies of one charge still match
func (e *Expense) ComparisonAmount() float64 {
	if e.OriginalAmount != nil {
		return *e.OriginalAmount
	}
	return e.Amount
}

// SetDuplicate stores a classification result on the expense; a nil flag clears both fields
func (e *Expense) SetDuplicate(flag *DuplicateFlag, reason *string) {
	e.DuplicateFlag = flag
	e.DuplicateReason = reason
	if flag == nil {
		e.DuplicateReason = nil
	}
}

// IsEditable reports whether the owner may still change the expense
func (e *Expense) IsEditable() bool {
	return e.Status == ExpenseStatusDraft
}
