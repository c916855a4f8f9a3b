package entity

import "time"

// Rollup dimensions supported by the dashboard readers
const (
	DimensionDepartment = "department"
	DimensionProject    = "project"
	DimensionCostCentre = "cost_centre"
)

// UnassignedBucket is used when an expense has no value for the requested dimension
const UnassignedBucket = "Unassigned"

// SpendRow is one raw aggregation row before currency normalisation
type SpendRow struct {
	Key      string  `json:"key"`
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
	Count    int     `json:"count"`
}

// SpendBucket is a rollup bucket with amounts normalised to the base currency
type SpendBucket struct {
	Key          string  `json:"key"`
	AmountINR    float64 `json:"amount_inr"`
	ExpenseCount int     `json:"expense_count"`
}

// SpendRollup groups spend for one dimension over a date range
type SpendRollup struct {
	CompanyID int64         `json:"company_id"`
	Dimension string        `json:"dimension"`
	From      time.Time     `json:"from"`
	To        time.Time     `json:"to"`
	Buckets   []SpendBucket `json:"buckets"`
	TotalINR  float64       `json:"total_inr"`
}

// TrendPoint is one month in a spend trend series
type TrendPoint struct {
	Month         string   `json:"month"`
	AmountINR     float64  `json:"amount_inr"`
	ExpenseCount  int      `json:"expense_count"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
}

// DashboardSummary bundles all rollups plus the trend series for a company
type DashboardSummary struct {
	CompanyID    int64        `json:"company_id"`
	GeneratedAt  time.Time    `json:"generated_at"`
	ByDepartment SpendRollup  `json:"by_department"`
	ByProject    SpendRollup  `json:"by_project"`
	ByCostCentre SpendRollup  `json:"by_cost_centre"`
	Trend        []TrendPoint `json:"trend"`
}

// ExchangeRate is the INR value of one unit of Currency
type ExchangeRate struct {
	Currency  string    `json:"currency"`
	RateToINR float64   `json:"rate_to_inr"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReceiptData is what the OCR parser extracts from a receipt image or PDF
type ReceiptData struct {
	Vendor      string   `json:"vendor"`
	Amount      float64  `json:"amount"`
	Currency    string   `json:"currency"`
	ExpenseDate string   `json:"expense_date"`
	InvoiceID   string   `json:"invoice_id"`
	InvoiceDate string   `json:"invoice_date"`
	Category    string   `json:"category"`
	Confidence  float64  `json:"confidence"`
	Warnings    []string `json:"warnings,omitempty"`
}
