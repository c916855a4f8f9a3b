package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// CandidateQuery selects possible duplicates of one expense inside a company.
// An expense matches when its expense date or invoice date falls in [WindowStart, WindowEnd).
type CandidateQuery struct {
	CompanyID   int64
	WindowStart time.Time
	WindowEnd   time.Time
	ExcludeID   int64
}

// ExpenseRepository defines persistence operations for Expense
type ExpenseRepository interface {
	Create(ctx context.Context, expense *entity.Expense) error
	Update(ctx context.Context, expense *entity.Expense) error
	GetByID(ctx context.Context, id int64) (*entity.Expense, error)
	ListByReportID(ctx context.Context, reportID int64) ([]*entity.Expense, error)

	// FindDuplicateCandidates returns candidates ordered by creation time then id.
	// Rejected or cancelled expenses, and expenses on rejected or cancelled reports, are excluded.
	FindDuplicateCandidates(ctx context.Context, q CandidateQuery) ([]*entity.Expense, error)

	// UpdateDuplicateFlag stores or, with a nil flag, clears the duplicate classification
	UpdateDuplicateFlag(ctx context.Context, id int64, flag *entity.DuplicateFlag, reason *string) error

	// UpdateStatusByReport moves every expense of a report to status
	UpdateStatusByReport(ctx context.Context, reportID int64, status string) error
}

// ReportRepository defines persistence operations for ExpenseReport
type ReportRepository interface {
	Create(ctx context.Context, report *entity.ExpenseReport) error
	GetByID(ctx context.Context, id int64) (*entity.ExpenseReport, error)
	UpdateStatus(ctx context.Context, id int64, status string) error

	// UpsertApproverDecision keeps exactly one decision per (report, level)
	UpsertApproverDecision(ctx context.Context, reportID int64, decision entity.ApproverDecision) error

	// ClearApproverDecisions drops all decisions, used when a report is resubmitted
	ClearApproverDecisions(ctx context.Context, reportID int64) error
}

// ApprovalInstanceRepository defines persistence operations for ApprovalInstance and its history
type ApprovalInstanceRepository interface {
	Create(ctx context.Context, instance *entity.ApprovalInstance) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error)
	GetByRequest(ctx context.Context, requestType string, requestID int64) (*entity.ApprovalInstance, error)

	// UpdateIfVersion writes level, status and timestamps only when the stored version still equals
	// expectedVersion, then bumps the version. Returns workflow.ErrConflict when no row matched.
	UpdateIfVersion(ctx context.Context, instance *entity.ApprovalInstance, expectedVersion int64) error

	AppendDecision(ctx context.Context, decision *entity.LevelDecision) error
	SupersedeLevel(ctx context.Context, instanceID int64, level int) error
	SupersedeAll(ctx context.Context, instanceID int64) error
	ListHistory(ctx context.Context, instanceID int64) ([]entity.LevelDecision, error)

	AddExtraApprover(ctx context.Context, instanceID int64, level int, userID int64) error
	ListExtraApprovers(ctx context.Context, instanceID int64) (map[int][]int64, error)
}

// ApprovalMatrixRepository reads company approval configuration
type ApprovalMatrixRepository interface {
	// GetMatrix returns nil when the company has no levels for requestType
	GetMatrix(ctx context.Context, companyID int64, requestType string) (*entity.ApprovalMatrix, error)
}

// UserDirectory gives read access to users and their role assignments, scoped by company
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	ListActiveByIDs(ctx context.Context, companyID int64, ids []int64) ([]*entity.User, error)
	ListActiveByRoles(ctx context.Context, companyID int64, roleIDs []int64) ([]*entity.User, error)
	ListRoles(ctx context.Context, companyID int64, roleIDs []int64) ([]*entity.Role, error)
}

// InAppNotificationRepository writes and reads in-app notification records
type InAppNotificationRepository interface {
	Create(ctx context.Context, n *entity.InAppNotification) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*entity.InAppNotification, error)
	MarkRead(ctx context.Context, id, userID int64) error
}

// ExchangeRateRepository persists the latest known rate per currency
type ExchangeRateRepository interface {
	Upsert(ctx context.Context, rates []entity.ExchangeRate) error
	Get(ctx context.Context, currency string) (*entity.ExchangeRate, error)
	List(ctx context.Context) ([]entity.ExchangeRate, error)
}

// SpendRepository runs the read-only aggregation queries behind the dashboard
type SpendRepository interface {
	// SumByDimension groups non-rejected spend in [from, to) by dimension value and currency
	SumByDimension(ctx context.Context, companyID int64, dimension string, from, to time.Time) ([]entity.SpendRow, error)

	// SumByMonth groups non-rejected spend in [from, to) by YYYY-MM and currency
	SumByMonth(ctx context.Context, companyID int64, from, to time.Time) ([]entity.SpendRow, error)

	// ListCompanyIDs returns every company that has at least one expense, ascending
	ListCompanyIDs(ctx context.Context) ([]int64, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
