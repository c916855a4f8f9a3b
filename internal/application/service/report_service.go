package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// ReportDetail is a report together with its expense lines
type ReportDetail struct {
	Report   *entity.ExpenseReport `json:"report"`
	Expenses []*entity.Expense     `json:"expenses"`
}

// ReportService creates expense reports and reads them back with their lines
type ReportService interface {
	Create(ctx context.Context, userID int64, name string, from, to time.Time) (*entity.ExpenseReport, error)
	Get(ctx context.Context, id int64) (*ReportDetail, error)
}

type reportServiceImpl struct {
	reports  port.ReportRepository
	expenses port.ExpenseRepository
	users    port.UserDirectory
	logger   Logger
}

// NewReportService creates a new ReportService
func NewReportService(reports port.ReportRepository, expenses port.ExpenseRepository, users port.UserDirectory, logger Logger) ReportService {
	return &reportServiceImpl{
		reports:  reports,
		expenses: expenses,
		users:    users,
		logger:   logger,
	}
}

func (s *reportServiceImpl) Create(ctx context.Context, userID int64, name string, from, to time.Time) (*entity.ExpenseReport, error) {
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if owner == nil {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, fmt.Errorf("%w: to is before from", ErrInvalidRange)
	}

	report := &entity.ExpenseReport{
		UserID:    owner.ID,
		CompanyID: owner.CompanyID,
		Name:      utils.SanitizeString(name),
		Status:    string(domainwf.StateDraft),
		FromDate:  from,
		ToDate:    to,
		Currency:  entity.BaseCurrency,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	s.logger.Info("Report created", "report_id", report.ID, "user_id", userID)
	return report, nil
}

// Get totals the report's lines in the base currency on read
func (s *reportServiceImpl) Get(ctx context.Context, id int64) (*ReportDetail, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	if report == nil {
		return nil, fmt.Errorf("%w: %d", ErrReportNotFound, id)
	}

	expenses, err := s.expenses.ListByReportID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load report expenses: %w", err)
	}

	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(decimal.NewFromFloat(e.Amount))
	}
	report.TotalAmount = total.Round(2).InexactFloat64()

	return &ReportDetail{Report: report, Expenses: expenses}, nil
}
