package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/duplicate"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// DuplicateService flags expenses that look like copies of other expenses in the same company.
// Classification is advisory: lookup failures leave the expense unflagged instead of failing the caller.
type DuplicateService interface {
	// Check classifies e against the company's candidates. It never fails.
	Check(ctx context.Context, e *entity.Expense, companyID, excludeID int64) duplicate.Result

	// CheckForDuplicateBeforeSave classifies a draft that has not been persisted yet
	CheckForDuplicateBeforeSave(ctx context.Context, draft *entity.Expense, companyID, excludeID int64) duplicate.Result

	// RunDuplicateCheck re-classifies a stored expense and persists or clears its flag
	RunDuplicateCheck(ctx context.Context, expenseID int64) (duplicate.Result, error)

	// RunReportDuplicateCheck re-classifies every expense on a report, one at a time
	RunReportDuplicateCheck(ctx context.Context, reportID int64) error

	// RegisterHandlers subscribes the post-save reconciliation to expense and report events
	RegisterHandlers(d dispatcher.Dispatcher)
}

type duplicateServiceImpl struct {
	expenses port.ExpenseRepository
	users    port.UserDirectory
	logger   Logger
}

// NewDuplicateService creates a new DuplicateService
func NewDuplicateService(expenses port.ExpenseRepository, users port.UserDirectory, logger Logger) DuplicateService {
	return &duplicateServiceImpl{
		expenses: expenses,
		users:    users,
		logger:   logger,
	}
}

func (s *duplicateServiceImpl) Check(ctx context.Context, e *entity.Expense, companyID, excludeID int64) duplicate.Result {
	subject, ok := duplicate.NewSubject(e)
	if !ok {
		return duplicate.None()
	}

	candidates, err := s.expenses.FindDuplicateCandidates(ctx, port.CandidateQuery{
		CompanyID:   companyID,
		WindowStart: subject.WindowLo,
		WindowEnd:   subject.WindowHi,
		ExcludeID:   excludeID,
	})
	if err != nil {
		s.logger.Error("Duplicate candidate lookup failed, leaving expense unflagged",
			"expense_id", excludeID, "company_id", companyID, "error", err)
		return duplicate.None()
	}

	probe := *e
	probe.ID = excludeID
	return duplicate.Check(&probe, candidates)
}

func (s *duplicateServiceImpl) CheckForDuplicateBeforeSave(ctx context.Context, draft *entity.Expense, companyID, excludeID int64) duplicate.Result {
	result := s.Check(ctx, draft, companyID, excludeID)
	if result.IsDuplicate() {
		s.logger.Info("Draft expense flagged before save",
			"company_id", companyID, "flag", *result.Flag, "reason", *result.Reason, "candidate_id", result.CandidateID)
	}
	return result
}

func (s *duplicateServiceImpl) RunDuplicateCheck(ctx context.Context, expenseID int64) (duplicate.Result, error) {
	e, err := s.expenses.GetByID(ctx, expenseID)
	if err != nil {
		return duplicate.None(), fmt.Errorf("failed to load expense: %w", err)
	}
	if e == nil {
		return duplicate.None(), fmt.Errorf("%w: %d", ErrExpenseNotFound, expenseID)
	}

	owner, err := s.users.GetByID(ctx, e.UserID)
	if err != nil {
		return duplicate.None(), fmt.Errorf("failed to load expense owner: %w", err)
	}
	if owner == nil {
		return duplicate.None(), fmt.Errorf("%w: %d", ErrUserNotFound, e.UserID)
	}

	result := s.Check(ctx, e, owner.CompanyID, e.ID)
	if sameClassification(e, result) {
		return result, nil
	}

	if err := s.expenses.UpdateDuplicateFlag(ctx, e.ID, result.Flag, result.Reason); err != nil {
		return result, fmt.Errorf("failed to store duplicate flag: %w", err)
	}

	if result.IsDuplicate() {
		s.logger.Info("Expense flagged as duplicate",
			"expense_id", e.ID, "flag", *result.Flag, "reason", *result.Reason, "candidate_id", result.CandidateID)
	} else {
		s.logger.Info("Expense duplicate flag cleared", "expense_id", e.ID)
	}
	return result, nil
}

func (s *duplicateServiceImpl) RunReportDuplicateCheck(ctx context.Context, reportID int64) error {
	expenses, err := s.expenses.ListByReportID(ctx, reportID)
	if err != nil {
		return fmt.Errorf("failed to list report expenses: %w", err)
	}

	flagged, failed := 0, 0
	for _, e := range expenses {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := s.RunDuplicateCheck(ctx, e.ID)
		if err != nil {
			failed++
			s.logger.Error("Duplicate check failed for report expense",
				"report_id", reportID, "expense_id", e.ID, "error", err)
			continue
		}
		if result.IsDuplicate() {
			flagged++
		}
	}

	s.logger.Info("Report duplicate check completed",
		"report_id", reportID, "expenses", len(expenses), "flagged", flagged, "failed", failed)
	return nil
}

func (s *duplicateServiceImpl) RegisterHandlers(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeExpenseSaved, "duplicate.reconcile_expense", func(ctx context.Context, evt *event.Event) error {
		_, err := s.RunDuplicateCheck(ctx, evt.AggregateID)
		return err
	})
	d.SubscribeNamed(event.TypeReportSubmitted, "duplicate.check_report", func(ctx context.Context, evt *event.Event) error {
		return s.RunReportDuplicateCheck(ctx, evt.AggregateID)
	})
}

func sameClassification(e *entity.Expense, r duplicate.Result) bool {
	if e.DuplicateFlag == nil || r.Flag == nil {
		return e.DuplicateFlag == nil && r.Flag == nil
	}
	return *e.DuplicateFlag == *r.Flag && e.DuplicateReason != nil && *e.DuplicateReason == *r.Reason
}
