package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/duplicate"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// ExpenseService owns the expense write path and its duplicate hooks
type ExpenseService interface {
	// Create runs the pre-save duplicate gate, stores the expense with its flag and schedules reconciliation
	Create(ctx context.Context, input *entity.Expense) (*entity.Expense, error)

	// Update applies input to a DRAFT expense, re-checks and schedules reconciliation
	Update(ctx context.Context, input *entity.Expense) (*entity.Expense, error)

	// Get returns one expense
	Get(ctx context.Context, id int64) (*entity.Expense, error)
}

type expenseServiceImpl struct {
	expenses   port.ExpenseRepository
	reports    port.ReportRepository
	users      port.UserDirectory
	duplicates DuplicateService
	converter  port.CurrencyConverter
	dispatcher dispatcher.Dispatcher
	logger     Logger
}

// ExpenseOption configures the expense service
type ExpenseOption func(*expenseServiceImpl)

// WithCurrencyConverter converts foreign-currency expenses into the base currency on save
func WithCurrencyConverter(c port.CurrencyConverter) ExpenseOption {
	return func(s *expenseServiceImpl) {
		s.converter = c
	}
}

// WithExpenseDispatcher publishes expense.saved after every write
func WithExpenseDispatcher(d dispatcher.Dispatcher) ExpenseOption {
	return func(s *expenseServiceImpl) {
		s.dispatcher = d
	}
}

// NewExpenseService creates a new ExpenseService
func NewExpenseService(
	expenses port.ExpenseRepository,
	reports port.ReportRepository,
	users port.UserDirectory,
	duplicates DuplicateService,
	logger Logger,
	opts ...ExpenseOption,
) ExpenseService {
	s := &expenseServiceImpl{
		expenses:   expenses,
		reports:    reports,
		users:      users,
		duplicates: duplicates,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *expenseServiceImpl) Create(ctx context.Context, input *entity.Expense) (*entity.Expense, error) {
	e := *input
	e.ID = 0
	e.Status = entity.ExpenseStatusDraft
	e.DuplicateFlag, e.DuplicateReason = nil, nil

	owner, err := s.owner(ctx, e.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.prepare(ctx, &e); err != nil {
		return nil, err
	}

	s.gate(ctx, &e, owner.CompanyID)

	if err := s.expenses.Create(ctx, &e); err != nil {
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}

	s.logger.Info("Expense created", "expense_id", e.ID, "user_id", e.UserID, "duplicate", e.DuplicateFlag != nil)
	s.publishSaved(ctx, &e, owner.CompanyID)
	return &e, nil
}

func (s *expenseServiceImpl) Update(ctx context.Context, input *entity.Expense) (*entity.Expense, error) {
	existing, err := s.expenses.GetByID(ctx, input.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load expense: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %d", ErrExpenseNotFound, input.ID)
	}
	if !existing.IsEditable() {
		return nil, fmt.Errorf("%w: status %s", ErrExpenseNotEditable, existing.Status)
	}

	owner, err := s.owner(ctx, existing.UserID)
	if err != nil {
		return nil, err
	}

	e := *existing
	e.ReportID = input.ReportID
	e.Vendor = input.Vendor
	e.Amount = input.Amount
	e.Currency = input.Currency
	e.OriginalAmount, e.OriginalCurrency = nil, ""
	e.ExpenseDate = input.ExpenseDate
	e.InvoiceID = input.InvoiceID
	e.InvoiceDate = input.InvoiceDate
	e.Category = input.Category
	e.Project = input.Project
	e.CostCentre = input.CostCentre
	if input.ReceiptPath != "" {
		e.ReceiptPath = input.ReceiptPath
	}

	if err := s.prepare(ctx, &e); err != nil {
		return nil, err
	}

	s.gate(ctx, &e, owner.CompanyID)

	if err := s.expenses.Update(ctx, &e); err != nil {
		return nil, fmt.Errorf("failed to update expense: %w", err)
	}

	s.logger.Info("Expense updated", "expense_id", e.ID, "duplicate", e.DuplicateFlag != nil)
	s.publishSaved(ctx, &e, owner.CompanyID)
	return &e, nil
}

func (s *expenseServiceImpl) Get(ctx context.Context, id int64) (*entity.Expense, error) {
	e, err := s.expenses.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load expense: %w", err)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %d", ErrExpenseNotFound, id)
	}
	return e, nil
}

func (s *expenseServiceImpl) owner(ctx context.Context, userID int64) (*entity.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	return u, nil
}

// prepare validates e and converts a foreign amount into the base currency,
// keeping the pre-conversion figure for duplicate comparison
func (s *expenseServiceImpl) prepare(ctx context.Context, e *entity.Expense) error {
	if err := s.checkReport(ctx, e); err != nil {
		return err
	}

	e.Vendor = utils.SanitizeString(e.Vendor)
	e.InvoiceID = utils.SanitizeString(e.InvoiceID)
	e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
	if e.Currency == "" {
		e.Currency = entity.BaseCurrency
	}

	if err := utils.ValidateAmount(e.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpense, err)
	}
	if err := utils.ValidateCurrency(e.Currency); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpense, err)
	}
	if e.ExpenseDate.IsZero() {
		return fmt.Errorf("%w: expense date is required", ErrInvalidExpense)
	}

	if e.Currency == entity.BaseCurrency || s.converter == nil {
		return nil
	}

	converted, err := s.converter.ConvertToINR(ctx, e.Amount, e.Currency)
	if err != nil {
		return fmt.Errorf("failed to convert %s amount: %w", e.Currency, err)
	}
	original := e.Amount
	e.OriginalAmount = &original
	e.OriginalCurrency = e.Currency
	e.Amount = converted
	e.Currency = entity.BaseCurrency
	return nil
}

// checkReport only lets an expense join a report its owner holds and can still edit
func (s *expenseServiceImpl) checkReport(ctx context.Context, e *entity.Expense) error {
	if e.ReportID == nil {
		return nil
	}

	report, err := s.reports.GetByID(ctx, *e.ReportID)
	if err != nil {
		return fmt.Errorf("failed to load report: %w", err)
	}
	if report == nil {
		return fmt.Errorf("%w: report %d does not exist", ErrInvalidExpense, *e.ReportID)
	}
	if report.UserID != e.UserID {
		return fmt.Errorf("%w: report %d belongs to another user", ErrInvalidExpense, report.ID)
	}

	switch domainwf.State(report.Status) {
	case domainwf.StateDraft, domainwf.StateChangesRequested:
		return nil
	default:
		return fmt.Errorf("%w: report %d is %s", ErrInvalidExpense, report.ID, report.Status)
	}
}

func (s *expenseServiceImpl) gate(ctx context.Context, e *entity.Expense, companyID int64) duplicate.Result {
	result := s.duplicates.CheckForDuplicateBeforeSave(ctx, e, companyID, e.ID)
	e.SetDuplicate(result.Flag, result.Reason)
	return result
}

func (s *expenseServiceImpl) publishSaved(ctx context.Context, e *entity.Expense, companyID int64) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeExpenseSaved, e.ID, map[string]interface{}{
		event.KeyCompanyID: companyID,
	}))
}
