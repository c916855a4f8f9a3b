package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const expenseColumns = `
	e.id, e.user_id, e.report_id, e.vendor, e.amount, e.currency,
	e.original_amount, e.original_currency, e.expense_date, e.invoice_id, e.invoice_date,
	e.status, e.category, e.project, e.cost_centre, e.receipt_path,
	e.duplicate_flag, e.duplicate_reason, e.created_at, e.updated_at`

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ port.ExpenseRepository = (*ExpenseRepository)(nil)

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sql.DB, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new expense, including any duplicate classification already computed
func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	query := `
		INSERT INTO expenses (
			user_id, report_id, vendor, amount, currency,
			original_amount, original_currency, expense_date, invoice_id, invoice_date,
			status, category, project, cost_centre, receipt_path,
			duplicate_flag, duplicate_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = now
	if expense.Status == "" {
		expense.Status = entity.ExpenseStatusDraft
	}

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		expense.UserID,
		nullInt64(expense.ReportID),
		expense.Vendor,
		expense.Amount,
		expense.Currency,
		nullFloat64(expense.OriginalAmount),
		expense.OriginalCurrency,
		sqlite.FormatTime(expense.ExpenseDate),
		expense.InvoiceID,
		sqlite.NullTime(expense.InvoiceDate),
		expense.Status,
		expense.Category,
		expense.Project,
		expense.CostCentre,
		expense.ReceiptPath,
		nullFlag(expense.DuplicateFlag),
		nullString(expense.DuplicateReason),
		sqlite.FormatTime(expense.CreatedAt),
		sqlite.FormatTime(expense.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create expense",
			zap.Int64("user_id", expense.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	expense.ID = id
	return nil
}

// Update overwrites the editable fields of an expense, including its duplicate classification
func (r *ExpenseRepository) Update(ctx context.Context, expense *entity.Expense) error {
	query := `
		UPDATE expenses
		SET report_id = ?, vendor = ?, amount = ?, currency = ?,
			original_amount = ?, original_currency = ?, expense_date = ?,
			invoice_id = ?, invoice_date = ?, status = ?, category = ?,
			project = ?, cost_centre = ?, receipt_path = ?,
			duplicate_flag = ?, duplicate_reason = ?, updated_at = ?
		WHERE id = ?
	`

	expense.UpdatedAt = time.Now().UTC()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		nullInt64(expense.ReportID),
		expense.Vendor,
		expense.Amount,
		expense.Currency,
		nullFloat64(expense.OriginalAmount),
		expense.OriginalCurrency,
		sqlite.FormatTime(expense.ExpenseDate),
		expense.InvoiceID,
		sqlite.NullTime(expense.InvoiceDate),
		expense.Status,
		expense.Category,
		expense.Project,
		expense.CostCentre,
		expense.ReceiptPath,
		nullFlag(expense.DuplicateFlag),
		nullString(duplicateReason(expense)),
		sqlite.FormatTime(expense.UpdatedAt),
		expense.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update expense",
			zap.Int64("expense_id", expense.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update expense: %w", err)
	}

	return requireRow(result, "expense", expense.ID)
}

// GetByID retrieves an expense by ID, or nil when it does not exist
func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses e WHERE e.id = ?`

	expense, err := scanExpense(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get expense",
			zap.Int64("expense_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	return expense, nil
}

// ListByReportID returns a report's expenses in creation order
func (r *ExpenseRepository) ListByReportID(ctx context.Context, reportID int64) ([]*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses e WHERE e.report_id = ? ORDER BY e.created_at, e.id`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, reportID)
	if err != nil {
		r.logger.Error("Failed to list report expenses",
			zap.Int64("report_id", reportID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	return collectExpenses(rows)
}

// FindDuplicateCandidates implements the company-scoped candidate search
func (r *ExpenseRepository) FindDuplicateCandidates(ctx context.Context, q port.CandidateQuery) ([]*entity.Expense, error) {
	query := `
		SELECT ` + expenseColumns + `
		FROM expenses e
		JOIN users u ON u.id = e.user_id
		LEFT JOIN expense_reports rp ON rp.id = e.report_id
		WHERE u.company_id = ?
			AND e.id != ?
			AND (
				(e.expense_date >= ? AND e.expense_date < ?)
				OR (e.invoice_date IS NOT NULL AND e.invoice_date >= ? AND e.invoice_date < ?)
			)
			AND e.status NOT IN ('REJECTED', 'CANCELLED')
			AND (rp.id IS NULL OR rp.status NOT IN ('REJECTED', 'CANCELLED'))
		ORDER BY e.created_at, e.id
	`

	lo, hi := sqlite.FormatTime(q.WindowStart), sqlite.FormatTime(q.WindowEnd)
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query,
		q.CompanyID, q.ExcludeID, lo, hi, lo, hi,
	)
	if err != nil {
		r.logger.Error("Failed to query duplicate candidates",
			zap.Int64("company_id", q.CompanyID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to query duplicate candidates: %w", err)
	}
	defer rows.Close()

	return collectExpenses(rows)
}

// UpdateDuplicateFlag stores or clears the duplicate classification
func (r *ExpenseRepository) UpdateDuplicateFlag(ctx context.Context, id int64, flag *entity.DuplicateFlag, reason *string) error {
	if flag == nil {
		reason = nil
	}

	query := `UPDATE expenses SET duplicate_flag = ?, duplicate_reason = ?, updated_at = ? WHERE id = ?`
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		nullFlag(flag),
		nullString(reason),
		sqlite.FormatTime(time.Now()),
		id,
	)
	if err != nil {
		r.logger.Error("Failed to update duplicate flag",
			zap.Int64("expense_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to update duplicate flag: %w", err)
	}

	return requireRow(result, "expense", id)
}

// UpdateStatusByReport moves every expense of a report to status
func (r *ExpenseRepository) UpdateStatusByReport(ctx context.Context, reportID int64, status string) error {
	query := `UPDATE expenses SET status = ?, updated_at = ? WHERE report_id = ?`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, status, sqlite.FormatTime(time.Now()), reportID)
	if err != nil {
		r.logger.Error("Failed to update report expense statuses",
			zap.Int64("report_id", reportID),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update expense statuses: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(row rowScanner) (*entity.Expense, error) {
	var (
		e                            entity.Expense
		reportID                     sql.NullInt64
		originalAmount               sql.NullFloat64
		expenseDate, created, update string
		invoiceDate                  sql.NullString
		flag, reason                 sql.NullString
	)

	err := row.Scan(
		&e.ID, &e.UserID, &reportID, &e.Vendor, &e.Amount, &e.Currency,
		&originalAmount, &e.OriginalCurrency, &expenseDate, &e.InvoiceID, &invoiceDate,
		&e.Status, &e.Category, &e.Project, &e.CostCentre, &e.ReceiptPath,
		&flag, &reason, &created, &update,
	)
	if err != nil {
		return nil, err
	}

	if reportID.Valid {
		e.ReportID = &reportID.Int64
	}
	if originalAmount.Valid {
		e.OriginalAmount = &originalAmount.Float64
	}
	e.ExpenseDate = sqlite.ParseTime(expenseDate)
	e.InvoiceDate = sqlite.ParseNullTime(invoiceDate)
	if flag.Valid && flag.String != "" {
		f := entity.DuplicateFlag(flag.String)
		e.DuplicateFlag = &f
		if reason.Valid {
			e.DuplicateReason = &reason.String
		}
	}
	e.CreatedAt = sqlite.ParseTime(created)
	e.UpdatedAt = sqlite.ParseTime(update)

	return &e, nil
}

func collectExpenses(rows *sql.Rows) ([]*entity.Expense, error) {
	var expenses []*entity.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	return expenses, nil
}
