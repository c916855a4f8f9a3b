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

// ReportRepository implements port.ReportRepository
type ReportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ port.ReportRepository = (*ReportRepository)(nil)

// NewReportRepository creates a new report repository
func NewReportRepository(db *sql.DB, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new expense report
func (r *ReportRepository) Create(ctx context.Context, report *entity.ExpenseReport) error {
	query := `
		INSERT INTO expense_reports (
			user_id, company_id, name, status, from_date, to_date,
			total_amount, currency, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now
	if report.Status == "" {
		report.Status = entity.ExpenseStatusDraft
	}
	if report.Currency == "" {
		report.Currency = entity.BaseCurrency
	}

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		report.UserID,
		report.CompanyID,
		report.Name,
		report.Status,
		sqlite.FormatTime(report.FromDate),
		sqlite.FormatTime(report.ToDate),
		report.TotalAmount,
		report.Currency,
		sqlite.FormatTime(report.CreatedAt),
		sqlite.FormatTime(report.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create report", zap.Int64("user_id", report.UserID), zap.Error(err))
		return fmt.Errorf("failed to create report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	report.ID = id
	return nil
}

// GetByID retrieves a report with its effective approver decisions, or nil when missing
func (r *ReportRepository) GetByID(ctx context.Context, id int64) (*entity.ExpenseReport, error) {
	query := `
		SELECT id, user_id, company_id, name, status, from_date, to_date,
			total_amount, currency, created_at, updated_at
		FROM expense_reports
		WHERE id = ?
	`

	var (
		report                 entity.ExpenseReport
		from, to, created, upd string
	)
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&report.ID,
		&report.UserID,
		&report.CompanyID,
		&report.Name,
		&report.Status,
		&from,
		&to,
		&report.TotalAmount,
		&report.Currency,
		&created,
		&upd,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get report", zap.Int64("report_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	report.FromDate = sqlite.ParseTime(from)
	report.ToDate = sqlite.ParseTime(to)
	report.CreatedAt = sqlite.ParseTime(created)
	report.UpdatedAt = sqlite.ParseTime(upd)

	approvers, err := r.listApprovers(ctx, id)
	if err != nil {
		return nil, err
	}
	report.Approvers = approvers

	return &report, nil
}

// UpdateStatus sets the workflow state of a report
func (r *ReportRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE expense_reports SET status = ?, updated_at = ? WHERE id = ?`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, status, sqlite.FormatTime(time.Now()), id)
	if err != nil {
		r.logger.Error("Failed to update report status",
			zap.Int64("report_id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update report status: %w", err)
	}
	return requireRow(result, "report", id)
}

// UpsertApproverDecision replaces the decision recorded for the level
func (r *ReportRepository) UpsertApproverDecision(ctx context.Context, reportID int64, d entity.ApproverDecision) error {
	query := `
		INSERT INTO report_approvers (report_id, level, approver_id, role, decision, comment, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (report_id, level) DO UPDATE SET
			approver_id = excluded.approver_id,
			role = excluded.role,
			decision = excluded.decision,
			comment = excluded.comment,
			decided_at = excluded.decided_at
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		reportID, d.Level, d.ApproverID, d.Role, d.Decision, d.Comment, sqlite.FormatTime(d.DecidedAt),
	)
	if err != nil {
		r.logger.Error("Failed to record approver decision",
			zap.Int64("report_id", reportID),
			zap.Int("level", d.Level),
			zap.Error(err))
		return fmt.Errorf("failed to record approver decision: %w", err)
	}
	return nil
}

// ClearApproverDecisions removes all decisions of a report
func (r *ReportRepository) ClearApproverDecisions(ctx context.Context, reportID int64) error {
	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, `DELETE FROM report_approvers WHERE report_id = ?`, reportID)
	if err != nil {
		return fmt.Errorf("failed to clear approver decisions: %w", err)
	}
	return nil
}

func (r *ReportRepository) listApprovers(ctx context.Context, reportID int64) ([]entity.ApproverDecision, error) {
	query := `
		SELECT level, approver_id, role, decision, comment, decided_at
		FROM report_approvers
		WHERE report_id = ?
		ORDER BY level
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approver decisions: %w", err)
	}
	defer rows.Close()

	var decisions []entity.ApproverDecision
	for rows.Next() {
		var d entity.ApproverDecision
		var decidedAt string
		if err := rows.Scan(&d.Level, &d.ApproverID, &d.Role, &d.Decision, &d.Comment, &decidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approver decision: %w", err)
		}
		d.DecidedAt = sqlite.ParseTime(decidedAt)
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
