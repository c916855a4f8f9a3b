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

// dimensionColumns maps rollup dimensions onto SQL expressions; only these are ever interpolated
var dimensionColumns = map[string]string{
	entity.DimensionDepartment: "u.department",
	entity.DimensionProject:    "e.project",
	entity.DimensionCostCentre: "e.cost_centre",
}

// SpendRepository implements port.SpendRepository
type SpendRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ port.SpendRepository = (*SpendRepository)(nil)

// NewSpendRepository creates a new spend aggregation repository
func NewSpendRepository(db *sql.DB, logger *zap.Logger) *SpendRepository {
	return &SpendRepository{
		db:     db,
		logger: logger,
	}
}

// SumByDimension groups spend by dimension value and currency
func (r *SpendRepository) SumByDimension(ctx context.Context, companyID int64, dimension string, from, to time.Time) ([]entity.SpendRow, error) {
	column, ok := dimensionColumns[dimension]
	if !ok {
		return nil, fmt.Errorf("unknown dimension %q", dimension)
	}

	query := `
		SELECT COALESCE(NULLIF(TRIM(` + column + `), ''), ?) AS bucket, e.currency, SUM(e.amount), COUNT(*)
		FROM expenses e
		JOIN users u ON u.id = e.user_id
		WHERE u.company_id = ?
			AND e.expense_date >= ? AND e.expense_date < ?
			AND e.status NOT IN ('REJECTED', 'CANCELLED')
		GROUP BY bucket, e.currency
		ORDER BY bucket, e.currency
	`
	return r.sum(ctx, query, entity.UnassignedBucket, companyID, sqlite.FormatTime(from), sqlite.FormatTime(to))
}

// SumByMonth groups spend by calendar month (UTC) and currency
func (r *SpendRepository) SumByMonth(ctx context.Context, companyID int64, from, to time.Time) ([]entity.SpendRow, error) {
	query := `
		SELECT substr(e.expense_date, 1, 7) AS month, e.currency, SUM(e.amount), COUNT(*)
		FROM expenses e
		JOIN users u ON u.id = e.user_id
		WHERE u.company_id = ?
			AND e.expense_date >= ? AND e.expense_date < ?
			AND e.status NOT IN ('REJECTED', 'CANCELLED')
		GROUP BY month, e.currency
		ORDER BY month, e.currency
	`
	return r.sum(ctx, query, companyID, sqlite.FormatTime(from), sqlite.FormatTime(to))
}

// ListCompanyIDs returns the companies whose users have recorded expenses
func (r *SpendRepository) ListCompanyIDs(ctx context.Context) ([]int64, error) {
	query := `
		SELECT DISTINCT u.company_id
		FROM expenses e
		JOIN users u ON u.id = e.user_id
		ORDER BY u.company_id
	`
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan company id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SpendRepository) sum(ctx context.Context, query string, args ...interface{}) ([]entity.SpendRow, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to aggregate spend", zap.Error(err))
		return nil, fmt.Errorf("failed to aggregate spend: %w", err)
	}
	defer rows.Close()

	var result []entity.SpendRow
	for rows.Next() {
		var row entity.SpendRow
		if err := rows.Scan(&row.Key, &row.Currency, &row.Amount, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan spend row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
