package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// Member types of approval_level_members
const (
	memberTypeRole = "ROLE"
	memberTypeUser = "USER"
)

// ApprovalMatrixRepository implements port.ApprovalMatrixRepository
type ApprovalMatrixRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ port.ApprovalMatrixRepository = (*ApprovalMatrixRepository)(nil)

// NewApprovalMatrixRepository creates a new approval matrix repository
func NewApprovalMatrixRepository(db *sql.DB, logger *zap.Logger) *ApprovalMatrixRepository {
	return &ApprovalMatrixRepository{
		db:     db,
		logger: logger,
	}
}

// GetMatrix assembles the ordered level configuration of a company.
// Levels must be numbered 1..n without gaps; a gap is reported as an error.
func (r *ApprovalMatrixRepository) GetMatrix(ctx context.Context, companyID int64, requestType string) (*entity.ApprovalMatrix, error) {
	query := `
		SELECT level, member_type, member_id
		FROM approval_level_members
		WHERE company_id = ? AND request_type = ?
		ORDER BY level, member_type, member_id
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, companyID, requestType)
	if err != nil {
		r.logger.Error("Failed to load approval matrix",
			zap.Int64("company_id", companyID),
			zap.String("request_type", requestType),
			zap.Error(err))
		return nil, fmt.Errorf("failed to load approval matrix: %w", err)
	}
	defer rows.Close()

	matrix := &entity.ApprovalMatrix{CompanyID: companyID, RequestType: requestType}
	for rows.Next() {
		var level int
		var memberType string
		var memberID int64
		if err := rows.Scan(&level, &memberType, &memberID); err != nil {
			return nil, fmt.Errorf("failed to scan approval level: %w", err)
		}

		if n := len(matrix.Levels); n == 0 || matrix.Levels[n-1].Level != level {
			matrix.Levels = append(matrix.Levels, entity.ApprovalLevelConfig{Level: level})
		}
		cfg := &matrix.Levels[len(matrix.Levels)-1]
		switch memberType {
		case memberTypeRole:
			cfg.RoleIDs = append(cfg.RoleIDs, memberID)
		case memberTypeUser:
			cfg.UserIDs = append(cfg.UserIDs, memberID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approval levels: %w", err)
	}

	if len(matrix.Levels) == 0 {
		return nil, nil
	}
	for i, l := range matrix.Levels {
		if l.Level != i+1 {
			return nil, fmt.Errorf("approval matrix for company %d has a gap at level %d", companyID, i+1)
		}
	}
	return matrix, nil
}

// SetLevel replaces the members of one level
func (r *ApprovalMatrixRepository) SetLevel(ctx context.Context, companyID int64, requestType string, cfg entity.ApprovalLevelConfig) error {
	exec := sqlite.Executor(ctx, r.db)

	if _, err := exec.ExecContext(ctx,
		`DELETE FROM approval_level_members WHERE company_id = ? AND request_type = ? AND level = ?`,
		companyID, requestType, cfg.Level,
	); err != nil {
		return fmt.Errorf("failed to clear approval level: %w", err)
	}

	insert := `INSERT INTO approval_level_members (company_id, request_type, level, member_type, member_id) VALUES (?, ?, ?, ?, ?)`
	for _, id := range cfg.RoleIDs {
		if _, err := exec.ExecContext(ctx, insert, companyID, requestType, cfg.Level, memberTypeRole, id); err != nil {
			return fmt.Errorf("failed to add role to approval level: %w", err)
		}
	}
	for _, id := range cfg.UserIDs {
		if _, err := exec.ExecContext(ctx, insert, companyID, requestType, cfg.Level, memberTypeUser, id); err != nil {
			return fmt.Errorf("failed to add user to approval level: %w", err)
		}
	}
	return nil
}
