package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const instanceColumns = `
	id, request_id, request_type, company_id, submitter_id,
	current_level, total_levels, status, version,
	submitted_at, completed_at, created_at, updated_at`

// ApprovalInstanceRepository implements port.ApprovalInstanceRepository
type ApprovalInstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ port.ApprovalInstanceRepository = (*ApprovalInstanceRepository)(nil)

// NewApprovalInstanceRepository creates a new approval instance repository
func NewApprovalInstanceRepository(db *sql.DB, logger *zap.Logger) *ApprovalInstanceRepository {
	return &ApprovalInstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new instance at version 1
func (r *ApprovalInstanceRepository) Create(ctx context.Context, instance *entity.ApprovalInstance) error {
	query := `
		INSERT INTO approval_instances (
			request_id, request_type, company_id, submitter_id,
			current_level, total_levels, status, version,
			submitted_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	instance.UpdatedAt = now
	if instance.SubmittedAt.IsZero() {
		instance.SubmittedAt = now
	}

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		instance.RequestID,
		instance.RequestType,
		instance.CompanyID,
		instance.SubmitterID,
		instance.CurrentLevel,
		instance.TotalLevels,
		instance.Status,
		sqlite.FormatTime(instance.SubmittedAt),
		sqlite.NullTime(instance.CompletedAt),
		sqlite.FormatTime(instance.CreatedAt),
		sqlite.FormatTime(instance.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create approval instance",
			zap.Int64("request_id", instance.RequestID),
			zap.String("request_type", instance.RequestType),
			zap.Error(err))
		return fmt.Errorf("failed to create approval instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	instance.ID = id
	instance.Version = 1
	return nil
}

// GetByID retrieves an instance with its history and extra approvers, or nil when missing
func (r *ApprovalInstanceRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetByRequest retrieves the instance driving a request, or nil when none exists
func (r *ApprovalInstanceRepository) GetByRequest(ctx context.Context, requestType string, requestID int64) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE request_type = ? AND request_id = ?`
	return r.getOne(ctx, query, requestType, requestID)
}

func (r *ApprovalInstanceRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entity.ApprovalInstance, error) {
	var (
		inst                        entity.ApprovalInstance
		submitted, created, updated string
		completed                   sql.NullString
	)

	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(
		&inst.ID,
		&inst.RequestID,
		&inst.RequestType,
		&inst.CompanyID,
		&inst.SubmitterID,
		&inst.CurrentLevel,
		&inst.TotalLevels,
		&inst.Status,
		&inst.Version,
		&submitted,
		&completed,
		&created,
		&updated,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval instance", zap.Any("args", args), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval instance: %w", err)
	}

	inst.SubmittedAt = sqlite.ParseTime(submitted)
	inst.CompletedAt = sqlite.ParseNullTime(completed)
	inst.CreatedAt = sqlite.ParseTime(created)
	inst.UpdatedAt = sqlite.ParseTime(updated)

	if inst.History, err = r.ListHistory(ctx, inst.ID); err != nil {
		return nil, err
	}
	if inst.ExtraApprovers, err = r.ListExtraApprovers(ctx, inst.ID); err != nil {
		return nil, err
	}

	return &inst, nil
}

// UpdateIfVersion is the optimistic concurrency guard for every state change
func (r *ApprovalInstanceRepository) UpdateIfVersion(ctx context.Context, instance *entity.ApprovalInstance, expectedVersion int64) error {
	query := `
		UPDATE approval_instances
		SET current_level = ?, total_levels = ?, status = ?, version = version + 1,
			submitted_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`

	instance.UpdatedAt = time.Now().UTC()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		instance.CurrentLevel,
		instance.TotalLevels,
		instance.Status,
		sqlite.FormatTime(instance.SubmittedAt),
		sqlite.NullTime(instance.CompletedAt),
		sqlite.FormatTime(instance.UpdatedAt),
		instance.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update approval instance",
			zap.Int64("instance_id", instance.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update approval instance: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		r.logger.Warn("Approval instance version conflict",
			zap.Int64("instance_id", instance.ID),
			zap.Int64("expected_version", expectedVersion))
		return fmt.Errorf("%w: instance %d is no longer at version %d", domainwf.ErrConflict, instance.ID, expectedVersion)
	}

	instance.Version = expectedVersion + 1
	return nil
}

// AppendDecision adds a history entry
func (r *ApprovalInstanceRepository) AppendDecision(ctx context.Context, d *entity.LevelDecision) error {
	query := `
		INSERT INTO approval_decisions (
			instance_id, level, approver_id, role, decision, comment, superseded, decided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		d.InstanceID, d.Level, d.ApproverID, d.Role, d.Decision, d.Comment,
		boolToInt(d.Superseded), sqlite.FormatTime(d.DecidedAt),
	)
	if err != nil {
		r.logger.Error("Failed to append decision",
			zap.Int64("instance_id", d.InstanceID),
			zap.Int("level", d.Level),
			zap.Error(err))
		return fmt.Errorf("failed to append decision: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	d.ID = id
	return nil
}

// SupersedeLevel marks every earlier decision at a level as superseded
func (r *ApprovalInstanceRepository) SupersedeLevel(ctx context.Context, instanceID int64, level int) error {
	query := `UPDATE approval_decisions SET superseded = 1 WHERE instance_id = ? AND level = ? AND superseded = 0`
	if _, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, instanceID, level); err != nil {
		return fmt.Errorf("failed to supersede level %d decisions: %w", level, err)
	}
	return nil
}

// SupersedeAll marks every decision of an instance as superseded
func (r *ApprovalInstanceRepository) SupersedeAll(ctx context.Context, instanceID int64) error {
	query := `UPDATE approval_decisions SET superseded = 1 WHERE instance_id = ? AND superseded = 0`
	if _, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, instanceID); err != nil {
		return fmt.Errorf("failed to supersede decisions: %w", err)
	}
	return nil
}

// ListHistory returns the full append-only history in insertion order
func (r *ApprovalInstanceRepository) ListHistory(ctx context.Context, instanceID int64) ([]entity.LevelDecision, error) {
	query := `
		SELECT id, instance_id, level, approver_id, role, decision, comment, superseded, decided_at
		FROM approval_decisions
		WHERE instance_id = ?
		ORDER BY id
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var history []entity.LevelDecision
	for rows.Next() {
		var d entity.LevelDecision
		var superseded int
		var decidedAt string
		if err := rows.Scan(&d.ID, &d.InstanceID, &d.Level, &d.ApproverID, &d.Role,
			&d.Decision, &d.Comment, &superseded, &decidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Superseded = superseded != 0
		d.DecidedAt = sqlite.ParseTime(decidedAt)
		history = append(history, d)
	}
	return history, rows.Err()
}

// AddExtraApprover authorizes one more user for a level; adding the same user twice is a no-op
func (r *ApprovalInstanceRepository) AddExtraApprover(ctx context.Context, instanceID int64, level int, userID int64) error {
	query := `
		INSERT OR IGNORE INTO approval_extra_approvers (instance_id, level, user_id, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, instanceID, level, userID, sqlite.FormatTime(time.Now())); err != nil {
		r.logger.Error("Failed to add extra approver",
			zap.Int64("instance_id", instanceID),
			zap.Int("level", level),
			zap.Int64("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to add extra approver: %w", err)
	}
	return nil
}

// ListExtraApprovers returns extra approvers keyed by level
func (r *ApprovalInstanceRepository) ListExtraApprovers(ctx context.Context, instanceID int64) (map[int][]int64, error) {
	query := `SELECT level, user_id FROM approval_extra_approvers WHERE instance_id = ? ORDER BY level, user_id`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list extra approvers: %w", err)
	}
	defer rows.Close()

	extras := make(map[int][]int64)
	for rows.Next() {
		var level int
		var userID int64
		if err := rows.Scan(&level, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan extra approver: %w", err)
		}
		extras[level] = append(extras[level], userID)
	}
	return extras, rows.Err()
}
