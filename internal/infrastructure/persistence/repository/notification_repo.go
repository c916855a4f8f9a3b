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

// NotificationRepository implements port.InAppNotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ port.InAppNotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository creates a new in-app notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create writes an in-app notification record
func (r *NotificationRepository) Create(ctx context.Context, n *entity.InAppNotification) error {
	query := `
		INSERT INTO in_app_notifications (user_id, type, title, body, data, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		n.UserID,
		n.Type,
		n.Title,
		n.Body,
		n.Data,
		boolToInt(n.Read),
		sqlite.FormatTime(n.CreatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create in-app notification",
			zap.Int64("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	n.ID = id
	return nil
}

// ListByUser returns the most recent notifications of a user, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*entity.InAppNotification, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, type, title, body, data, read, created_at
		FROM in_app_notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, userID, limit)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var result []*entity.InAppNotification
	for rows.Next() {
		var n entity.InAppNotification
		var read int
		var created string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Data, &read, &created); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Read = read != 0
		n.CreatedAt = sqlite.ParseTime(created)
		result = append(result, &n)
	}
	return result, rows.Err()
}

// MarkRead marks one of the user's notifications as read
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID int64) error {
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE in_app_notifications SET read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return requireRow(result, "notification", id)
}
