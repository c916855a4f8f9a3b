package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// UserRepository implements port.UserDirectory
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ port.UserDirectory = (*UserRepository)(nil)

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a user together with their role assignments
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	exec := sqlite.Executor(ctx, r.db)

	result, err := exec.ExecContext(ctx,
		`INSERT INTO users (company_id, name, email, department, active) VALUES (?, ?, ?, ?, ?)`,
		user.CompanyID, user.Name, user.Email, user.Department, boolToInt(user.Active),
	)
	if err != nil {
		r.logger.Error("Failed to create user", zap.Int64("company_id", user.CompanyID), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id

	for _, roleID := range user.RoleIDs {
		if _, err := exec.ExecContext(ctx, `INSERT OR IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)`, id, roleID); err != nil {
			return fmt.Errorf("failed to assign role %d: %w", roleID, err)
		}
	}
	return nil
}

// CreateRole inserts a company role
func (r *UserRepository) CreateRole(ctx context.Context, role *entity.Role) error {
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO roles (company_id, name) VALUES (?, ?)`, role.CompanyID, role.Name)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	role.ID = id
	return nil
}

// SetActive activates or deactivates a user
func (r *UserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRow(result, "user", id)
}

// GetByID retrieves a user regardless of active status, or nil when missing
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	users, err := r.query(ctx, `SELECT id, company_id, name, email, department, active, created_at FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users[0], nil
}

// ListActiveByIDs returns the active users of a company among ids
func (r *UserRepository) ListActiveByIDs(ctx context.Context, companyID int64, ids []int64) ([]*entity.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, company_id, name, email, department, active, created_at
		FROM users
		WHERE company_id = ? AND active = 1 AND id IN (` + placeholders(len(ids)) + `)
		ORDER BY id
	`
	args := append([]interface{}{companyID}, int64Args(ids)...)
	return r.query(ctx, query, args...)
}

// ListActiveByRoles returns active users of a company holding any of roleIDs
func (r *UserRepository) ListActiveByRoles(ctx context.Context, companyID int64, roleIDs []int64) ([]*entity.User, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT u.id, u.company_id, u.name, u.email, u.department, u.active, u.created_at
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		WHERE u.company_id = ? AND u.active = 1 AND ur.role_id IN (` + placeholders(len(roleIDs)) + `)
		ORDER BY u.id
	`
	args := append([]interface{}{companyID}, int64Args(roleIDs)...)
	return r.query(ctx, query, args...)
}

// ListRoles returns the company roles among roleIDs
func (r *UserRepository) ListRoles(ctx context.Context, companyID int64, roleIDs []int64) ([]*entity.Role, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, company_id, name FROM roles WHERE company_id = ? AND id IN (` + placeholders(len(roleIDs)) + `) ORDER BY id`
	args := append([]interface{}{companyID}, int64Args(roleIDs)...)

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list roles", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*entity.Role
	for rows.Next() {
		role := &entity.Role{}
		if err := rows.Scan(&role.ID, &role.CompanyID, &role.Name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *UserRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.User, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		var u entity.User
		var active int
		var created string
		if err := rows.Scan(&u.ID, &u.CompanyID, &u.Name, &u.Email, &u.Department, &active, &created); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Active = active != 0
		u.CreatedAt = sqlite.ParseTime(created)
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	for _, u := range users {
		if u.RoleIDs, err = r.roleIDs(ctx, u.ID); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r *UserRepository) roleIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, `SELECT role_id FROM user_roles WHERE user_id = ? ORDER BY role_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan role id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
