package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ApproverResolver turns a level configuration into the concrete users allowed to decide it
type ApproverResolver interface {
	// Resolve returns the active users of companyID eligible for cfg. An empty result is not an error.
	Resolve(ctx context.Context, cfg entity.ApprovalLevelConfig, companyID int64) ([]*entity.User, error)

	// ResolveForInstance adds the instance's additional approvers for cfg.Level to Resolve's result
	ResolveForInstance(ctx context.Context, cfg entity.ApprovalLevelConfig, instance *entity.ApprovalInstance) ([]*entity.User, error)

	// ApproverRole names the grant that made approver eligible for cfg: the first configured role they
	// hold, ApproverRoleNamed for explicit users or ApproverRoleAdditional for instance extras
	ApproverRole(ctx context.Context, cfg entity.ApprovalLevelConfig, instance *entity.ApprovalInstance, approver *entity.User) (string, error)
}

type roleResolverImpl struct {
	users  port.UserDirectory
	logger Logger
}

// NewRoleResolver creates a new ApproverResolver backed by the user directory
func NewRoleResolver(users port.UserDirectory, logger Logger) ApproverResolver {
	return &roleResolverImpl{
		users:  users,
		logger: logger,
	}
}

// Resolve gives explicit user ids priority over roles
func (r *roleResolverImpl) Resolve(ctx context.Context, cfg entity.ApprovalLevelConfig, companyID int64) ([]*entity.User, error) {
	var (
		users []*entity.User
		err   error
	)

	switch {
	case len(cfg.UserIDs) > 0:
		users, err = r.users.ListActiveByIDs(ctx, companyID, cfg.UserIDs)
	case len(cfg.RoleIDs) > 0:
		users, err = r.users.ListActiveByRoles(ctx, companyID, cfg.RoleIDs)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve approvers for level %d: %w", cfg.Level, err)
	}

	return dedupeUsers(users), nil
}

func (r *roleResolverImpl) ResolveForInstance(ctx context.Context, cfg entity.ApprovalLevelConfig, instance *entity.ApprovalInstance) ([]*entity.User, error) {
	users, err := r.Resolve(ctx, cfg, instance.CompanyID)
	if err != nil {
		return nil, err
	}

	extra := instance.ExtraApprovers[cfg.Level]
	if len(extra) == 0 {
		return users, nil
	}

	added, err := r.users.ListActiveByIDs(ctx, instance.CompanyID, extra)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve additional approvers for level %d: %w", cfg.Level, err)
	}
	return dedupeUsers(append(users, added...)), nil
}

func (r *roleResolverImpl) ApproverRole(ctx context.Context, cfg entity.ApprovalLevelConfig, instance *entity.ApprovalInstance, approver *entity.User) (string, error) {
	if approver == nil {
		return "", nil
	}

	switch {
	case len(cfg.UserIDs) > 0:
		if containsID(cfg.UserIDs, approver.ID) {
			return entity.ApproverRoleNamed, nil
		}
	case len(cfg.RoleIDs) > 0:
		for _, roleID := range cfg.RoleIDs {
			if !approver.HasAnyRole([]int64{roleID}) {
				continue
			}
			roles, err := r.users.ListRoles(ctx, instance.CompanyID, []int64{roleID})
			if err != nil {
				return "", fmt.Errorf("failed to load role %d: %w", roleID, err)
			}
			if len(roles) > 0 {
				return roles[0].Name, nil
			}
			return fmt.Sprintf("role %d", roleID), nil
		}
	}

	if containsID(instance.ExtraApprovers[cfg.Level], approver.ID) {
		return entity.ApproverRoleAdditional, nil
	}
	return "", nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func dedupeUsers(users []*entity.User) []*entity.User {
	seen := make(map[int64]bool, len(users))
	result := make([]*entity.User, 0, len(users))
	for _, u := range users {
		if u == nil || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ContainsUser reports whether userID is among users
func ContainsUser(users []*entity.User, userID int64) bool {
	for _, u := range users {
		if u.ID == userID {
			return true
		}
	}
	return false
}
