package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directoryFixture() *mockUserDirectory {
	return newUserDirectory(
		&entity.User{ID: 1, CompanyID: 10, Active: true, RoleIDs: []int64{100}},
		&entity.User{ID: 2, CompanyID: 10, Active: true, RoleIDs: []int64{100, 200}},
		&entity.User{ID: 3, CompanyID: 10, Active: false, RoleIDs: []int64{100}},
		&entity.User{ID: 4, CompanyID: 20, Active: true, RoleIDs: []int64{100}},
		&entity.User{ID: 5, CompanyID: 10, Active: true, RoleIDs: []int64{300}},
	)
}

func ids(users []*entity.User) []int64 {
	result := make([]int64, 0, len(users))
	for _, u := range users {
		result = append(result, u.ID)
	}
	return result
}

func TestRoleResolver_ExplicitUsersTakePriority(t *testing.T) {
	r := NewRoleResolver(directoryFixture(), &recordingLogger{})

	users, err := r.Resolve(context.Background(), entity.ApprovalLevelConfig{Level: 1, RoleIDs: []int64{100}, UserIDs: []int64{5}}, 10)

	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids(users))
}

func TestRoleResolver_RolesFilteredByCompanyAndActive(t *testing.T) {
	r := NewRoleResolver(directoryFixture(), &recordingLogger{})

	users, err := r.Resolve(context.Background(), entity.ApprovalLevelConfig{Level: 1, RoleIDs: []int64{100, 200}}, 10)

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids(users))
}

func TestRoleResolver_ApproverRole(t *testing.T) {
	users := directoryFixture()
	users.roles = map[int64]*entity.Role{
		100: {ID: 100, CompanyID: 10, Name: "Manager"},
		200: {ID: 200, CompanyID: 10, Name: "Finance"},
	}
	r := NewRoleResolver(users, &recordingLogger{})
	ctx := context.Background()
	instance := &entity.ApprovalInstance{CompanyID: 10, ExtraApprovers: map[int][]int64{1: {5}}}

	byRole := entity.ApprovalLevelConfig{Level: 1, RoleIDs: []int64{200, 100}}
	role, err := r.ApproverRole(ctx, byRole, instance, users.users[2])
	require.NoError(t, err)
	assert.Equal(t, "Finance", role, "first configured role held wins")

	role, err = r.ApproverRole(ctx, byRole, instance, users.users[1])
	require.NoError(t, err)
	assert.Equal(t, "Manager", role)

	role, err = r.ApproverRole(ctx, byRole, instance, users.users[5])
	require.NoError(t, err)
	assert.Equal(t, entity.ApproverRoleAdditional, role)

	named := entity.ApprovalLevelConfig{Level: 1, RoleIDs: []int64{100}, UserIDs: []int64{2}}
	role, err = r.ApproverRole(ctx, named, instance, users.users[2])
	require.NoError(t, err)
	assert.Equal(t, entity.ApproverRoleNamed, role)

	unnamed := entity.ApprovalLevelConfig{Level: 2, RoleIDs: []int64{300}}
	role, err = r.ApproverRole(ctx, unnamed, instance, users.users[5])
	require.NoError(t, err)
	assert.Equal(t, "role 300", role)
}

func TestRoleResolver_EmptyIsNotAnError(t *testing.T) {
	r := NewRoleResolver(directoryFixture(), &recordingLogger{})

	users, err := r.Resolve(context.Background(), entity.ApprovalLevelConfig{Level: 1, RoleIDs: []int64{999}}, 10)
	require.NoError(t, err)
	assert.Empty(t, users)

	users, err = r.Resolve(context.Background(), entity.ApprovalLevelConfig{Level: 2}, 10)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRoleResolver_ResolveForInstanceAddsExtras(t *testing.T) {
	r := NewRoleResolver(directoryFixture(), &recordingLogger{})
	instance := &entity.ApprovalInstance{
		CompanyID:      10,
		ExtraApprovers: map[int][]int64{1: {5, 2, 4}},
	}

	users, err := r.ResolveForInstance(context.Background(), entity.ApprovalLevelConfig{Level: 1, RoleIDs: []int64{200}}, instance)

	require.NoError(t, err)
	// 4 belongs to another company, 2 is already eligible through its role
	assert.Equal(t, []int64{2, 5}, ids(users))
	assert.True(t, ContainsUser(users, 5))
	assert.False(t, ContainsUser(users, 4))
}

func TestRoleResolver_DirectoryFailure(t *testing.T) {
	dir := directoryFixture()
	dir.listByRoleErr = errors.New("db down")
	r := NewRoleResolver(dir, &recordingLogger{})

	_, err := r.Resolve(context.Background(), entity.ApprovalLevelConfig{Level: 1, RoleIDs: []int64{100}}, 10)
	assert.Error(t, err)
}
