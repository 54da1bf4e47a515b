package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUser_DashboardRole(t *testing.T) {
	tests := []struct {
		roles []string
		want  string
	}{
		{roles: []string{RoleAdminOwner}, want: DashboardAdmin},
		{roles: []string{RoleTeacher, RoleAdminPrincipal}, want: DashboardAdmin},
		{roles: []string{RoleAdminAccountant}, want: DashboardAccountant},
		{roles: []string{RoleAdminCounselor, RoleTeacher}, want: DashboardCounselor},
		{roles: []string{RoleTeacher, RoleParent}, want: DashboardTeacher},
		{roles: []string{RoleParent}, want: DashboardParent},
		{roles: []string{RoleStudent}, want: DashboardStudent},
		{roles: nil, want: DashboardStudent},
	}
	for _, tt := range tests {
		usr := User{Roles: tt.roles}
		assert.Equal(t, tt.want, usr.DashboardRole(), "%v", tt.roles)
	}
}

func TestUser_roles(t *testing.T) {
	accountant := User{Roles: []string{RoleAdminAccountant}}
	assert.True(t, accountant.IsAdmin())
	assert.False(t, accountant.IsSchoolAdmin())
	assert.True(t, accountant.IsStaff())

	teacher := User{Roles: []string{RoleTeacher}}
	assert.True(t, teacher.IsStaff())
	assert.False(t, teacher.IsAdmin())

	parent := User{Roles: []string{RoleParent}}
	assert.False(t, parent.IsStaff())
	assert.True(t, parent.IsParent())
}

func TestMaxRolePriority(t *testing.T) {
	assert.Equal(t, 0, MaxRolePriority(nil))
	assert.Equal(t, 0, MaxRolePriority([]string{"admin:janitor"}))
	assert.Equal(t, 29, MaxRolePriority([]string{RoleTeacher, RoleAdminPrincipal, RoleParent}))
	assert.Greater(t, RolePriority(RoleTeacher), RolePriority(RoleParent))
	assert.Len(t, AllRoles, len(Roles))
}

func TestUser_Password(t *testing.T) {
	var usr User
	assert.NoError(t, usr.SetPassword("s3cr3t!"))
	assert.NoError(t, usr.CheckPassword("s3cr3t!"))
	assert.Error(t, usr.CheckPassword("S3cr3t!"))
}
