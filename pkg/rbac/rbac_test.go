package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		want       bool
	}{
		{RoleVolunteer, PermissionManageSubscriptions, true},
		{RoleVolunteer, PermissionReadTasks, false},
		{RoleSenior, PermissionReadScheduler, true},
		{RoleSenior, PermissionScheduleTasks, false},
		{RoleAdmin, PermissionReplayOutbox, true},
		{"guest", PermissionReadNotifications, false},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.permission, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.role, tt.permission))
		})
	}
}

func TestCheckPermission(t *testing.T) {
	assert.NoError(t, CheckPermission(1, RoleAdmin, PermissionSendTestPublication))

	err := CheckPermission(7, RoleVolunteer, PermissionSendTestPublication)
	var denied *PermissionDeniedError
	if assert.ErrorAs(t, err, &denied) {
		assert.Equal(t, int64(7), denied.UserID)
		assert.Equal(t, PermissionSendTestPublication, denied.Permission)
	}
	assert.True(t, IsKnownRole(RoleSenior))
	assert.False(t, IsKnownRole("root"))
}
