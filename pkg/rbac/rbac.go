package rbac

// 权限常量
const (
	// 管理权限
	PermissionReadTasks           = "tasks:read"
	PermissionScheduleTasks       = "tasks:schedule"
	PermissionReadScheduler       = "scheduler:read"
	PermissionReadPublications    = "publications:read"
	PermissionSendTestPublication = "publications:test"
	PermissionPublish             = "publications:publish"
	PermissionReplayOutbox        = "outbox:replay"

	// 普通权限
	PermissionManageSubscriptions = "subscriptions:manage"
	PermissionReadNotifications   = "notifications:read"
)

// 角色常量
const (
	RoleVolunteer = "volunteer"
	RoleSenior    = "senior"
	RoleAdmin     = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleVolunteer: {
		PermissionManageSubscriptions,
		PermissionReadNotifications,
	},
	RoleSenior: {
		PermissionManageSubscriptions,
		PermissionReadNotifications,
		PermissionReadTasks,
		PermissionReadScheduler,
		PermissionReadPublications,
	},
	RoleAdmin: {
		PermissionManageSubscriptions,
		PermissionReadNotifications,
		PermissionReadTasks,
		PermissionScheduleTasks,
		PermissionReadScheduler,
		PermissionReadPublications,
		PermissionSendTestPublication,
		PermissionPublish,
		PermissionReplayOutbox,
	},
}

// IsKnownRole reports whether role has a permission set.
func IsKnownRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID int64, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     int64
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
