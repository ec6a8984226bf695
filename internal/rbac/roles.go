package rbac

// Role names. Keep these stable; they are part of auth contracts with the
// operator console.
const (
	RoleOperator   = "operator"
	RoleViewer     = "viewer"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
