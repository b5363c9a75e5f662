package rbac

// Role names carried in dashboard access tokens.
const (
	RoleOwner      = "owner"
	RoleStaff      = "staff"
	RoleViewer     = "viewer"
	RoleSuperAdmin = "super_admin"
	RoleSupport    = "support" // hidden role for platform operators
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
