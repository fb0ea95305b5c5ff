package authz

// Role of a caller within a tenant.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleInspector     Role = "inspector"
	RoleViewer        Role = "viewer"
	RoleSystemService Role = "system_service"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleInspector, RoleViewer, RoleSystemService:
		return true
	}
	return false
}

// SecurityContext is the per-call caller identity. It is never persisted;
// the auth middleware builds one per request from the API key binding.
type SecurityContext struct {
	UserID   string
	TenantID string
	Role     Role
	Email    string
}

// Authenticated reports whether the context carries a caller identity.
func (sc *SecurityContext) Authenticated() bool {
	return sc != nil && sc.UserID != ""
}

// Resource is the authorization view of a target entity: just enough for
// the tenant check and the finalization lock. Services build one from the
// entity's owning inspection.
type Resource struct {
	ID        string
	Type      string
	TenantID  string
	Finalized bool
}
