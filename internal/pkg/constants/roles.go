package constants

// Actor roles for workflow operations.
const (
	RoleAdmin         = "admin"
	RoleGC            = "gc"
	RoleSubcontractor = "subcontractor"
	RoleBroker        = "broker"
)

// ValidRoles is the set of roles accepted on the actor context header.
var ValidRoles = []string{RoleAdmin, RoleGC, RoleSubcontractor, RoleBroker}

// IsValidRole returns true if role is one of the allowed values.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
