package pkg

import "strings"

// Role identifies the kind of platform user sending a message
type Role string

const (
	RoleTenant   Role = "tenant"
	RoleOwner    Role = "owner"
	RoleBroker   Role = "broker"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
	RoleRunner   Role = "runner"
	RoleGuest    Role = "guest"
)

var roleAliases = map[string]Role{
	"TENANT":               RoleTenant,
	"OWNER":                RoleOwner,
	"BROKER":               RoleBroker,
	"PROVIDER":             RoleProvider,
	"MAINTENANCE":          RoleProvider,
	"MAINTENANCE_PROVIDER": RoleProvider,
	"SERVICE_PROVIDER":     RoleProvider,
	"ADMIN":                RoleAdmin,
	"RUNNER":               RoleRunner,
	"GUEST":                RoleGuest,
}

// NormalizeRole maps a raw role name to a known Role.
// Unknown names are returned lowercased so the default policy applies to them.
func NormalizeRole(raw string) Role {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RoleGuest
	}
	if role, ok := roleAliases[strings.ToUpper(trimmed)]; ok {
		return role
	}
	return Role(strings.ToLower(trimmed))
}

// Known reports whether the role is one of the platform roles
func (r Role) Known() bool {
	_, ok := roleAliases[strings.ToUpper(string(r))]
	return ok && NormalizeRole(string(r)) == r
}

// Key is the uppercased lookup key used by the policy tables
func (r Role) Key() string {
	return strings.ToUpper(string(r))
}
