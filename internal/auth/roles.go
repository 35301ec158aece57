package auth

import (
	"fmt"
	"strings"
)

// Role is the closed set of identities the portal recognizes. Adding a role
// means revisiting every switch over this type; the compiler will not do it
// for us, so Grants is the single authority kept exhaustive by its tests.
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleOfficer Role = "officer"
	RoleAdmin   Role = "admin"
)

// Roles lists every valid role.
var Roles = []Role{RoleCitizen, RoleOfficer, RoleAdmin}

// ParseRole maps a stored role string onto the closed enum.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleCitizen:
		return RoleCitizen, nil
	case RoleOfficer:
		return RoleOfficer, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

func (r Role) String() string { return string(r) }

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleOfficer, RoleAdmin:
		return true
	default:
		return false
	}
}

// Permission is a single CRUD capability on portal issues.
type Permission string

const (
	PermissionCreate Permission = "create"
	PermissionRead   Permission = "read"
	PermissionUpdate Permission = "update"
	PermissionDelete Permission = "delete"
)

// Permissions lists every grantable permission.
var Permissions = []Permission{PermissionCreate, PermissionRead, PermissionUpdate, PermissionDelete}

func (p Permission) String() string { return string(p) }

// Grants returns the flat permission set for a role. The table is total:
// every declared role has an explicit entry and anything else gets nothing.
func Grants(role Role) []Permission {
	switch role {
	case RoleCitizen:
		return []Permission{PermissionCreate, PermissionRead}
	case RoleOfficer:
		return []Permission{PermissionCreate, PermissionRead, PermissionUpdate}
	case RoleAdmin:
		return []Permission{PermissionCreate, PermissionRead, PermissionUpdate, PermissionDelete}
	default:
		return nil
	}
}

// Allowed reports whether role holds permission. Anything not explicitly
// granted is denied.
func Allowed(role Role, permission Permission) bool {
	for _, p := range Grants(role) {
		if p == permission {
			return true
		}
	}
	return false
}
