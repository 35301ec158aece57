package httpapi

import (
	"fmt"
	"net/http"

	"civio.org/internal/audit"
	"civio.org/internal/auth"
)

// The guards below are the authorization half of the gate. Each call emits
// exactly one Decision Record, allowed or denied, and on denial writes a
// fully-formed 403 naming the role and the permission it lacked. A missing
// principal is an authentication failure and stays a 401 — the two must
// never be conflated.

func (a *API) requirePermission(w http.ResponseWriter, r *http.Request, permission auth.Permission, resource string) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return auth.Principal{}, false
	}

	allowed := principal.Can(permission)
	audit.LogDecision(r.Context(), audit.Decision{
		Role:       principal.Role,
		Permission: permission,
		Resource:   resource,
		Allowed:    allowed,
	})
	if !allowed {
		writeErrorCode(w, r, http.StatusForbidden, "FORBIDDEN",
			fmt.Sprintf("role %q lacks permission %q", principal.Role, permission))
		return auth.Principal{}, false
	}
	return principal, true
}

func (a *API) requireAnyPermission(w http.ResponseWriter, r *http.Request, permissions []auth.Permission, resource string) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return auth.Principal{}, false
	}

	var granted *auth.Permission
	for i := range permissions {
		if principal.Can(permissions[i]) {
			granted = &permissions[i]
			break
		}
	}
	decision := audit.Decision{
		Role:     principal.Role,
		Resource: resource,
		Allowed:  granted != nil,
	}
	if granted != nil {
		decision.Permission = *granted
	} else if len(permissions) > 0 {
		decision.Permission = permissions[0]
	}
	audit.LogDecision(r.Context(), decision)

	if granted == nil {
		writeErrorCode(w, r, http.StatusForbidden, "FORBIDDEN",
			fmt.Sprintf("role %q lacks any of the required permissions %v", principal.Role, permissions))
		return auth.Principal{}, false
	}
	return principal, true
}

func (a *API) requireRole(w http.ResponseWriter, r *http.Request, role auth.Role, resource string) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return auth.Principal{}, false
	}

	allowed := principal.Role == role
	audit.LogDecision(r.Context(), audit.Decision{
		Role:     principal.Role,
		Resource: resource,
		Allowed:  allowed,
	})
	if !allowed {
		writeErrorCode(w, r, http.StatusForbidden, "FORBIDDEN",
			fmt.Sprintf("role %q required, request made as %q", role, principal.Role))
		return auth.Principal{}, false
	}
	return principal, true
}
