package httpapi

import (
	"errors"
	"net/http"

	"civio.org/internal/auth"
	"civio.org/internal/store"
)

const authHeader = "Authorization"

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/logout",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth authenticates every non-public request: extract the bearer
// token, verify it, then re-resolve the principal from the store so role
// changes or deletions made after token issuance take effect immediately.
// Store failures deny access rather than falling open.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := auth.ExtractBearerToken(r.Header.Get(authHeader))
		if !ok {
			writeErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		claims, err := a.tokens.VerifyAccessToken(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				writeErrorCode(w, r, http.StatusUnauthorized, "TOKEN_EXPIRED", "session expired, refresh your token")
				return
			}
			writeErrorCode(w, r, http.StatusUnauthorized, "TOKEN_INVALID", "invalid token")
			return
		}

		asserted, err := claims.Principal()
		if err != nil {
			writeErrorCode(w, r, http.StatusUnauthorized, "TOKEN_INVALID", "invalid token")
			return
		}

		principal, err := a.resolvePrincipal(r, asserted.ID)
		if err != nil {
			writeErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication failed")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolvePrincipal loads the current user record; token claims only name
// the identity, the store decides what it is allowed to be.
func (a *API) resolvePrincipal(r *http.Request, id int64) (auth.Principal, error) {
	user, err := a.users.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return auth.Principal{}, auth.ErrUnauthorized
		}
		return auth.Principal{}, err
	}
	role, err := auth.ParseRole(user.Role)
	if err != nil {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	return auth.Principal{ID: user.ID, Email: user.Email, Role: role}, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
