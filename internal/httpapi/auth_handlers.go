package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"civio.org/internal/audit"
	"civio.org/internal/auth"
)

const (
	refreshCookieName = "civio_refresh"
	refreshCookiePath = "/v1"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        userView  `json:"user"`
}

type userView struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := a.users.FindByEmail(r.Context(), email)
	if err != nil {
		// Not-found and store failure answer identically: deny, and do
		// not leak which accounts exist.
		_ = audit.LogEvent(r.Context(), "auth.login.denied", map[string]any{"email": email})
		writeErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.denied", map[string]any{"email": email})
		writeErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return
	}
	role, err := auth.ParseRole(user.Role)
	if err != nil {
		writeErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return
	}

	principal := auth.Principal{ID: user.ID, Email: user.Email, Role: role}
	if !a.issueSession(w, r, principal, "auth.login") {
		return
	}
}

// handleRefresh rotates the session: verify the refresh cookie, re-resolve
// the principal from the store, then hand out a fresh pair and replace the
// cookie. Any failure clears the cookie so no stale credential lingers.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		a.clearRefreshCookie(w)
		writeErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "session expired, log in again")
		return
	}

	claims, err := a.tokens.VerifyRefreshToken(cookie.Value)
	if err != nil {
		a.clearRefreshCookie(w)
		if errors.Is(err, auth.ErrTokenExpired) {
			writeErrorCode(w, r, http.StatusUnauthorized, "TOKEN_EXPIRED", "session expired, log in again")
			return
		}
		writeErrorCode(w, r, http.StatusUnauthorized, "TOKEN_INVALID", "invalid session")
		return
	}
	asserted, err := claims.Principal()
	if err != nil {
		a.clearRefreshCookie(w)
		writeErrorCode(w, r, http.StatusUnauthorized, "TOKEN_INVALID", "invalid session")
		return
	}

	principal, err := a.resolvePrincipal(r, asserted.ID)
	if err != nil {
		a.clearRefreshCookie(w)
		writeErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "session expired, log in again")
		return
	}

	if !a.issueSession(w, r, principal, "auth.refresh") {
		return
	}
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.clearRefreshCookie(w)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(principal))
}

// issueSession mints a token pair, rotates the refresh cookie and writes
// the access token response. Cookie replacement happens in the same
// response that carries the new access token, so the client never holds a
// half-rotated session.
func (a *API) issueSession(w http.ResponseWriter, r *http.Request, principal auth.Principal, event string) bool {
	accessToken, accessExp, err := a.tokens.IssueAccessToken(principal)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token issuance failed")
		return false
	}
	refreshToken, refreshExp, err := a.tokens.IssueRefreshToken(principal)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token issuance failed")
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     refreshCookiePath,
		Expires:  refreshExp,
		MaxAge:   int(time.Until(refreshExp).Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})

	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"user_id": principal.ID,
		"role":    principal.Role.String(),
	})
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: accessToken,
		ExpiresAt:   accessExp,
		User:        viewOf(principal),
	})
	return true
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func viewOf(principal auth.Principal) userView {
	return userView{ID: principal.ID, Email: principal.Email, Role: principal.Role.String()}
}
