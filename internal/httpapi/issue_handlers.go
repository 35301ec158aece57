package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"civio.org/internal/audit"
	"civio.org/internal/auth"
	"civio.org/internal/issues"
	"civio.org/internal/store"
)

type issueRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func (a *API) handleIssues(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requirePermission(w, r, auth.PermissionRead, r.URL.Path); !ok {
			return
		}
		list, err := a.issues.List(r.Context())
		if err != nil {
			handleIssueError(w, r, err)
			return
		}
		if list == nil {
			list = []*store.Issue{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": list})

	case http.MethodPost:
		principal, ok := a.requirePermission(w, r, auth.PermissionCreate, r.URL.Path)
		if !ok {
			return
		}
		var req issueRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		issue := &store.Issue{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
			ReporterID:  principal.ID,
		}
		if err := a.issues.Create(r.Context(), issue); err != nil {
			handleIssueError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "issue.created", map[string]any{"issue_id": issue.ID})
		writeJSON(w, http.StatusCreated, issue)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleIssueByID(w http.ResponseWriter, r *http.Request) {
	id, err := issueIDFromPath(r.URL.Path)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requirePermission(w, r, auth.PermissionRead, r.URL.Path); !ok {
			return
		}
		issue, err := a.issues.Get(r.Context(), id)
		if err != nil {
			handleIssueError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, issue)

	case http.MethodPut:
		if _, ok := a.requirePermission(w, r, auth.PermissionUpdate, r.URL.Path); !ok {
			return
		}
		var req issueRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		issue := &store.Issue{
			ID:          id,
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
		}
		if err := a.issues.Update(r.Context(), issue); err != nil {
			handleIssueError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "issue.updated", map[string]any{"issue_id": id})
		updated, err := a.issues.Get(r.Context(), id)
		if err != nil {
			handleIssueError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		if _, ok := a.requirePermission(w, r, auth.PermissionDelete, r.URL.Path); !ok {
			return
		}
		if err := a.issues.Delete(r.Context(), id); err != nil {
			handleIssueError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "issue.deleted", map[string]any{"issue_id": id})
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func issueIDFromPath(path string) (int64, error) {
	raw := strings.TrimPrefix(path, "/v1/issues/")
	if raw == "" || strings.Contains(raw, "/") {
		return 0, errors.New("missing issue id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid issue id")
	}
	return id, nil
}

func handleIssueError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, issues.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "issue not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
