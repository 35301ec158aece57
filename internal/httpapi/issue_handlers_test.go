package httpapi

import (
	"net/http"
	"testing"

	"civio.org/internal/auth"
)

func TestIssueLifecycle(t *testing.T) {
	env := newTestEnv(t)
	citizen := env.accessTokenFor(t, 1, "citizen@city.example", auth.RoleCitizen)
	officer := env.accessTokenFor(t, 2, "officer@city.example", auth.RoleOfficer)
	admin := env.accessTokenFor(t, 3, "admin@city.example", auth.RoleAdmin)

	// citizen reports an issue
	rr := env.do(t, http.MethodPost, "/v1/issues", citizen, map[string]string{
		"title":       "broken streetlight",
		"description": "corner of 3rd and Main",
		"status":      "open",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}
	created := decodeBody(t, rr)
	if created["reporter_id"] != float64(1) {
		t.Fatalf("reporter_id = %v, want 1", created["reporter_id"])
	}
	id := "1"

	// anyone with read sees it in the list
	rr = env.do(t, http.MethodGet, "/v1/issues", citizen, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rr.Code, rr.Body.String())
	}
	list := decodeBody(t, rr)
	items, _ := list["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}

	// officer moves it forward; the response and a follow-up read agree
	rr = env.do(t, http.MethodPut, "/v1/issues/"+id, officer, map[string]string{
		"title":       "broken streetlight",
		"description": "corner of 3rd and Main",
		"status":      "in_progress",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rr.Code, rr.Body.String())
	}
	if decodeBody(t, rr)["status"] != "in_progress" {
		t.Fatalf("update response status field = %v", decodeBody(t, rr)["status"])
	}

	rr = env.do(t, http.MethodGet, "/v1/issues/"+id, citizen, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", rr.Code, rr.Body.String())
	}
	if decodeBody(t, rr)["status"] != "in_progress" {
		t.Fatalf("read after update returned stale status %v", decodeBody(t, rr)["status"])
	}

	// admin removes it; reads stop finding it at once
	rr = env.do(t, http.MethodDelete, "/v1/issues/"+id, admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/v1/issues/"+id, citizen, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/v1/issues", citizen, nil)
	items, _ = decodeBody(t, rr)["items"].([]any)
	if len(items) != 0 {
		t.Fatalf("list after delete has %d items, want 0", len(items))
	}
}

func TestIssueValidation(t *testing.T) {
	env := newTestEnv(t)
	citizen := env.accessTokenFor(t, 1, "citizen@city.example", auth.RoleCitizen)

	rr := env.do(t, http.MethodPost, "/v1/issues", citizen, map[string]string{
		"title": "", "description": "no title", "status": "open",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rr.Code, rr.Body.String())
	}
}

func TestIssueUnknownFieldRejected(t *testing.T) {
	env := newTestEnv(t)
	citizen := env.accessTokenFor(t, 1, "citizen@city.example", auth.RoleCitizen)

	rr := env.do(t, http.MethodPost, "/v1/issues", citizen, map[string]string{
		"title": "x", "description": "y", "status": "open", "severity": "critical",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rr.Code, rr.Body.String())
	}
}

func TestIssuePathParsing(t *testing.T) {
	env := newTestEnv(t)
	citizen := env.accessTokenFor(t, 1, "citizen@city.example", auth.RoleCitizen)

	for _, path := range []string{
		"/v1/issues/abc",
		"/v1/issues/0",
		"/v1/issues/-3",
		"/v1/issues/1/comments",
	} {
		rr := env.do(t, http.MethodGet, path, citizen, nil)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("GET %s = %d, want 404", path, rr.Code)
		}
	}
}

func TestIssueNotFound(t *testing.T) {
	env := newTestEnv(t)
	citizen := env.accessTokenFor(t, 1, "citizen@city.example", auth.RoleCitizen)

	rr := env.do(t, http.MethodGet, "/v1/issues/999", citizen, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
