package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"atlaskg.org/internal/account"
	"atlaskg.org/internal/session"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func requestWithOutcome(outcome session.Outcome) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/gated", nil)
	return req.WithContext(session.ContextWithOutcome(req.Context(), outcome))
}

func TestRequireRolesAllowsMatchingRole(t *testing.T) {
	a := &API{}
	handler := a.requireRoles(okHandler, account.RoleEditor)

	user := &account.User{Username: "bob", Role: account.RoleEditor}
	rr := httptest.NewRecorder()
	handler(rr, requestWithOutcome(session.Authenticated(user)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireRolesForbidsWrongRole(t *testing.T) {
	a := &API{}
	handler := a.requireRoles(okHandler, account.RoleEditor)

	admin := &account.User{Username: "root", Role: account.RoleAdmin}
	rr := httptest.NewRecorder()
	handler(rr, requestWithOutcome(session.Authenticated(admin)))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("admin on an EDITOR-only route: expected 403, got %d", rr.Code)
	}
}

func TestRequireRolesAnonymous(t *testing.T) {
	a := &API{}
	handler := a.requireRoles(okHandler, account.RoleUser)

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/gated", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestRequireRolesDistinguishesRejectionReasons(t *testing.T) {
	a := &API{}
	handler := a.requireRoles(okHandler, account.RoleUser)

	cases := []struct {
		name   string
		reason session.Reason
		body   string
	}{
		{"invalid", session.ReasonInvalid, "unauthorized"},
		{"expired", session.ReasonExpired, "session expired"},
		{"locked", session.ReasonLocked, "account locked"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler(rr, requestWithOutcome(session.Rejected(tc.reason)))

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if got := rr.Body.String(); !strings.Contains(got, tc.body) {
				t.Fatalf("expected body to mention %q, got %s", tc.body, got)
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("expected WWW-Authenticate header")
			}
		})
	}
}

func TestRequireRolesStoreOutageIsServerFault(t *testing.T) {
	a := &API{}
	handler := a.requireRoles(okHandler, account.RoleUser)

	rr := httptest.NewRecorder()
	handler(rr, requestWithOutcome(session.Failed()))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") != "" {
		t.Fatalf("a server fault is not a credential challenge")
	}
}

func TestExtractBearerToken(t *testing.T) {
	if tok, ok := extractBearerToken("Bearer abc.def.ghi"); !ok || tok != "abc.def.ghi" {
		t.Fatalf("expected token extracted, got %q ok=%v", tok, ok)
	}
	if tok, ok := extractBearerToken("bearer abc"); !ok || tok != "abc" {
		t.Fatalf("scheme should be case-insensitive, got %q ok=%v", tok, ok)
	}
	if _, ok := extractBearerToken("Basic dXNlcjpwYXNz"); ok {
		t.Fatalf("non-bearer scheme must not parse")
	}
	if _, ok := extractBearerToken("Bearer "); ok {
		t.Fatalf("empty token must not parse")
	}
}
