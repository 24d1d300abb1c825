package httpapi

import (
	"net/http"
	"strings"

	"atlaskg.org/internal/account"
	"atlaskg.org/internal/audit"
)

type lockRequest struct {
	Locked bool `json:"locked"`
}

// handleUserResource serves /v1/users/{username}/lock.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	username, action, _ := strings.Cut(rest, "/")
	if username == "" || action != "lock" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.requireRoles(func(w http.ResponseWriter, r *http.Request) {
		a.handleUserLock(w, r, username)
	}, account.RoleAdmin)(w, r)
}

func (a *API) handleUserLock(w http.ResponseWriter, r *http.Request, username string) {
	var in lockRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.accounts.SetLocked(r.Context(), username, in.Locked); err != nil {
		writeAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(a.auditContext(r), "account_lock_changed", map[string]any{
		"username": username,
		"locked":   in.Locked,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"username": username,
		"locked":   in.Locked,
	})
}
