package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"atlaskg.org/internal/account"
	"atlaskg.org/internal/audit"
	"atlaskg.org/internal/session"
	"atlaskg.org/internal/upgrade"
)

func (a *API) handleUpgradeCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.requireRoles(a.handleUpgradeSubmit, account.RoleUser)(w, r)
	case http.MethodGet:
		a.requireRoles(a.handleUpgradeList, account.RoleAdmin)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

type upgradeSubmitRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleUpgradeSubmit(w http.ResponseWriter, r *http.Request) {
	principal, _ := session.PrincipalFromContext(r.Context())

	var in upgradeSubmitRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req, err := a.upgrades.Submit(r.Context(), principal, in.Reason)
	if err != nil {
		writeUpgradeError(w, r, err)
		return
	}
	_ = audit.LogEvent(a.auditContext(r), "upgrade_request_submitted", map[string]any{
		"request_id": req.ID,
		"username":   req.Username,
	})
	writeJSON(w, http.StatusCreated, req)
}

func (a *API) handleUpgradeList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	reqs, err := a.upgrades.ListPending(r.Context(), limit)
	if err != nil {
		writeUpgradeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": reqs,
		"count":    len(reqs),
	})
}

type upgradeReviewRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleUpgradeResource serves /v1/upgrade-requests/{id}/review.
func (a *API) handleUpgradeResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/upgrade-requests/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || action != "review" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.requireRoles(func(w http.ResponseWriter, r *http.Request) {
		a.handleUpgradeReview(w, r, id)
	}, account.RoleAdmin)(w, r)
}

func (a *API) handleUpgradeReview(w http.ResponseWriter, r *http.Request, id string) {
	principal, _ := session.PrincipalFromContext(r.Context())

	var in upgradeReviewRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status := upgrade.Status(strings.ToUpper(strings.TrimSpace(in.Status)))
	req, err := a.upgrades.Review(r.Context(), principal, id, status, in.Message)
	if err != nil {
		writeUpgradeError(w, r, err)
		return
	}
	_ = audit.LogEvent(a.auditContext(r), "upgrade_request_reviewed", map[string]any{
		"request_id": req.ID,
		"username":   req.Username,
		"status":     req.Status,
	})
	writeJSON(w, http.StatusOK, req)
}

func (a *API) auditContext(r *http.Request) context.Context {
	return audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context()))
}

func writeUpgradeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, upgrade.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, upgrade.ErrNotEligible):
		writeError(w, r, http.StatusForbidden, "only USER accounts may request elevation")
	case errors.Is(err, upgrade.ErrDuplicateRequest):
		writeError(w, r, http.StatusBadRequest, "a live upgrade request already exists")
	case errors.Is(err, upgrade.ErrCooldownActive):
		writeError(w, r, http.StatusBadRequest, "a declined request blocks resubmission during the cooldown window")
	case errors.Is(err, upgrade.ErrRequestNotFound):
		writeError(w, r, http.StatusNotFound, "upgrade request not found")
	case errors.Is(err, upgrade.ErrPrincipalNotFound):
		writeError(w, r, http.StatusNotFound, "owning account no longer exists")
	case errors.Is(err, upgrade.ErrInvalidTransition):
		writeError(w, r, http.StatusBadRequest, "request has already been reviewed")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
