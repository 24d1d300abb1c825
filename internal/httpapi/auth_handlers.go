package httpapi

import (
	"errors"
	"net/http"

	"atlaskg.org/internal/account"
	"atlaskg.org/internal/audit"
	"atlaskg.org/internal/session"
)

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in signupRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.accounts.Register(r.Context(), in.Username, in.Password)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	session.TokenPair
	User *account.User `json:"user"`
}

func (a *API) handleSignin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in signinRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, user, err := a.sessions.SignIn(r.Context(), in.Username, in.Password)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(a.auditContext(r), "session_signin", map[string]any{
		"username": user.Username,
	})
	writeJSON(w, http.StatusOK, tokenResponse{TokenPair: pair, User: user})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in refreshRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, user, err := a.sessions.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidToken) {
			writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		writeAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(a.auditContext(r), "session_refresh", map[string]any{
		"username": user.Username,
	})
	writeJSON(w, http.StatusOK, tokenResponse{TokenPair: pair, User: user})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := session.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

func writeAccountError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, account.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrUsernameTaken):
		writeError(w, r, http.StatusConflict, "username already taken")
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, account.ErrAccountLocked):
		writeError(w, r, http.StatusForbidden, "account locked")
	case errors.Is(err, account.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "account not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
