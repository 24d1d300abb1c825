package httpapi

import (
	"net/http"
	"strings"

	"atlaskg.org/internal/account"
	"atlaskg.org/internal/session"
)

const (
	authHeader   = "Authorization"
	bearerScheme = "Bearer "
)

// withSession classifies the request's bearer token and stores the outcome
// in the context. It never rejects by itself: a missing token means
// anonymous, and a present-but-invalid token is recorded and deferred so
// public routes stay reachable even with a garbage Authorization header.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(authHeader))

		outcome := session.Anonymous()
		if header != "" {
			raw, ok := extractBearerToken(header)
			if !ok {
				outcome = session.Rejected(session.ReasonInvalid)
			} else {
				outcome = a.sessions.Authenticate(r.Context(), raw)
			}
		}

		ctx := session.ContextWithOutcome(r.Context(), outcome)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRoles gates a handler behind an exact allowed-role set and turns
// the deferred authentication outcome into the accurate response: an
// expired session says so instead of a generic unauthorized.
func (a *API) requireRoles(next http.HandlerFunc, allowed ...account.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome := session.OutcomeFromContext(r.Context())
		switch outcome.State {
		case session.StateAuthenticated:
			if session.Allowed(outcome.Principal, allowed...) {
				next(w, r)
				return
			}
			writeError(w, r, http.StatusForbidden, "forbidden")
		case session.StateFailed:
			writeError(w, r, http.StatusServiceUnavailable, "authentication temporarily unavailable")
		case session.StateRejected:
			w.Header().Set("WWW-Authenticate", `Bearer realm="atlas"`)
			switch outcome.Reason {
			case session.ReasonExpired:
				writeError(w, r, http.StatusUnauthorized, "session expired")
			case session.ReasonLocked:
				writeError(w, r, http.StatusUnauthorized, "account locked")
			default:
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
			}
		default:
			w.Header().Set("WWW-Authenticate", `Bearer realm="atlas"`)
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
		}
	}
}

func extractBearerToken(header string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerScheme)) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	if token == "" {
		return "", false
	}
	return token, true
}
