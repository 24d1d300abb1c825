// Package session turns inbound bearer credentials into an authenticated
// principal and decides what that principal may do. Authentication is fully
// stateless: every request is judged on its token alone.
package session

import (
	"context"

	"atlaskg.org/internal/account"
)

// State classifies the authentication result of one request.
type State int

const (
	// StateAnonymous means no usable identity was presented. Public routes
	// proceed; protected routes reject with a generic unauthorized.
	StateAnonymous State = iota
	// StateAuthenticated means a principal is bound to the request.
	StateAuthenticated
	// StateRejected means a token was presented but failed validation. The
	// rejection is deferred: it only surfaces if a protected route is hit,
	// so a garbage token does not break public routes.
	StateRejected
	// StateFailed means the identity store could not be consulted, so the
	// token's validity is unknown. This is a server-side fault, not a
	// judgment on the credentials.
	StateFailed
)

// Reason explains a rejected outcome so the eventual response can say
// "session expired" instead of a generic unauthorized.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonInvalid covers malformed tokens and signature mismatches.
	ReasonInvalid
	// ReasonExpired covers well-signed tokens past their expiry.
	ReasonExpired
	// ReasonLocked covers valid tokens for a locked account.
	ReasonLocked
)

// Outcome is the per-request authentication result threaded through the
// request context. The zero value is anonymous.
type Outcome struct {
	State     State
	Principal *account.User
	Reason    Reason
}

// Anonymous is the outcome for requests without a usable identity.
func Anonymous() Outcome {
	return Outcome{State: StateAnonymous}
}

// Authenticated binds a principal to the request.
func Authenticated(principal *account.User) Outcome {
	return Outcome{State: StateAuthenticated, Principal: principal}
}

// Rejected records a present-but-invalid token for deferred reporting.
func Rejected(reason Reason) Outcome {
	return Outcome{State: StateRejected, Reason: reason}
}

// Failed records that authentication could not run to completion.
func Failed() Outcome {
	return Outcome{State: StateFailed}
}

type outcomeContextKey struct{}

// ContextWithOutcome attaches the authentication outcome to the context.
func ContextWithOutcome(ctx context.Context, outcome Outcome) context.Context {
	return context.WithValue(ctx, outcomeContextKey{}, outcome)
}

// OutcomeFromContext extracts the authentication outcome; a context that
// never passed through the authenticator reads as anonymous.
func OutcomeFromContext(ctx context.Context) Outcome {
	if ctx == nil {
		return Anonymous()
	}
	v, ok := ctx.Value(outcomeContextKey{}).(Outcome)
	if !ok {
		return Anonymous()
	}
	return v
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*account.User, bool) {
	outcome := OutcomeFromContext(ctx)
	if outcome.State != StateAuthenticated || outcome.Principal == nil {
		return nil, false
	}
	return outcome.Principal, true
}
