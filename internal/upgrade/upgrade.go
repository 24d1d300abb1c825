// Package upgrade implements the role-elevation workflow: a USER petitions
// for EDITOR, an ADMIN accepts or declines. Each request is a tiny state
// machine (PENDING -> ACCEPTED | DECLINED) with two temporal rules: a
// principal holds at most one live request, and a declined request blocks
// resubmission for a cooldown window.
package upgrade

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicateRequest  = errors.New("upgrade: a live request already exists for this account")
	ErrCooldownActive    = errors.New("upgrade: a declined request blocks resubmission during the cooldown window")
	ErrRequestNotFound   = errors.New("upgrade: request not found")
	ErrPrincipalNotFound = errors.New("upgrade: owning account no longer exists")
	ErrInvalidTransition = errors.New("upgrade: request is not pending")
	ErrNotEligible       = errors.New("upgrade: only USER accounts may request elevation")
	ErrInvalidInput      = errors.New("upgrade: invalid input")
)

// Status is the request state. PENDING is the only non-terminal state.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusDeclined Status = "DECLINED"
)

// Terminal reports whether s ends the state machine.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined
}

// Request is one elevation attempt. Status and CreatedAt are written once
// at creation; only the review transition mutates Status, Message and
// ReviewedAt. Requests are never deleted, they form the account's history.
type Request struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Username   string     `json:"username,omitempty"`
	Reason     string     `json:"reason"`
	Status     Status     `json:"status"`
	Message    string     `json:"message,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// Store persists upgrade requests.
//
// MostRecentForUser returns (nil, nil) when the user has no matching
// request. Finalize must write the review outcome and, when promote is
// set, the owner's elevated role in one transaction: either both commit
// or neither does.
type Store interface {
	Create(ctx context.Context, req *Request) error
	FindByID(ctx context.Context, id string) (*Request, error)
	MostRecentForUser(ctx context.Context, userID string, statuses ...Status) (*Request, error)
	Finalize(ctx context.Context, req *Request, promote bool) error
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Request, error)
}
