package upgrade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"atlaskg.org/internal/account"
	"atlaskg.org/internal/ids"
)

// DefaultCooldown is how long a DECLINED request blocks resubmission,
// measured from the declined request's creation timestamp.
const DefaultCooldown = 7 * 24 * time.Hour

const maxReasonLen = 2000

// Service runs the elevation workflow on top of a Store.
//
// Submit is a check-then-act sequence, so two concurrent submissions for
// the same account could both pass the duplicate check before either
// writes. The service serializes submissions per username with an
// in-process mutex; the storage schema additionally carries a partial
// unique index on live requests, so a race across processes surfaces as
// ErrDuplicateRequest instead of a second live row.
type Service struct {
	store    Store
	now      func() time.Time
	cooldown time.Duration

	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source, used by tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithCooldown overrides the post-decline cooldown window.
func WithCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// NewService constructs the workflow service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("upgrade store is required")
	}
	s := &Service{
		store:    store,
		now:      time.Now,
		cooldown: DefaultCooldown,
		locks:    make(map[string]*userLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// lockUser serializes submissions per username and returns the release
// func. Entries are reference-counted and evicted once the last holder
// releases, so the map is bounded by in-flight submissions rather than by
// every username ever seen.
func (s *Service) lockUser(username string) func() {
	s.mu.Lock()
	lock, ok := s.locks[username]
	if !ok {
		lock = &userLock{}
		s.locks[username] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, username)
		}
		s.mu.Unlock()
	}
}

// Submit creates a PENDING request for principal. Preconditions: the role
// is exactly USER, no live (PENDING or ACCEPTED) request exists, and no
// declined request is inside the cooldown window.
func (s *Service) Submit(ctx context.Context, principal *account.User, reason string) (*Request, error) {
	if principal == nil {
		return nil, fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}
	if principal.Role != account.RoleUser {
		return nil, ErrNotEligible
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}
	if len(reason) > maxReasonLen {
		return nil, fmt.Errorf("%w: reason must be at most %d characters", ErrInvalidInput, maxReasonLen)
	}

	unlock := s.lockUser(principal.Username)
	defer unlock()

	live, err := s.store.MostRecentForUser(ctx, principal.ID, StatusPending, StatusAccepted)
	if err != nil {
		return nil, err
	}
	if live != nil {
		return nil, ErrDuplicateRequest
	}

	last, err := s.store.MostRecentForUser(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if last != nil && last.Status == StatusDeclined && now.Sub(last.CreatedAt) < s.cooldown {
		return nil, ErrCooldownActive
	}

	req := &Request{
		ID:        ids.New(),
		UserID:    principal.ID,
		Username:  principal.Username,
		Reason:    reason,
		Status:    StatusPending,
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Review moves a PENDING request to a terminal state. Accepting elevates
// the owner to EDITOR; the store commits both writes in one transaction.
// Reviewing a request that already reached a terminal state is a
// state-machine violation, not a silent re-apply.
func (s *Service) Review(ctx context.Context, reviewer *account.User, requestID string, status Status, message string) (*Request, error) {
	if reviewer == nil || reviewer.Role != account.RoleAdmin {
		return nil, fmt.Errorf("%w: reviewer must hold the ADMIN role", ErrInvalidInput)
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}
	if !status.Terminal() {
		return nil, fmt.Errorf("%w: review status must be ACCEPTED or DECLINED", ErrInvalidInput)
	}

	req, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	reviewedAt := s.now().UTC()
	req.Status = status
	req.Message = strings.TrimSpace(message)
	req.ReviewedAt = &reviewedAt

	if err := s.store.Finalize(ctx, req, status == StatusAccepted); err != nil {
		return nil, err
	}
	return req, nil
}

// ListPending returns the oldest pending requests for the review queue.
func (s *Service) ListPending(ctx context.Context, limit int) ([]*Request, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByStatus(ctx, StatusPending, limit)
}
