package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"atlaskg.org/internal/account"
	"atlaskg.org/internal/token"
)

type memStore struct {
	mu      sync.Mutex
	users   map[string]*account.User
	findErr error
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*account.User)}
}

func (s *memStore) Create(ctx context.Context, u *account.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return account.ErrUsernameTaken
	}
	if u.ID == "" {
		u.ID = "id-" + u.Username
	}
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	s.users[u.Username] = u
	return nil
}

func (s *memStore) failFinds(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findErr = err
}

func (s *memStore) FindByUsername(ctx context.Context, username string) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	u, ok := s.users[username]
	if !ok {
		return nil, account.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memStore) SetLocked(ctx context.Context, username string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return account.ErrNotFound
	}
	u.Locked = locked
	return nil
}

func newTestService(t *testing.T) (*Service, *memStore, *token.Codec) {
	t.Helper()
	store := newMemStore()
	accounts, err := account.NewService(store)
	if err != nil {
		t.Fatalf("account service: %v", err)
	}
	codec, err := token.NewCodec("test-secret-0123456789abcdef", "atlas-test")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	svc, err := NewService(accounts, codec)
	if err != nil {
		t.Fatalf("session service: %v", err)
	}
	return svc, store, codec
}

func seedUser(t *testing.T, store *memStore, username, password string, role account.Role, locked bool) {
	t.Helper()
	hash, err := account.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	err = store.Create(context.Background(), &account.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Locked:       locked,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestSignInIssuesUsablePair(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedUser(t, store, "alice", "correct-horse", account.RoleUser, false)

	pair, user, err := svc.SignIn(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("expected alice, got %q", user.Username)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens issued")
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Fatalf("refresh token should outlive access token")
	}

	outcome := svc.Authenticate(context.Background(), pair.AccessToken)
	if outcome.State != StateAuthenticated {
		t.Fatalf("expected authenticated, got state %v reason %v", outcome.State, outcome.Reason)
	}
	if outcome.Principal.Username != "alice" {
		t.Fatalf("expected principal alice, got %q", outcome.Principal.Username)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedUser(t, store, "alice", "correct-horse", account.RoleUser, false)

	_, _, err := svc.SignIn(context.Background(), "alice", "wrong")
	if !errors.Is(err, account.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSignInUnknownUserLooksLikeBadPassword(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.SignIn(context.Background(), "nobody", "whatever1")
	if !errors.Is(err, account.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSignInLockedAccount(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedUser(t, store, "alice", "correct-horse", account.RoleUser, true)

	_, _, err := svc.SignIn(context.Background(), "alice", "correct-horse")
	if !errors.Is(err, account.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestRefreshMintsNewPair(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedUser(t, store, "alice", "correct-horse", account.RoleUser, false)

	pair, _, err := svc.SignIn(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	next, user, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("expected alice, got %q", user.Username)
	}
	if next.AccessToken == "" || next.RefreshToken == "" {
		t.Fatalf("expected fresh pair")
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedUser(t, store, "alice", "correct-horse", account.RoleUser, false)

	pair, _, err := svc.SignIn(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	_, _, err = svc.Refresh(context.Background(), pair.AccessToken)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRefreshStopsForLockedAccount(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedUser(t, store, "alice", "correct-horse", account.RoleUser, false)

	pair, _, err := svc.SignIn(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := store.SetLocked(context.Background(), "alice", true); err != nil {
		t.Fatalf("lock: %v", err)
	}

	_, _, err = svc.Refresh(context.Background(), pair.RefreshToken)
	if !errors.Is(err, account.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestAuthenticateGarbageToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	outcome := svc.Authenticate(context.Background(), "not-a-jwt")
	if outcome.State != StateRejected || outcome.Reason != ReasonInvalid {
		t.Fatalf("expected rejected/invalid, got state %v reason %v", outcome.State, outcome.Reason)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	svc, store, codec := newTestService(t)
	seedUser(t, store, "alice", "correct-horse", account.RoleUser, false)

	raw, _, err := codec.Issue("alice", token.KindAccess, -time.Minute, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	outcome := svc.Authenticate(context.Background(), raw)
	if outcome.State != StateRejected || outcome.Reason != ReasonExpired {
		t.Fatalf("expected rejected/expired, got state %v reason %v", outcome.State, outcome.Reason)
	}
}

func TestAuthenticateLockedAccount(t *testing.T) {
	svc, store, codec := newTestService(t)
	seedUser(t, store, "alice", "correct-horse", account.RoleUser, true)

	raw, _, err := codec.Issue("alice", token.KindAccess, time.Hour, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	outcome := svc.Authenticate(context.Background(), raw)
	if outcome.State != StateRejected || outcome.Reason != ReasonLocked {
		t.Fatalf("expected rejected/locked, got state %v reason %v", outcome.State, outcome.Reason)
	}
}

// A well-signed token whose subject no longer resolves reads as anonymous,
// the same as sending no token, so the endpoint cannot be used to probe
// which usernames exist.
func TestAuthenticateUnknownSubjectIsAnonymous(t *testing.T) {
	svc, _, codec := newTestService(t)

	raw, _, err := codec.Issue("ghost", token.KindAccess, time.Hour, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	outcome := svc.Authenticate(context.Background(), raw)
	if outcome.State != StateAnonymous {
		t.Fatalf("expected anonymous, got state %v reason %v", outcome.State, outcome.Reason)
	}
}

// An identity-store outage is not a verdict on the credentials: the
// outcome must read as a server fault, never as unauthorized.
func TestAuthenticateStoreOutageIsNotARejection(t *testing.T) {
	svc, store, codec := newTestService(t)
	seedUser(t, store, "alice", "correct-horse", account.RoleUser, false)

	raw, _, err := codec.Issue("alice", token.KindAccess, time.Hour, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	store.failFinds(errors.New("connection refused"))

	outcome := svc.Authenticate(context.Background(), raw)
	if outcome.State != StateFailed {
		t.Fatalf("expected failed, got state %v reason %v", outcome.State, outcome.Reason)
	}
}

func TestAuthenticateRejectsRefreshTokenAsBearer(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedUser(t, store, "alice", "correct-horse", account.RoleUser, false)

	pair, _, err := svc.SignIn(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	outcome := svc.Authenticate(context.Background(), pair.RefreshToken)
	if outcome.State != StateRejected || outcome.Reason != ReasonInvalid {
		t.Fatalf("expected rejected/invalid, got state %v reason %v", outcome.State, outcome.Reason)
	}
}
