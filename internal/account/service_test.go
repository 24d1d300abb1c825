package account

import (
	"context"
	"errors"
	"testing"
)

type memStore struct {
	users map[string]*User
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*User)}
}

func (s *memStore) Create(ctx context.Context, u *User) error {
	if _, ok := s.users[u.Username]; ok {
		return ErrUsernameTaken
	}
	if u.ID == "" {
		u.ID = "id-" + u.Username
	}
	s.users[u.Username] = u
	return nil
}

func (s *memStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *memStore) SetLocked(ctx context.Context, username string, locked bool) error {
	u, ok := s.users[username]
	if !ok {
		return ErrNotFound
	}
	u.Locked = locked
	return nil
}

func TestRegisterNormalizesUsername(t *testing.T) {
	store := newMemStore()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	user, err := svc.Register(context.Background(), "  Alice  ", "long-enough")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("expected lowercase username, got %q", user.Username)
	}
	if user.Role != RoleUser {
		t.Fatalf("new accounts start as USER, got %s", user.Role)
	}
	if user.PasswordHash == "long-enough" {
		t.Fatalf("password must be stored hashed")
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, _ := NewService(newMemStore())

	if _, err := svc.Register(context.Background(), "ab", "long-enough"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short username, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "alice", "short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
}

func TestAuthenticateUniformFailure(t *testing.T) {
	store := newMemStore()
	svc, _ := NewService(store)
	if _, err := svc.Register(context.Background(), "alice", "correct-horse"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "ghost", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestAuthenticateLocked(t *testing.T) {
	store := newMemStore()
	svc, _ := NewService(store)
	if _, err := svc.Register(context.Background(), "alice", "correct-horse"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.SetLocked(context.Background(), "alice", true); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), "alice", "correct-horse"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	for raw, want := range map[string]Role{
		"user":   RoleUser,
		"EDITOR": RoleEditor,
		" admin": RoleAdmin,
	} {
		got, err := ParseRole(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", raw, want, got)
		}
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}
