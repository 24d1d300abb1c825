package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 64
	minPasswordLen = 8
)

// Service wraps Store with input validation and credential checks.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("account store is required")
	}
	return &Service{store: store}, nil
}

// Register creates a fresh USER account.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return nil, fmt.Errorf("%w: username must be %d-%d characters", ErrInvalidInput, minUsernameLen, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Username:     username,
		PasswordHash: hash,
		Role:         RoleUser,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies username/password and returns the matching account.
// Lookup failures and password mismatches report the same error so callers
// cannot distinguish an unknown username from a wrong password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Locked {
		return nil, ErrAccountLocked
	}
	return user, nil
}

// FindByUsername resolves a stored account.
func (s *Service) FindByUsername(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return s.store.FindByUsername(ctx, username)
}

// SetLocked flips the account lock flag.
func (s *Service) SetLocked(ctx context.Context, username string, locked bool) error {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return s.store.SetLocked(ctx, username, locked)
}
