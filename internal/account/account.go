package account

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound           = errors.New("account: not found")
	ErrUsernameTaken      = errors.New("account: username already taken")
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	ErrAccountLocked      = errors.New("account: account is locked")
	ErrInvalidInput       = errors.New("account: invalid input")
)

// Role is the coarse authorization level attached to a user. Routes declare
// the exact set of roles they accept; there is no ordering between roles and
// ADMIN does not imply EDITOR or USER.
type Role string

const (
	RoleUser   Role = "USER"
	RoleEditor Role = "EDITOR"
	RoleAdmin  Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole normalizes and validates a role string.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return role, nil
}

// User is an authenticated identity. Locked accounts keep their stored
// credentials but fail every authentication attempt until unlocked.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Locked       bool      `json:"locked"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
