package account

import "context"

// Store describes the persistence operations the identity subsystem needs.
// Role elevation on request approval is deliberately absent here: it is
// written by the upgrade store inside the same transaction as the request
// status, so the two mutations commit together.
type Store interface {
	Create(ctx context.Context, u *User) error
	FindByUsername(ctx context.Context, username string) (*User, error)
	SetLocked(ctx context.Context, username string, locked bool) error
}
