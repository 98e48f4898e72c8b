package users

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("email or username already registered")
)

// UserRepo is the persistence contract for user identities. Create enforces
// uniqueness of email, username and (provider, provider ID); violations are
// reported as ErrDuplicate. Records are never physically deleted.
type UserRepo interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByProvider(ctx context.Context, provider, providerID string) (*User, error)
	Update(ctx context.Context, id string, patch Patch) (*User, error)
}
