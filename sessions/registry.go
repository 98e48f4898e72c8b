package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const defaultSessionTTL = 7 * 24 * time.Hour

// Registry opens and closes login sessions.
type Registry struct {
	repo    Repo
	ttl     time.Duration
	nowFunc func() time.Time
}

type RegistryOption func(*Registry)

func WithNowFunc(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

func WithTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

func NewRegistry(repo Repo, options ...RegistryOption) (*Registry, error) {
	if repo == nil {
		return nil, errors.New("[NewRegistry] repo is required")
	}
	r := &Registry{
		repo:    repo,
		ttl:     defaultSessionTTL,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Open records a new active session for the user.
func (r *Registry) Open(ctx context.Context, userID string, metadata Metadata) (*Session, error) {
	now := r.nowFunc()
	session := &Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		Active:       true,
		Metadata:     metadata,
		CreatedAt:    now,
		ExpiresAt:    now.Add(r.ttl),
		LastAccessed: now,
	}
	if err := r.repo.Create(ctx, session); err != nil {
		return nil, errors.Wrap(err, "[Registry.Open] Create")
	}
	return session, nil
}

// CloseAllForUser deactivates every active session for the user. Closing a
// user with no active sessions is a no-op, not an error.
func (r *Registry) CloseAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := r.repo.CloseAllForUser(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "[Registry.CloseAllForUser] CloseAllForUser")
	}
	return n, nil
}
