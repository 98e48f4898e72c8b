package fakerefreshrepo

import (
	"context"
	"sync"
	"time"

	"github.com/taskify/auth-server/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

// FakeRefreshTokenRepo is an in-memory ledger store. The single mutex gives it
// the same consume/revoke atomicity the Redis implementation gets from Lua.
type FakeRefreshTokenRepo struct {
	tokens map[string]*refresh.StoredRefreshToken
	lock   sync.Mutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		tokens: make(map[string]*refresh.StoredRefreshToken),
	}
}

func (r *FakeRefreshTokenRepo) Store(_ context.Context, record *refresh.StoredRefreshToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.tokens[record.Token]; ok {
		return refresh.ErrDuplicateToken
	}
	clone := *record
	r.tokens[record.Token] = &clone
	return nil
}

func (r *FakeRefreshTokenRepo) Consume(_ context.Context, tokenStr, userID string, now time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	record, ok := r.tokens[tokenStr]
	if !ok || record.UserID != userID {
		return refresh.ErrTokenNotFound
	}
	if record.Revoked {
		return refresh.ErrTokenRevoked
	}
	if now.After(record.ExpiresAt) {
		return refresh.ErrTokenExpired
	}
	record.Revoked = true
	return nil
}

func (r *FakeRefreshTokenRepo) RevokeAllForUser(_ context.Context, userID string) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	revoked := 0
	for _, record := range r.tokens {
		if record.UserID == userID && !record.Revoked {
			record.Revoked = true
			revoked++
		}
	}
	return revoked, nil
}

func (r *FakeRefreshTokenRepo) Get(_ context.Context, tokenStr string) (*refresh.StoredRefreshToken, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	record, ok := r.tokens[tokenStr]
	if !ok {
		return nil, refresh.ErrTokenNotFound
	}
	clone := *record
	return &clone, nil
}
