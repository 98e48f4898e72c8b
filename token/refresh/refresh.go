package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicateToken = errors.New("refresh token already stored")
	ErrTokenNotFound  = errors.New("refresh token not found")
	ErrTokenRevoked   = errors.New("refresh token revoked")
	ErrTokenExpired   = errors.New("refresh token expired")
)

// StoredRefreshToken is the persisted record of an issued refresh token. The
// client only ever holds the Token string; the rest is server-side metadata
// used to enforce single-use rotation. Records are retained after revocation
// for audit and replay detection, never deleted.
type StoredRefreshToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// Repo persists refresh token records.
//
// Consume must be atomic: of two concurrent calls presenting the same token,
// exactly one succeeds and the other observes ErrTokenRevoked. Implementations
// use a compare-and-set update on the revoked flag (or equivalent locking),
// never read-then-write. An owner mismatch reports ErrTokenNotFound so callers
// cannot distinguish foreign tokens from absent ones. Revocation is monotonic.
type Repo interface {
	Store(ctx context.Context, record *StoredRefreshToken) error
	Consume(ctx context.Context, tokenStr, userID string, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	Get(ctx context.Context, tokenStr string) (*StoredRefreshToken, error)
}
