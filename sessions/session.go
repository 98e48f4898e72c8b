package sessions

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Metadata captures client information recorded when a session is opened.
type Metadata struct {
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// Session is a server-tracked login instance. Its lifecycle is deliberately
// decoupled from the refresh token ledger so either can be invalidated
// independently (e.g. an admin force-logout without waiting for token expiry).
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Active       bool      `json:"active"`
	Metadata     Metadata  `json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Repo persists session records. CloseAllForUser deactivates every active
// session for a user and reports how many were affected.
type Repo interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	CloseAllForUser(ctx context.Context, userID string) (int, error)
}
