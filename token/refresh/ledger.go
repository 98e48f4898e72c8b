package refresh

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Ledger is the bookkeeping layer over the refresh token repo: every issued
// refresh token is recorded here, and a token must be consumed (atomically
// revoked) before it can be replaced.
type Ledger struct {
	repo    Repo
	nowFunc func() time.Time
}

type LedgerOption func(*Ledger)

func WithNowFunc(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.nowFunc = now
	}
}

func NewLedger(repo Repo, options ...LedgerOption) (*Ledger, error) {
	if repo == nil {
		return nil, errors.New("[NewLedger] repo is required")
	}
	l := &Ledger{
		repo:    repo,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

// Record stores a freshly issued refresh token as unrevoked.
// ErrDuplicateToken is passed through so the issuer can regenerate.
func (l *Ledger) Record(ctx context.Context, tokenStr, userID string, expiresAt time.Time) error {
	err := l.repo.Store(ctx, &StoredRefreshToken{
		Token:     tokenStr,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: l.nowFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "[Ledger.Record] Store")
	}
	return nil
}

// Consume atomically retires a refresh token on behalf of its owner. On
// success the token is revoked and may never be consumed again; failures are
// one of ErrTokenNotFound, ErrTokenRevoked or ErrTokenExpired so the
// orchestrator can log the specific reason while reporting a generic failure.
func (l *Ledger) Consume(ctx context.Context, tokenStr, userID string) error {
	return l.repo.Consume(ctx, tokenStr, userID, l.nowFunc())
}

// RevokeAllForUser marks every unrevoked token for the user as revoked,
// returning how many were affected. Used by logout and compromise response.
func (l *Ledger) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := l.repo.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "[Ledger.RevokeAllForUser] RevokeAllForUser")
	}
	return n, nil
}
