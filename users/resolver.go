package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrAccountDisabled    = errors.New("account is deactivated")
	// ErrIdentityConflict is returned when a federated login presents an email
	// that already belongs to a differently-provisioned account.
	ErrIdentityConflict = errors.New("email already registered with different credentials")
)

// FederatedIdentity is a provider-verified profile handed to the resolver by
// the federation layer.
type FederatedIdentity struct {
	Provider    string
	ProviderID  string
	Email       string
	Username    string // optional; derived from the email when absent
	DisplayName string
	AvatarURL   string
}

// Resolver maps verified credentials or federated profiles to internal user
// identities, creating identities on first sighting.
type Resolver struct {
	repo    UserRepo
	nowTime func() time.Time
}

type ResolverOption func(*Resolver)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.nowTime = nowFunc
	}
}

func NewResolver(repo UserRepo, options ...ResolverOption) (*Resolver, error) {
	if repo == nil {
		return nil, errors.New("[NewResolver] user repo is required")
	}
	r := &Resolver{
		repo:    repo,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// RegisterLocal creates a local-password account. Email and username
// collisions surface as ErrDuplicate. New accounts start unverified.
func (r *Resolver) RegisterLocal(ctx context.Context, email, username, password, fullName string) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[Resolver.RegisterLocal] HashPassword")
	}

	now := r.nowTime()
	user := &User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FullName:     fullName,
		Provider:     ProviderLocal,
		Active:       true,
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := r.repo.Create(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[Resolver.RegisterLocal] Create")
	}
	return user, nil
}

// AuthenticateLocal verifies an email/password pair. "No such user", "wrong
// password" and "federated-only account" all collapse into
// ErrInvalidCredentials so callers cannot probe which accounts exist.
func (r *Resolver) AuthenticateLocal(ctx context.Context, email, password string) (*User, error) {
	user, err := r.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.PasswordHash == "" || !CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		return nil, ErrAccountDisabled
	}

	return r.touchLastLogin(ctx, user)
}

// ResolveOrCreateFederated maps a provider profile to an internal identity.
//
// Matching is by (provider, provider ID) first; the email is consulted only
// when the provider pair is unknown, and an email already claimed by another
// account is a hard ErrIdentityConflict rather than a silent merge. This
// deliberately closes the takeover window left open by matching on email
// alone: an attacker cannot pre-register a victim's address locally and then
// absorb the victim's federated login.
func (r *Resolver) ResolveOrCreateFederated(ctx context.Context, identity FederatedIdentity) (*User, error) {
	if identity.Email == "" || identity.ProviderID == "" {
		return nil, errors.New("[Resolver.ResolveOrCreateFederated] profile missing email or provider ID")
	}

	user, err := r.repo.GetByProvider(ctx, identity.Provider, identity.ProviderID)
	if err == nil {
		if !user.Active {
			return nil, ErrAccountDisabled
		}
		return r.touchLastLogin(ctx, user)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "[Resolver.ResolveOrCreateFederated] GetByProvider")
	}

	if _, err := r.repo.GetByEmail(ctx, identity.Email); err == nil {
		return nil, ErrIdentityConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "[Resolver.ResolveOrCreateFederated] GetByEmail")
	}

	user, err = r.createFederated(ctx, identity)
	if err != nil {
		return nil, err
	}
	return r.touchLastLogin(ctx, user)
}

func (r *Resolver) createFederated(ctx context.Context, identity FederatedIdentity) (*User, error) {
	username := identity.Username
	if username == "" {
		username = strings.SplitN(identity.Email, "@", 2)[0]
	}

	now := r.nowTime()
	user := &User{
		ID:         uuid.New().String(),
		Email:      identity.Email,
		Username:   username,
		FullName:   identity.DisplayName,
		AvatarURL:  identity.AvatarURL,
		Provider:   identity.Provider,
		ProviderID: identity.ProviderID,
		Active:     true,
		Verified:   true, // the provider vouches for the email
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := r.repo.Create(ctx, user)
	if errors.Is(err, ErrDuplicate) {
		// The email was free, so only the derived username can collide.
		user.Username = username + "-" + uuid.New().String()[:8]
		err = r.repo.Create(ctx, user)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Resolver.createFederated] Create")
	}
	return user, nil
}

func (r *Resolver) touchLastLogin(ctx context.Context, user *User) (*User, error) {
	now := r.nowTime()
	updated, err := r.repo.Update(ctx, user.ID, Patch{LastLogin: &now})
	if err != nil {
		return nil, errors.Wrap(err, "[Resolver.touchLastLogin] Update")
	}
	return updated, nil
}
