package users_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskify/auth-server/users"
	fakeuserrepo "github.com/taskify/auth-server/users/repofake"
)

const (
	testEmail    = "john.doe@example.com"
	testUsername = "johndoe"
	testPassword = "Str0ngPass!"
)

type resolverFixture struct {
	repo     *fakeuserrepo.FakeUserRepo
	resolver *users.Resolver
	now      time.Time
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	repo := fakeuserrepo.NewFakeUserRepo()
	now := time.Now()
	resolver, err := users.NewResolver(repo, users.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)
	return &resolverFixture{repo: repo, resolver: resolver, now: now}
}

func (f *resolverFixture) registerLocal(t *testing.T) *users.User {
	t.Helper()
	user, err := f.resolver.RegisterLocal(context.Background(), testEmail, testUsername, testPassword, "John Doe")
	require.NoError(t, err)
	return user
}

func (f *resolverFixture) deactivate(t *testing.T, id string) {
	t.Helper()
	inactive := false
	_, err := f.repo.Update(context.Background(), id, users.Patch{Active: &inactive})
	require.NoError(t, err)
}

func TestRegisterLocal(t *testing.T) {
	f := newResolverFixture(t)

	user := f.registerLocal(t)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, testEmail, user.Email)
	assert.Equal(t, users.ProviderLocal, user.Provider)
	assert.True(t, user.Active)
	assert.False(t, user.Verified)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, testPassword, user.PasswordHash)
}

func TestRegisterLocalDuplicate(t *testing.T) {
	f := newResolverFixture(t)
	f.registerLocal(t)

	_, err := f.resolver.RegisterLocal(context.Background(), testEmail, "someoneelse", testPassword, "")
	assert.ErrorIs(t, err, users.ErrDuplicate)

	_, err = f.resolver.RegisterLocal(context.Background(), "other@example.com", testUsername, testPassword, "")
	assert.ErrorIs(t, err, users.ErrDuplicate)
}

func TestAuthenticateLocal(t *testing.T) {
	f := newResolverFixture(t)
	f.registerLocal(t)

	user, err := f.resolver.AuthenticateLocal(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, testEmail, user.Email)
	assert.WithinDuration(t, f.now, user.LastLogin, time.Second)
}

func TestAuthenticateLocalInvalidCredentials(t *testing.T) {
	f := newResolverFixture(t)
	f.registerLocal(t)

	// Unknown account and wrong password are indistinguishable to the caller.
	_, err := f.resolver.AuthenticateLocal(context.Background(), "nobody@example.com", testPassword)
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)

	_, err = f.resolver.AuthenticateLocal(context.Background(), testEmail, "wrong-password")
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)
}

func TestAuthenticateLocalFederatedOnlyAccount(t *testing.T) {
	f := newResolverFixture(t)

	_, err := f.resolver.ResolveOrCreateFederated(context.Background(), users.FederatedIdentity{
		Provider:   users.ProviderGoogle,
		ProviderID: "google-123",
		Email:      testEmail,
	})
	require.NoError(t, err)

	_, err = f.resolver.AuthenticateLocal(context.Background(), testEmail, testPassword)
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)
}

func TestAuthenticateLocalDisabledAccount(t *testing.T) {
	f := newResolverFixture(t)
	user := f.registerLocal(t)
	f.deactivate(t, user.ID)

	_, err := f.resolver.AuthenticateLocal(context.Background(), testEmail, testPassword)
	assert.ErrorIs(t, err, users.ErrAccountDisabled)
}

func TestResolveFederatedFirstSighting(t *testing.T) {
	f := newResolverFixture(t)

	user, err := f.resolver.ResolveOrCreateFederated(context.Background(), users.FederatedIdentity{
		Provider:    users.ProviderGitHub,
		ProviderID:  "gh-42",
		Email:       testEmail,
		Username:    "octo",
		DisplayName: "Octo Cat",
		AvatarURL:   "https://example.com/a.png",
	})
	require.NoError(t, err)
	assert.Equal(t, users.ProviderGitHub, user.Provider)
	assert.Equal(t, "gh-42", user.ProviderID)
	assert.Equal(t, "octo", user.Username)
	assert.True(t, user.Verified)
	assert.Empty(t, user.PasswordHash)
	assert.False(t, user.LastLogin.IsZero())
}

func TestResolveFederatedReturningUser(t *testing.T) {
	f := newResolverFixture(t)

	identity := users.FederatedIdentity{
		Provider:   users.ProviderGoogle,
		ProviderID: "google-123",
		Email:      testEmail,
	}
	first, err := f.resolver.ResolveOrCreateFederated(context.Background(), identity)
	require.NoError(t, err)

	// A second login with the same provider pair resolves to the same account
	// even if the email at the provider has changed since.
	identity.Email = "renamed@example.com"
	second, err := f.resolver.ResolveOrCreateFederated(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, testEmail, second.Email)
}

func TestResolveFederatedUsernameFromEmail(t *testing.T) {
	f := newResolverFixture(t)

	user, err := f.resolver.ResolveOrCreateFederated(context.Background(), users.FederatedIdentity{
		Provider:   users.ProviderGoogle,
		ProviderID: "google-123",
		Email:      testEmail,
	})
	require.NoError(t, err)
	assert.Equal(t, "john.doe", user.Username)
}

func TestResolveFederatedUsernameCollision(t *testing.T) {
	f := newResolverFixture(t)

	_, err := f.resolver.RegisterLocal(context.Background(), "other@example.com", "john.doe", testPassword, "")
	require.NoError(t, err)

	user, err := f.resolver.ResolveOrCreateFederated(context.Background(), users.FederatedIdentity{
		Provider:   users.ProviderGoogle,
		ProviderID: "google-123",
		Email:      testEmail,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(user.Username, "john.doe-"))
	assert.NotEqual(t, "john.doe", user.Username)
}

func TestResolveFederatedEmailConflict(t *testing.T) {
	f := newResolverFixture(t)
	f.registerLocal(t)

	_, err := f.resolver.ResolveOrCreateFederated(context.Background(), users.FederatedIdentity{
		Provider:   users.ProviderGoogle,
		ProviderID: "google-123",
		Email:      testEmail,
	})
	assert.ErrorIs(t, err, users.ErrIdentityConflict)
}

func TestResolveFederatedDisabledAccount(t *testing.T) {
	f := newResolverFixture(t)

	identity := users.FederatedIdentity{
		Provider:   users.ProviderGoogle,
		ProviderID: "google-123",
		Email:      testEmail,
	}
	user, err := f.resolver.ResolveOrCreateFederated(context.Background(), identity)
	require.NoError(t, err)
	f.deactivate(t, user.ID)

	_, err = f.resolver.ResolveOrCreateFederated(context.Background(), identity)
	assert.ErrorIs(t, err, users.ErrAccountDisabled)
}

func TestResolveFederatedIncompleteProfile(t *testing.T) {
	f := newResolverFixture(t)

	_, err := f.resolver.ResolveOrCreateFederated(context.Background(), users.FederatedIdentity{
		Provider:   users.ProviderGoogle,
		ProviderID: "google-123",
	})
	assert.Error(t, err)

	_, err = f.resolver.ResolveOrCreateFederated(context.Background(), users.FederatedIdentity{
		Provider: users.ProviderGoogle,
		Email:    testEmail,
	})
	assert.Error(t, err)
}
