package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/taskify/auth-server/auth"
	"github.com/taskify/auth-server/federation"
	"github.com/taskify/auth-server/sessions"
	fakesessionrepo "github.com/taskify/auth-server/sessions/repofake"
	"github.com/taskify/auth-server/token"
	"github.com/taskify/auth-server/token/refresh"
	fakerefreshrepo "github.com/taskify/auth-server/token/refresh/repofake"
	"github.com/taskify/auth-server/users"
	fakeuserrepo "github.com/taskify/auth-server/users/repofake"
)

const (
	testEmail    = "john.doe@example.com"
	testUsername = "johndoe"
	testPassword = "Str0ngPass!"
)

// stubProvider is a canned federation.Provider for orchestration tests.
type stubProvider struct {
	name        string
	profile     *federation.Profile
	exchangeErr error
	profileErr  error
}

func (p *stubProvider) Name() string                     { return p.name }
func (p *stubProvider) AuthorizeURL(state string) string { return "https://idp.example.com/authorize?state=" + state }

func (p *stubProvider) Exchange(_ context.Context, _ string) (*oauth2.Token, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &oauth2.Token{AccessToken: "provider-access"}, nil
}

func (p *stubProvider) FetchProfile(_ context.Context, _ *oauth2.Token) (*federation.Profile, error) {
	if p.profileErr != nil {
		return nil, p.profileErr
	}
	return p.profile, nil
}

type serviceFixture struct {
	service     *auth.Service
	userRepo    *fakeuserrepo.FakeUserRepo
	refreshRepo *fakerefreshrepo.FakeRefreshTokenRepo
	sessionRepo *fakesessionrepo.FakeSessionRepo
	tokens      *token.Manager
	provider    *stubProvider
	clock       *time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	now := time.Now()
	clock := &now
	nowFunc := func() time.Time { return *clock }

	userRepo := fakeuserrepo.NewFakeUserRepo()
	resolver, err := users.NewResolver(userRepo, users.WithNowTime(nowFunc))
	require.NoError(t, err)

	tokens := token.New(token.NewHMACSigner("test-secret"), token.WithNowFunc(nowFunc))

	refreshRepo := fakerefreshrepo.NewFakeRefreshTokenRepo()
	ledger, err := refresh.NewLedger(refreshRepo, refresh.WithNowFunc(nowFunc))
	require.NoError(t, err)

	sessionRepo := fakesessionrepo.NewFakeSessionRepo()
	registry, err := sessions.NewRegistry(sessionRepo, sessions.WithNowFunc(nowFunc))
	require.NoError(t, err)

	provider := &stubProvider{
		name: "github",
		profile: &federation.Profile{
			Email:       "octo@example.com",
			ProviderID:  "42",
			Username:    "octo",
			DisplayName: "Octo Cat",
		},
	}

	service, err := auth.NewService(auth.Dependencies{
		Users:     userRepo,
		Resolver:  resolver,
		Tokens:    tokens,
		Ledger:    ledger,
		Sessions:  registry,
		Providers: federation.NewRegistry(provider),
		States:    federation.NewStateSigner("state-secret"),
	}, auth.WithNowTime(nowFunc))
	require.NoError(t, err)

	return &serviceFixture{
		service:     service,
		userRepo:    userRepo,
		refreshRepo: refreshRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		provider:    provider,
		clock:       clock,
	}
}

func (f *serviceFixture) register(t *testing.T) *auth.TokenPair {
	t.Helper()
	pair, err := f.service.Register(context.Background(), auth.RegisterParams{
		Email:    testEmail,
		Username: testUsername,
		Password: testPassword,
		FullName: "John Doe",
	}, sessions.Metadata{UserAgent: "test"})
	require.NoError(t, err)
	return pair
}

func (f *serviceFixture) userID(t *testing.T, pair *auth.TokenPair) string {
	t.Helper()
	claims, err := f.tokens.Verify(pair.AccessToken, token.TypeAccess)
	require.NoError(t, err)
	return claims.Subject
}

func TestRegisterIssuesCredentials(t *testing.T) {
	f := newServiceFixture(t)

	pair := f.register(t)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)

	claims, err := f.tokens.Verify(pair.AccessToken, token.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, testEmail, claims.Email)

	// The refresh token is on the ledger, unrevoked.
	record, err := f.refreshRepo.Get(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.False(t, record.Revoked)
	assert.Equal(t, claims.Subject, record.UserID)
}

func TestRegisterValidation(t *testing.T) {
	f := newServiceFixture(t)

	tests := []struct {
		name   string
		params auth.RegisterParams
	}{
		{"missing email", auth.RegisterParams{Username: testUsername, Password: testPassword}},
		{"missing username", auth.RegisterParams{Email: testEmail, Password: testPassword}},
		{"missing password", auth.RegisterParams{Email: testEmail, Username: testUsername}},
		{"weak password", auth.RegisterParams{Email: testEmail, Username: testUsername, Password: "weak"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Register(context.Background(), tt.params, sessions.Metadata{})
			assert.ErrorIs(t, err, auth.ErrInvalidInput)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t)

	_, err := f.service.Register(context.Background(), auth.RegisterParams{
		Email:    testEmail,
		Username: "someoneelse",
		Password: testPassword,
	}, sessions.Metadata{})
	assert.ErrorIs(t, err, auth.ErrConflict)
}

func TestLogin(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t)

	pair, err := f.service.Login(context.Background(), testEmail, testPassword, sessions.Metadata{UserAgent: "test"})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestLoginFailures(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t)

	_, err := f.service.Login(context.Background(), testEmail, "wrong-password", sessions.Metadata{})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = f.service.Login(context.Background(), "nobody@example.com", testPassword, sessions.Metadata{})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = f.service.Login(context.Background(), "", testPassword, sessions.Metadata{})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t)

	inactive := false
	_, err := f.userRepo.Update(context.Background(), f.userID(t, pair), users.Patch{Active: &inactive})
	require.NoError(t, err)

	_, err = f.service.Login(context.Background(), testEmail, testPassword, sessions.Metadata{})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestRefreshRotatesTokens(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t)

	rotated, err := f.service.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.NotEmpty(t, rotated.AccessToken)

	// The old token is spent; replaying it fails.
	_, err = f.service.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	// The replacement still works.
	_, err = f.service.Refresh(context.Background(), rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t)

	_, err := f.service.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t)

	*f.clock = f.clock.Add(8 * 24 * time.Hour)
	_, err := f.service.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = f.service.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestRefreshRejectsDisabledAccount(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t)

	inactive := false
	_, err := f.userRepo.Update(context.Background(), f.userID(t, pair), users.Patch{Active: &inactive})
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestLogoutRevokesEverything(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t)

	// A second login gives the user two live refresh tokens and two sessions.
	second, err := f.service.Login(context.Background(), testEmail, testPassword, sessions.Metadata{})
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(context.Background(), pair.AccessToken))

	_, err = f.service.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, err = f.service.Refresh(context.Background(), second.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	// Logout is idempotent.
	require.NoError(t, f.service.Logout(context.Background(), pair.AccessToken))
}

func TestLogoutRequiresAccessToken(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t)

	err := f.service.Logout(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	err = f.service.Logout(context.Background(), "garbage")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestAuthorizeURL(t *testing.T) {
	f := newServiceFixture(t)

	url, err := f.service.AuthorizeURL("github")
	require.NoError(t, err)
	assert.Contains(t, url, "https://idp.example.com/authorize?state=")

	state := url[len("https://idp.example.com/authorize?state="):]
	assert.True(t, f.service.VerifyState(state))

	_, err = f.service.AuthorizeURL("gitlab")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestFederatedCallback(t *testing.T) {
	f := newServiceFixture(t)

	pair, err := f.service.FederatedCallback(context.Background(), "github", "auth-code", sessions.Metadata{})
	require.NoError(t, err)

	claims, err := f.tokens.Verify(pair.AccessToken, token.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", claims.Email)

	user, err := f.userRepo.GetByProvider(context.Background(), "github", "42")
	require.NoError(t, err)
	assert.Equal(t, claims.Subject, user.ID)
	assert.True(t, user.Verified)

	// A repeat callback resolves to the same account.
	again, err := f.service.FederatedCallback(context.Background(), "github", "another-code", sessions.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, claims.Subject, f.userID(t, again))
}

func TestFederatedCallbackValidation(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.FederatedCallback(context.Background(), "gitlab", "auth-code", sessions.Metadata{})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	_, err = f.service.FederatedCallback(context.Background(), "github", "", sessions.Metadata{})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestFederatedCallbackUpstreamFailures(t *testing.T) {
	f := newServiceFixture(t)

	f.provider.exchangeErr = federation.ErrExchangeFailed
	_, err := f.service.FederatedCallback(context.Background(), "github", "auth-code", sessions.Metadata{})
	assert.ErrorIs(t, err, auth.ErrUpstream)

	f.provider.exchangeErr = nil
	f.provider.profileErr = federation.ErrProfileIncomplete
	_, err = f.service.FederatedCallback(context.Background(), "github", "auth-code", sessions.Metadata{})
	assert.ErrorIs(t, err, auth.ErrUpstream)
}

func TestFederatedCallbackEmailConflict(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t)
	f.provider.profile.Email = testEmail
	f.provider.profile.ProviderID = "999"

	_, err := f.service.FederatedCallback(context.Background(), "github", "auth-code", sessions.Metadata{})
	assert.ErrorIs(t, err, auth.ErrConflict)
}
