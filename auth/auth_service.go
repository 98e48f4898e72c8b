package auth

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/taskify/auth-server/federation"
	"github.com/taskify/auth-server/sessions"
	"github.com/taskify/auth-server/token"
	"github.com/taskify/auth-server/token/refresh"
	"github.com/taskify/auth-server/users"
)

// Dependencies holds everything the orchestrator coordinates.
type Dependencies struct {
	Users     users.UserRepo        // user records (refresh needs a direct lookup)
	Resolver  *users.Resolver       // identity resolution
	Tokens    *token.Manager        // token codec
	Ledger    *refresh.Ledger       // refresh token ledger
	Sessions  *sessions.Registry    // session registry
	Providers federation.Registry   // federated identity providers
	States    *federation.StateSigner
}

// Service is the authentication façade: it coordinates credential checks,
// federation exchanges, token issuance, the refresh token ledger and the
// session registry for the register / login / refresh / logout / federated
// flows. A credential lifecycle moves Unauthenticated -> Authenticated ->
// (rotated)* -> Revoked; there is no automatic re-authentication.
type Service struct {
	deps    Dependencies
	nowTime func() time.Time
}

type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func NewService(deps Dependencies, options ...ServiceOption) (*Service, error) {
	if deps.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("[NewService] Resolver is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("[NewService] Tokens manager is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("[NewService] Ledger is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("[NewService] Sessions registry is required")
	}
	if deps.States == nil {
		return nil, errors.New("[NewService] State signer is required")
	}

	s := &Service{
		deps:    deps,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// TokenPair is the credential set returned by every successful flow.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type RegisterParams struct {
	Email    string
	Username string
	Password string
	FullName string
}

// Register creates a local account and logs it in, issuing a token pair and
// opening a session.
func (s *Service) Register(ctx context.Context, params RegisterParams, meta sessions.Metadata) (*TokenPair, error) {
	if strings.TrimSpace(params.Email) == "" || strings.TrimSpace(params.Username) == "" || params.Password == "" {
		return nil, ErrInvalidInput
	}
	if err := users.ValidatePasswordStrength(params.Password); err != nil {
		return nil, errors.Wrap(ErrInvalidInput, err.Error())
	}

	user, err := s.deps.Resolver.RegisterLocal(ctx, params.Email, params.Username, params.Password, params.FullName)
	if err != nil {
		if errors.Is(err, users.ErrDuplicate) {
			return nil, ErrConflict
		}
		log.Error().Err(err).Msg("register failed")
		return nil, ErrInternal
	}

	return s.issueTokens(ctx, user, true, meta)
}

// Login authenticates a local password credential. Unknown accounts, wrong
// passwords, federated-only accounts and disabled accounts all surface as
// ErrUnauthenticated; the distinction is only logged.
func (s *Service) Login(ctx context.Context, email, password string, meta sessions.Metadata) (*TokenPair, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.deps.Resolver.AuthenticateLocal(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrInvalidCredentials):
			log.Debug().Str("email", email).Msg("login rejected: invalid credentials")
			return nil, ErrUnauthenticated
		case errors.Is(err, users.ErrAccountDisabled):
			log.Info().Str("email", email).Msg("login rejected: account disabled")
			return nil, ErrUnauthenticated
		default:
			log.Error().Err(err).Msg("login failed")
			return nil, ErrInternal
		}
	}

	return s.issueTokens(ctx, user, true, meta)
}

// Refresh rotates a refresh token: the presented token is verified, consumed
// in the ledger (atomic revoke) and replaced by a brand-new pair. Any failure
// is terminal for that token; the caller must log in again.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidInput
	}

	claims, err := s.deps.Tokens.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		log.Debug().Err(err).Msg("refresh rejected: token verification failed")
		return nil, ErrUnauthenticated
	}

	if err := s.deps.Ledger.Consume(ctx, refreshToken, claims.Subject); err != nil {
		switch {
		case errors.Is(err, refresh.ErrTokenNotFound),
			errors.Is(err, refresh.ErrTokenRevoked),
			errors.Is(err, refresh.ErrTokenExpired):
			log.Info().Err(err).Str("user_id", claims.Subject).Msg("refresh rejected by ledger")
			return nil, ErrUnauthenticated
		default:
			log.Error().Err(err).Msg("refresh ledger failure")
			return nil, ErrInternal
		}
	}

	user, err := s.deps.Users.GetByID(ctx, claims.Subject)
	if err != nil {
		log.Warn().Str("user_id", claims.Subject).Msg("refresh rejected: user missing")
		return nil, ErrUnauthenticated
	}
	if !user.Active {
		log.Info().Str("user_id", user.ID).Msg("refresh rejected: account disabled")
		return nil, ErrUnauthenticated
	}

	// Rotation: the old token is already revoked at this point, so even on a
	// downstream failure it cannot be replayed.
	return s.issueTokens(ctx, user, false, sessions.Metadata{})
}

// Logout revokes every refresh token and closes every session for the token's
// owner. Logging out an already-revoked user is a no-op, not an error.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.deps.Tokens.Verify(accessToken, token.TypeAccess)
	if err != nil {
		log.Debug().Err(err).Msg("logout rejected: token verification failed")
		return ErrUnauthenticated
	}

	revoked, err := s.deps.Ledger.RevokeAllForUser(ctx, claims.Subject)
	if err != nil {
		log.Error().Err(err).Msg("logout: revoke all failed")
		return ErrInternal
	}

	closed, err := s.deps.Sessions.CloseAllForUser(ctx, claims.Subject)
	if err != nil {
		log.Error().Err(err).Msg("logout: close sessions failed")
		return ErrInternal
	}

	log.Info().Str("user_id", claims.Subject).Int("tokens_revoked", revoked).Int("sessions_closed", closed).Msg("user logged out")
	return nil
}

// AuthorizeURL returns the provider consent-screen redirect URL, carrying a
// signed CSRF state the callback will verify.
func (s *Service) AuthorizeURL(providerName string) (string, error) {
	provider, err := s.deps.Providers.Get(providerName)
	if err != nil {
		return "", ErrInvalidInput
	}
	state, err := s.deps.States.New()
	if err != nil {
		log.Error().Err(err).Msg("state generation failed")
		return "", ErrInternal
	}
	return provider.AuthorizeURL(state), nil
}

// VerifyState checks a state parameter echoed back by a provider callback.
func (s *Service) VerifyState(state string) bool {
	return s.deps.States.Verify(state)
}

// FederatedCallback completes a federated login: it exchanges the
// authorization code, fetches and normalizes the profile, resolves the
// identity, then issues tokens and opens a session. The provider round trips
// happen entirely before any local write.
func (s *Service) FederatedCallback(ctx context.Context, providerName, code string, meta sessions.Metadata) (*TokenPair, error) {
	provider, err := s.deps.Providers.Get(providerName)
	if err != nil {
		return nil, ErrInvalidInput
	}
	if code == "" {
		return nil, ErrInvalidInput
	}

	providerToken, err := provider.Exchange(ctx, code)
	if err != nil {
		log.Warn().Err(err).Str("provider", providerName).Bool("retryable", federation.Retryable(err)).Msg("code exchange failed")
		return nil, ErrUpstream
	}

	profile, err := provider.FetchProfile(ctx, providerToken)
	if err != nil {
		log.Warn().Err(err).Str("provider", providerName).Bool("retryable", federation.Retryable(err)).Msg("profile fetch failed")
		return nil, ErrUpstream
	}

	user, err := s.deps.Resolver.ResolveOrCreateFederated(ctx, users.FederatedIdentity{
		Provider:    providerName,
		ProviderID:  profile.ProviderID,
		Email:       profile.Email,
		Username:    profile.Username,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, users.ErrIdentityConflict):
			log.Warn().Str("provider", providerName).Msg("federated login rejected: email held by another account")
			return nil, ErrConflict
		case errors.Is(err, users.ErrAccountDisabled):
			log.Info().Str("provider", providerName).Msg("federated login rejected: account disabled")
			return nil, ErrUnauthenticated
		default:
			log.Error().Err(err).Msg("federated identity resolution failed")
			return nil, ErrInternal
		}
	}

	return s.issueTokens(ctx, user, true, meta)
}

func (s *Service) issueTokens(ctx context.Context, user *users.User, openSession bool, meta sessions.Metadata) (*TokenPair, error) {
	accessToken, err := s.deps.Tokens.IssueAccess(user.ID, user.Email)
	if err != nil {
		log.Error().Err(err).Msg("access token issuance failed")
		return nil, ErrInternal
	}

	refreshToken, err := s.recordRefreshToken(ctx, user.ID)
	if err != nil {
		log.Error().Err(err).Msg("refresh token issuance failed")
		return nil, ErrInternal
	}

	if openSession {
		if _, err := s.deps.Sessions.Open(ctx, user.ID, meta); err != nil {
			log.Error().Err(err).Msg("session open failed")
			return nil, ErrInternal
		}
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	}, nil
}

// recordRefreshToken issues and stores a refresh token. A duplicate token
// string is cryptographically improbable (random jti) but still handled by
// regenerating once.
func (s *Service) recordRefreshToken(ctx context.Context, userID string) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		refreshToken, expiresAt, err := s.deps.Tokens.IssueRefresh(userID)
		if err != nil {
			return "", errors.Wrap(err, "[Service.recordRefreshToken] IssueRefresh")
		}
		err = s.deps.Ledger.Record(ctx, refreshToken, userID, expiresAt)
		if err == nil {
			return refreshToken, nil
		}
		if !errors.Is(err, refresh.ErrDuplicateToken) {
			return "", errors.Wrap(err, "[Service.recordRefreshToken] Record")
		}
	}
	return "", errors.New("[Service.recordRefreshToken] duplicate token twice")
}
