package federation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/taskify/auth-server/users"
)

const defaultGoogleIssuer = "https://accounts.google.com"

// GoogleProvider drives the Google OIDC flow. Endpoints come from the
// issuer's discovery document and the profile from the OIDC UserInfo
// endpoint, so nothing Google-specific is hardcoded beyond the issuer URL.
type GoogleProvider struct {
	oauth      oauth2.Config
	provider   *oidc.Provider
	httpClient *http.Client
}

type GoogleOption func(*googleSettings)

type googleSettings struct {
	issuer string
}

// WithGoogleIssuer overrides the OIDC issuer URL (tests).
func WithGoogleIssuer(issuer string) GoogleOption {
	return func(s *googleSettings) {
		s.issuer = issuer
	}
}

// NewGoogleProvider performs OIDC discovery against the issuer, so it needs a
// context and network access at construction time.
func NewGoogleProvider(ctx context.Context, clientID, clientSecret, redirectURI string, options ...GoogleOption) (*GoogleProvider, error) {
	settings := googleSettings{issuer: defaultGoogleIssuer}
	for _, opt := range options {
		opt(&settings)
	}

	httpClient := &http.Client{Timeout: providerRequestTimeout}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), settings.issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[NewGoogleProvider] oidc.NewProvider")
	}

	return &GoogleProvider{
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		provider:   provider,
		httpClient: httpClient,
	}, nil
}

func (p *GoogleProvider) Name() string {
	return users.ProviderGoogle
}

func (p *GoogleProvider) AuthorizeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, providerRequestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		// Keep the cause in the chain so Retryable can classify it.
		return nil, fmt.Errorf("%w: google: %w", ErrExchangeFailed, err)
	}
	return tok, nil
}

func (p *GoogleProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, providerRequestTimeout)
	defer cancel()
	ctx = oidc.ClientContext(ctx, p.httpClient)

	info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("%w: google: %w", ErrProfileFetchFailed, err)
	}

	var claims struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := info.Claims(&claims); err != nil {
		return nil, errors.Wrapf(ErrProfileFetchFailed, "google: claims: %v", err)
	}

	if info.Email == "" || info.Subject == "" {
		return nil, errors.Wrap(ErrProfileIncomplete, "google")
	}

	return &Profile{
		Email:       info.Email,
		ProviderID:  info.Subject,
		DisplayName: claims.Name,
		AvatarURL:   claims.Picture,
	}, nil
}
