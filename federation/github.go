package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/taskify/auth-server/users"
)

const (
	defaultGitHubAPIBaseURL = "https://api.github.com"
	providerRequestTimeout  = 10 * time.Second
)

// GitHubProvider drives the GitHub OAuth2 flow. GitHub is plain OAuth2 (no
// OIDC), so the profile comes from the REST /user endpoint.
type GitHubProvider struct {
	oauth      oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

type GitHubOption func(*GitHubProvider)

// WithGitHubAPIBaseURL overrides the REST API base URL (tests).
func WithGitHubAPIBaseURL(baseURL string) GitHubOption {
	return func(p *GitHubProvider) {
		p.apiBaseURL = baseURL
	}
}

// WithGitHubEndpoint overrides the OAuth2 endpoint (tests).
func WithGitHubEndpoint(endpoint oauth2.Endpoint) GitHubOption {
	return func(p *GitHubProvider) {
		p.oauth.Endpoint = endpoint
	}
}

func NewGitHubProvider(clientID, clientSecret, redirectURI string, options ...GitHubOption) *GitHubProvider {
	p := &GitHubProvider{
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBaseURL: defaultGitHubAPIBaseURL,
		httpClient: &http.Client{Timeout: providerRequestTimeout},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *GitHubProvider) Name() string {
	return users.ProviderGitHub
}

func (p *GitHubProvider) AuthorizeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, providerRequestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		// Keep the cause in the chain so Retryable can classify it.
		return nil, fmt.Errorf("%w: github: %w", ErrExchangeFailed, err)
	}
	return tok, nil
}

func (p *GitHubProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, providerRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+"/user", nil)
	if err != nil {
		return nil, errors.Wrap(err, "[GitHubProvider.FetchProfile] NewRequest")
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: github: %w", ErrProfileFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrProfileFetchFailed, "github: status %d", resp.StatusCode)
	}

	var info struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.Wrapf(ErrProfileFetchFailed, "github: decode: %v", err)
	}

	// GitHub omits the email unless the user exposes a public one; a profile
	// without an email cannot be mapped to an identity.
	if info.Email == "" || info.ID == 0 {
		return nil, errors.Wrap(ErrProfileIncomplete, "github")
	}

	return &Profile{
		Email:       info.Email,
		ProviderID:  fmt.Sprintf("%d", info.ID),
		Username:    info.Login,
		DisplayName: info.Name,
		AvatarURL:   info.AvatarURL,
	}, nil
}
