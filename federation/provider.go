package federation

import (
	"context"
	"net"
	"net/url"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

var (
	ErrUnknownProvider = errors.New("unknown identity provider")
	// ErrExchangeFailed wraps a failed authorization-code exchange.
	ErrExchangeFailed = errors.New("provider code exchange failed")
	// ErrProfileFetchFailed wraps a failed user-info call.
	ErrProfileFetchFailed = errors.New("provider profile fetch failed")
	// ErrProfileIncomplete means the provider omitted a required field,
	// notably the email. Treated as a hard failure, never defaulted.
	ErrProfileIncomplete = errors.New("provider profile missing required fields")
)

// Profile is the normalized shape of a provider user-info response.
// Username is optional; the identity resolver derives one from the email when
// a provider (Google) has no username concept.
type Profile struct {
	Email       string
	ProviderID  string
	Username    string
	DisplayName string
	AvatarURL   string
}

// Provider drives the authorization-code exchange with one external identity
// provider and normalizes its profile shape.
type Provider interface {
	Name() string
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error)
}

// Registry is a fixed set of configured providers keyed by name.
type Registry map[string]Provider

func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

func (r Registry) Get(name string) (Provider, error) {
	p, ok := r[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Retryable reports whether a federation failure was transport-level
// (timeouts, connection faults, provider 5xx) and may be retried once by the
// caller. A code the provider rejected is single-use and must not be retried.
func Retryable(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true // transport never reached the provider
	}
	return false
}
