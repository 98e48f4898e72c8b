// Package config loads the process configuration from the environment. The
// parsed struct is built once at the composition root and handed to the
// components that need it; nothing reads env vars lazily at call time.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Enabled reports whether the provider has been configured at all.
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	Env     string `env:"ENV" envDefault:"DEV"`
	AppName string `env:"APP_NAME" envDefault:"Taskify Auth"`

	SecretKey       string        `env:"SECRET_KEY,required,notEmpty"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI" envDefault:"http://localhost:3000/auth/callback/google"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURI  string `env:"GITHUB_REDIRECT_URI" envDefault:"http://localhost:3000/auth/callback/github"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] Parse")
	}
	return &cfg, nil
}

func (c *Config) Addr() string {
	if len(c.Port) > 0 && c.Port[0] == ':' {
		return c.Port
	}
	return ":" + c.Port
}

func (c *Config) Google() ProviderConfig {
	return ProviderConfig{
		ClientID:     c.GoogleClientID,
		ClientSecret: c.GoogleClientSecret,
		RedirectURI:  c.GoogleRedirectURI,
	}
}

func (c *Config) GitHub() ProviderConfig {
	return ProviderConfig{
		ClientID:     c.GitHubClientID,
		ClientSecret: c.GitHubClientSecret,
		RedirectURI:  c.GitHubRedirectURI,
	}
}
