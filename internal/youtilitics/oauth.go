package youtilitics

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/septivank/youtilitics-worker/internal/config"
)

// NewHTTPClient returns an HTTP client that attaches a bearer token to every
// request and refreshes it through the token endpoint when a refresh token is configured.
func NewHTTPClient(ctx context.Context, cfg config.YoutiliticsConfig) *http.Client {
	token := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
	}

	if cfg.RefreshToken == "" {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthorizeURL,
			TokenURL: cfg.TokenURL,
		},
	}
	return oauthCfg.Client(ctx, token)
}
