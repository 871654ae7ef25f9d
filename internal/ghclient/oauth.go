package ghclient

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// Scopes requested when a user connects their GitHub account.
var Scopes = []string{"read:user", "user:email", "repo"}

type OAuth struct {
	config *oauth2.Config
}

func NewOAuth(clientID, clientSecret, redirectURL string) *OAuth {
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint:     github.Endpoint,
		},
	}
}

// WithEndpoint overrides the authorize and token URLs.
func (o *OAuth) WithEndpoint(authURL, tokenURL string) *OAuth {
	cfg := *o.config
	cfg.Endpoint = oauth2.Endpoint{
		AuthURL:   authURL,
		TokenURL:  tokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}

	return &OAuth{config: &cfg}
}

func (o *OAuth) Configured() bool {
	return o.config.ClientID != "" && o.config.ClientSecret != ""
}

func (o *OAuth) AuthorizeURL(state string) string {
	return o.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", errors.New("code is empty")
	}

	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("access token is missing")
	}

	return tok.AccessToken, nil
}
