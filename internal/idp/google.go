package idp

import (
	"context"
	"fmt"

	"github.com/dgellow/signin-front/internal/emailutil"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleUserInfoURL is Google's OpenID Connect userinfo endpoint.
const GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleProvider implements the Provider interface for Google OAuth.
// Google reports the Workspace domain in `hd`.
type GoogleProvider struct {
	oauthClient
}

type googleUserInfoResponse struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	HostedDomain  string `json:"hd"`
}

// NewGoogleProvider creates a new Google OAuth provider.
func NewGoogleProvider(clientID, clientSecret, redirectURI string, opts ...Option) *GoogleProvider {
	p := &GoogleProvider{
		oauthClient: oauthClient{
			config: oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RedirectURL:  redirectURI,
				Scopes:       []string{"openid", "email", "profile"},
				Endpoint:     google.Endpoint,
			},
			userInfoURL: GoogleUserInfoURL,
		},
	}
	p.apply(opts)
	return p
}

// Type returns the provider type.
func (p *GoogleProvider) Type() string {
	return "google"
}

// AuthURL generates the authorization URL. Only an access token is
// requested and the account chooser is always shown.
func (p *GoogleProvider) AuthURL(state, verifier string) string {
	return p.authURL(state, verifier,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *GoogleProvider) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	return p.exchange(ctx, code, verifier)
}

// UserInfo fetches user information from Google's userinfo endpoint.
func (p *GoogleProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	var googleUser googleUserInfoResponse
	if err := p.fetchUserInfo(ctx, token, &googleUser); err != nil {
		return nil, err
	}
	if googleUser.Sub == "" {
		return nil, fmt.Errorf("%w: response missing subject", ErrProfileFetchFailed)
	}

	// Use Google's hosted domain if available, otherwise derive from email
	domain := emailutil.Normalize(googleUser.HostedDomain)
	if domain == "" {
		domain = emailutil.ExtractDomain(googleUser.Email)
	}

	return &Profile{
		ProviderType:  p.Type(),
		Subject:       googleUser.Sub,
		Email:         emailutil.Normalize(googleUser.Email),
		EmailVerified: googleUser.EmailVerified,
		Name:          googleUser.Name,
		Picture:       googleUser.Picture,
		Domain:        domain,
	}, nil
}
