package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/signin-front/internal/emailutil"
	"github.com/dgellow/signin-front/internal/ioutil"
	"golang.org/x/oauth2"
)

// OIDCConfig configures a generic OIDC provider.
type OIDCConfig struct {
	// ProviderType identifies this provider; defaults to "oidc".
	ProviderType string

	// Discovery URL for OIDC discovery (optional if endpoints are provided directly).
	DiscoveryURL string

	// Direct endpoint configuration (used if DiscoveryURL is not set).
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string

	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// OIDCProvider implements the Provider interface for OIDC-compliant identity providers.
type OIDCProvider struct {
	oauthClient
	providerType string
}

type oidcDiscoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
	Issuer                string `json:"issuer"`
}

type oidcUserInfoResponse struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// NewOIDCProvider creates a new OIDC provider, fetching the discovery
// document when DiscoveryURL is set.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig, opts ...Option) (*OIDCProvider, error) {
	p := &OIDCProvider{providerType: cfg.ProviderType}
	if p.providerType == "" {
		p.providerType = "oidc"
	}
	p.config = oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
	}
	if len(p.config.Scopes) == 0 {
		p.config.Scopes = []string{"openid", "email", "profile"}
	}
	p.apply(opts)

	if cfg.DiscoveryURL != "" {
		discovery, err := p.fetchDiscovery(ctx, cfg.DiscoveryURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch OIDC discovery: %w", err)
		}
		p.config.Endpoint = oauth2.Endpoint{
			AuthURL:  discovery.AuthorizationEndpoint,
			TokenURL: discovery.TokenEndpoint,
		}
		p.userInfoURL = discovery.UserInfoEndpoint
		return p, nil
	}

	if cfg.AuthorizationURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("either discoveryUrl or all endpoints (authorizationUrl, tokenUrl, userInfoUrl) must be provided")
	}
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:  cfg.AuthorizationURL,
		TokenURL: cfg.TokenURL,
	}
	p.userInfoURL = cfg.UserInfoURL
	return p, nil
}

func (p *OIDCProvider) fetchDiscovery(ctx context.Context, discoveryURL string) (*oidcDiscoveryDocument, error) {
	client := p.httpClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, ioutil.ErrorBodyLimit))
	}

	var discovery oidcDiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}

	if discovery.AuthorizationEndpoint == "" || discovery.TokenEndpoint == "" || discovery.UserInfoEndpoint == "" {
		return nil, fmt.Errorf("discovery document missing required endpoints")
	}

	return &discovery, nil
}

// Type returns the provider type.
func (p *OIDCProvider) Type() string {
	return p.providerType
}

// AuthURL generates the authorization URL.
func (p *OIDCProvider) AuthURL(state, verifier string) string {
	return p.authURL(state, verifier)
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	return p.exchange(ctx, code, verifier)
}

// UserInfo fetches user identity from the OIDC userinfo endpoint.
func (p *OIDCProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	var userInfoResp oidcUserInfoResponse
	if err := p.fetchUserInfo(ctx, token, &userInfoResp); err != nil {
		return nil, err
	}
	if userInfoResp.Sub == "" {
		return nil, fmt.Errorf("%w: response missing subject", ErrProfileFetchFailed)
	}

	return &Profile{
		ProviderType:  p.providerType,
		Subject:       userInfoResp.Sub,
		Email:         emailutil.Normalize(userInfoResp.Email),
		EmailVerified: userInfoResp.EmailVerified,
		Name:          userInfoResp.Name,
		Picture:       userInfoResp.Picture,
		Domain:        emailutil.ExtractDomain(userInfoResp.Email),
	}, nil
}
