package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/dgellow/signin-front/internal/ioutil"
	"golang.org/x/oauth2"
)

var (
	// ErrExchangeFailed covers every failure of the authorization code
	// exchange: transport errors, non-2xx responses, malformed bodies and
	// responses without an access token.
	ErrExchangeFailed = errors.New("authorization code exchange failed")

	// ErrProfileFetchFailed covers every failure to obtain the user profile.
	ErrProfileFetchFailed = errors.New("profile fetch failed")
)

// maxUserInfoBytes caps the userinfo response body.
const maxUserInfoBytes = 1 << 20

// Profile is the identity returned by a provider after a successful login.
type Profile struct {
	ProviderType  string `json:"provider_type"`
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Domain        string `json:"domain"`
}

// Provider abstracts identity provider operations.
type Provider interface {
	// Type returns the provider type identifier (e.g., "google", "oidc").
	Type() string

	// AuthURL builds the authorization URL for the given state. A non-empty
	// verifier adds a PKCE S256 challenge. Pure; performs no I/O.
	AuthURL(state, verifier string) string

	// ExchangeCode exchanges an authorization code for tokens. Errors wrap
	// ErrExchangeFailed.
	ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error)

	// UserInfo fetches the user's profile. Errors wrap ErrProfileFetchFailed.
	UserInfo(ctx context.Context, token *oauth2.Token) (*Profile, error)
}

// ValidateDomain checks if the domain is in the allowed list.
// Returns nil if allowedDomains is empty (no restriction) or domain is allowed.
func ValidateDomain(domain string, allowedDomains []string) error {
	if len(allowedDomains) == 0 {
		return nil
	}
	if !slices.Contains(allowedDomains, domain) {
		return fmt.Errorf("domain '%s' is not allowed", domain)
	}
	return nil
}

// IDToken returns the raw OpenID Connect ID token carried alongside the
// access token, or "" if the provider did not return one.
func IDToken(token *oauth2.Token) string {
	if token == nil {
		return ""
	}
	idToken, _ := token.Extra("id_token").(string)
	return idToken
}

// Option customises a provider at construction.
type Option func(*oauthClient)

// WithHTTPClient sets the HTTP client used for token and userinfo calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *oauthClient) { o.httpClient = c }
}

// WithEndpoints overrides the authorization, token and userinfo endpoints.
// Empty values keep the provider's default.
func WithEndpoints(authURL, tokenURL, userInfoURL string) Option {
	return func(o *oauthClient) {
		if authURL != "" {
			o.config.Endpoint.AuthURL = authURL
		}
		if tokenURL != "" {
			o.config.Endpoint.TokenURL = tokenURL
		}
		if userInfoURL != "" {
			o.userInfoURL = userInfoURL
		}
	}
}

// WithScopes replaces the requested scopes.
func WithScopes(scopes ...string) Option {
	return func(o *oauthClient) {
		if len(scopes) > 0 {
			o.config.Scopes = scopes
		}
	}
}

// oauthClient holds the authorization-code mechanics shared by providers.
type oauthClient struct {
	config      oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

func (c *oauthClient) apply(opts []Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func (c *oauthClient) withClient(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *oauthClient) authURL(state, verifier string, opts ...oauth2.AuthCodeOption) string {
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return c.config.AuthCodeURL(state, opts...)
}

func (c *oauthClient) exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrExchangeFailed)
	}

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	token, err := c.config.Exchange(c.withClient(ctx), code, opts...)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, fmt.Errorf("%w: token endpoint returned %d %s", ErrExchangeFailed, retrieveErr.Response.StatusCode, retrieveErr.ErrorCode)
		}
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	if !token.Valid() {
		return nil, fmt.Errorf("%w: received invalid token", ErrExchangeFailed)
	}
	return token, nil
}

// fetchUserInfo GETs the userinfo endpoint with the bearer token and
// decodes the JSON body into v.
func (c *oauthClient) fetchUserInfo(ctx context.Context, token *oauth2.Token, v any) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: missing access token", ErrProfileFetchFailed)
	}

	client := c.config.Client(c.withClient(ctx), token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProfileFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProfileFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrProfileFetchFailed, resp.StatusCode, ioutil.ReadLimited(resp.Body, ioutil.ErrorBodyLimit))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding user info: %w", ErrProfileFetchFailed, err)
	}
	return nil
}
