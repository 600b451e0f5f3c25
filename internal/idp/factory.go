package idp

import (
	"context"
	"fmt"

	"github.com/dgellow/signin-front/internal/config"
)

// NewProvider creates a Provider based on the ProviderConfig.
func NewProvider(ctx context.Context, cfg config.ProviderConfig, opts ...Option) (Provider, error) {
	switch cfg.Type {
	case config.ProviderTypeGoogle, "":
		opts = append([]Option{
			WithScopes(cfg.Scopes...),
			WithEndpoints(cfg.AuthorizationURL, cfg.TokenURL, cfg.UserInfoURL),
		}, opts...)
		return NewGoogleProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			opts...,
		), nil

	case config.ProviderTypeOIDC:
		return NewOIDCProvider(ctx, OIDCConfig{
			ProviderType:     string(config.ProviderTypeOIDC),
			DiscoveryURL:     cfg.DiscoveryURL,
			AuthorizationURL: cfg.AuthorizationURL,
			TokenURL:         cfg.TokenURL,
			UserInfoURL:      cfg.UserInfoURL,
			ClientID:         cfg.ClientID,
			ClientSecret:     string(cfg.ClientSecret),
			RedirectURI:      cfg.RedirectURI,
			Scopes:           cfg.Scopes,
		}, opts...)

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
