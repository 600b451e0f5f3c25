package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"slices"

	"github.com/dgellow/signin-front/internal/log"
	"github.com/dgellow/signin-front/internal/urlutil"
)

// secretFields must be {"$env": ...} references, never inline strings.
var secretFields = []struct {
	section string
	field   string
}{
	{"provider", "clientSecret"},
	{"session", "signingKey"},
}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a config document.
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != Version {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := ApplyDefaults(&config); err != nil {
		return Config{}, fmt.Errorf("applying defaults: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, secret := range secretFields {
		section, ok := rawConfig[secret.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[secret.field]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", secret.section, secret.field)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", secret.section, secret.field)
			}
		}
	}
	return nil
}

// ApplyDefaults fills unset optional fields. The provider redirect URI is
// derived from server.baseURL when omitted.
func ApplyDefaults(config *Config) error {
	if config.Provider.Type == "" {
		config.Provider.Type = ProviderTypeGoogle
	}
	if len(config.Provider.Scopes) == 0 {
		config.Provider.Scopes = []string{"openid", "email", "profile"}
	}
	if config.Provider.Timeout == 0 {
		config.Provider.Timeout = DefaultProviderTimeout
	}
	if config.Provider.RedirectURI == "" && config.Server.BaseURL != "" {
		redirect, err := urlutil.JoinPath(config.Server.BaseURL, "auth", string(config.Provider.Type), "callback")
		if err != nil {
			return fmt.Errorf("deriving redirectUri: %w", err)
		}
		config.Provider.RedirectURI = redirect
	}

	if config.Login.StateTTL == 0 {
		config.Login.StateTTL = DefaultStateTTL
	}

	if config.Session.TTL == 0 {
		config.Session.TTL = DefaultSessionTTL
	}
	if config.Session.CookieName == "" {
		config.Session.CookieName = DefaultCookieName
	}
	if config.Session.Issuer == "" {
		config.Session.Issuer = config.Server.BaseURL
	}

	if config.Storage.Kind == "" {
		config.Storage.Kind = StorageKindMemory
	}
	if config.Storage.Kind == StorageKindFirestore {
		if config.Storage.FirestoreDatabase == "" {
			config.Storage.FirestoreDatabase = DefaultFirestoreDatabase
		}
		if config.Storage.CollectionPrefix == "" {
			config.Storage.CollectionPrefix = DefaultCollectionPrefix
		}
	}
	if config.Storage.CleanupInterval == 0 {
		config.Storage.CleanupInterval = DefaultCleanupInterval
	}

	if config.Server.RateLimit.PerSecond > 0 && config.Server.RateLimit.Burst == 0 {
		config.Server.RateLimit.Burst = DefaultRateBurst
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if err := requireAbsoluteURL(config.Server.BaseURL, "server.baseURL"); err != nil {
		return err
	}
	if config.Server.ErrorPageURL != "" {
		if err := requireAbsoluteURL(config.Server.ErrorPageURL, "server.errorPageURL"); err != nil {
			return err
		}
	}
	if config.Server.RateLimit.PerSecond < 0 || config.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rateLimit values cannot be negative")
	}

	if err := validateProviderConfig(&config.Provider); err != nil {
		return fmt.Errorf("provider: %w", err)
	}

	if len(config.Login.AllowedReturnOrigins) == 0 {
		return fmt.Errorf("login.allowedReturnOrigins requires at least one origin")
	}
	if _, err := urlutil.NewReturnURLPolicy(config.Login.AllowedReturnOrigins); err != nil {
		return fmt.Errorf("login.allowedReturnOrigins: %w", err)
	}
	if config.Login.StateTTL <= 0 {
		return fmt.Errorf("login.stateTtl must be positive")
	}

	if len(config.Session.SigningKey) < MinSigningKeyLength {
		return fmt.Errorf("session.signingKey must be at least %d bytes, got %d", MinSigningKeyLength, len(config.Session.SigningKey))
	}
	if config.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if config.Session.CookieName == "" {
		return fmt.Errorf("session.cookieName is required")
	}

	switch config.Storage.Kind {
	case StorageKindMemory:
	case StorageKindFirestore:
		if config.Storage.GCPProject == "" {
			return fmt.Errorf("storage.gcpProject is required for firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage kind: %s", config.Storage.Kind)
	}
	if config.Storage.CleanupInterval <= 0 {
		return fmt.Errorf("storage.cleanupInterval must be positive")
	}
	if config.Storage.CleanupInterval > config.Login.StateTTL {
		log.LogWarn("Storage cleanup interval is greater than the state TTL; expired login requests linger until cleanup")
	}

	return nil
}

func validateProviderConfig(p *ProviderConfig) error {
	if p.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	if err := requireAbsoluteURL(p.RedirectURI, "redirectUri"); err != nil {
		return err
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	switch p.Type {
	case ProviderTypeGoogle:
	case ProviderTypeOIDC:
		if p.DiscoveryURL == "" && (p.AuthorizationURL == "" || p.TokenURL == "" || p.UserInfoURL == "") {
			return fmt.Errorf("oidc requires discoveryUrl or authorizationUrl, tokenUrl and userInfoUrl")
		}
		if !slices.Contains(p.Scopes, "openid") {
			return fmt.Errorf("oidc scopes must include openid")
		}
	default:
		return fmt.Errorf("unknown provider type: %s", p.Type)
	}
	return nil
}

func requireAbsoluteURL(raw, name string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", name)
	}
	return nil
}
