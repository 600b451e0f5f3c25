package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dgellow/signin-front/internal/emailutil"
	"github.com/dgellow/signin-front/internal/log"
)

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference, resolving the reference immediately.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

func parseField(raw json.RawMessage, name string) (string, error) {
	if raw == nil {
		return "", nil
	}
	value, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", name, err)
	}
	return value, nil
}

func parseDuration(s, name string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	return d, nil
}

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Addr           json.RawMessage `json:"addr"`
		BaseURL        json.RawMessage `json:"baseURL"`
		AllowedOrigins []string        `json:"allowedOrigins"`
		ErrorPageURL   json.RawMessage `json:"errorPageURL"`
		RateLimit      RateLimitConfig `json:"rateLimit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.AllowedOrigins = raw.AllowedOrigins
	s.RateLimit = raw.RateLimit

	var err error
	if s.Addr, err = parseField(raw.Addr, "addr"); err != nil {
		return err
	}
	if s.BaseURL, err = parseField(raw.BaseURL, "baseURL"); err != nil {
		return err
	}
	if s.ErrorPageURL, err = parseField(raw.ErrorPageURL, "errorPageURL"); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ProviderConfig
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type                 ProviderType    `json:"type"`
		ClientID             json.RawMessage `json:"clientId"`
		ClientSecret         json.RawMessage `json:"clientSecret"`
		RedirectURI          json.RawMessage `json:"redirectUri"`
		Scopes               []string        `json:"scopes"`
		Timeout              string          `json:"timeout"`
		AllowedDomains       []string        `json:"allowedDomains"`
		RequireVerifiedEmail bool            `json:"requireVerifiedEmail"`
		DiscoveryURL         string          `json:"discoveryUrl"`
		AuthorizationURL     string          `json:"authorizationUrl"`
		TokenURL             string          `json:"tokenUrl"`
		UserInfoURL          string          `json:"userInfoUrl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Type = raw.Type
	p.Scopes = raw.Scopes
	p.RequireVerifiedEmail = raw.RequireVerifiedEmail
	p.DiscoveryURL = raw.DiscoveryURL
	p.AuthorizationURL = raw.AuthorizationURL
	p.TokenURL = raw.TokenURL
	p.UserInfoURL = raw.UserInfoURL

	// Domains are compared against normalized email domains
	p.AllowedDomains = nil
	for _, domain := range raw.AllowedDomains {
		p.AllowedDomains = append(p.AllowedDomains, emailutil.Normalize(domain))
	}

	var err error
	if p.Timeout, err = parseDuration(raw.Timeout, "timeout"); err != nil {
		return err
	}
	if p.ClientID, err = parseField(raw.ClientID, "clientId"); err != nil {
		return err
	}
	if p.RedirectURI, err = parseField(raw.RedirectURI, "redirectUri"); err != nil {
		return err
	}
	secret, err := parseField(raw.ClientSecret, "clientSecret")
	if err != nil {
		return err
	}
	p.ClientSecret = Secret(secret)

	log.LogTraceWithFields("config", "Parsed provider config", map[string]any{
		"type":     p.Type,
		"clientId": p.ClientID,
	})
	return nil
}

// UnmarshalJSON implements custom unmarshaling for LoginConfig
func (l *LoginConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		AllowedReturnOrigins []string `json:"allowedReturnOrigins"`
		StateTTL             string   `json:"stateTtl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	l.AllowedReturnOrigins = raw.AllowedReturnOrigins
	var err error
	l.StateTTL, err = parseDuration(raw.StateTTL, "stateTtl")
	return err
}

// UnmarshalJSON implements custom unmarshaling for SessionConfig
func (s *SessionConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		SigningKey json.RawMessage `json:"signingKey"`
		TTL        string          `json:"ttl"`
		CookieName string          `json:"cookieName"`
		Issuer     json.RawMessage `json:"issuer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.CookieName = raw.CookieName

	var err error
	if s.TTL, err = parseDuration(raw.TTL, "ttl"); err != nil {
		return err
	}
	if s.Issuer, err = parseField(raw.Issuer, "issuer"); err != nil {
		return err
	}
	key, err := parseField(raw.SigningKey, "signingKey")
	if err != nil {
		return err
	}
	s.SigningKey = Secret(key)
	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind              StorageKind     `json:"kind"`
		GCPProject        json.RawMessage `json:"gcpProject"`
		FirestoreDatabase string          `json:"firestoreDatabase"`
		CollectionPrefix  string          `json:"collectionPrefix"`
		CleanupInterval   string          `json:"cleanupInterval"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.CollectionPrefix = raw.CollectionPrefix

	var err error
	if s.GCPProject, err = parseField(raw.GCPProject, "gcpProject"); err != nil {
		return err
	}
	s.CleanupInterval, err = parseDuration(raw.CleanupInterval, "cleanupInterval")
	return err
}
