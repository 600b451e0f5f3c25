package config

import (
	"encoding/json"
	"time"
)

// Version is the only config version this binary understands.
const Version = "v1"

const (
	DefaultStateTTL          = 5 * time.Minute
	DefaultSessionTTL        = 24 * time.Hour
	DefaultProviderTimeout   = 5 * time.Second
	DefaultCleanupInterval   = time.Minute
	DefaultCookieName        = "signin_session"
	DefaultCollectionPrefix  = "signin_front"
	DefaultFirestoreDatabase = "(default)"
	DefaultRatePerSecond     = 5
	DefaultRateBurst         = 20

	// MinSigningKeyLength is the minimum HMAC-SHA256 key size.
	MinSigningKeyLength = 32
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// ProviderType selects the identity provider implementation
type ProviderType string

const (
	ProviderTypeGoogle ProviderType = "google"
	ProviderTypeOIDC   ProviderType = "oidc"
)

// StorageKind selects the storage backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindFirestore StorageKind = "firestore"
)

// Config is the top-level service configuration
type Config struct {
	Version  string         `json:"version"`
	Server   ServerConfig   `json:"server"`
	Provider ProviderConfig `json:"provider"`
	Login    LoginConfig    `json:"login"`
	Session  SessionConfig  `json:"session"`
	Storage  StorageConfig  `json:"storage"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Addr           string          `json:"addr"`
	BaseURL        string          `json:"baseURL"`
	AllowedOrigins []string        `json:"allowedOrigins,omitempty"`
	ErrorPageURL   string          `json:"errorPageURL,omitempty"`
	RateLimit      RateLimitConfig `json:"rateLimit"`
}

// RateLimitConfig limits requests per client IP on the /auth/ routes.
// A zero PerSecond disables limiting.
type RateLimitConfig struct {
	PerSecond float64 `json:"perSecond"`
	Burst     int     `json:"burst"`
}

// ProviderConfig configures the OAuth client for the identity provider
type ProviderConfig struct {
	Type                 ProviderType  `json:"type"`
	ClientID             string        `json:"clientId"`
	ClientSecret         Secret        `json:"clientSecret"`
	RedirectURI          string        `json:"redirectUri"`
	Scopes               []string      `json:"scopes,omitempty"`
	Timeout              time.Duration `json:"timeout"`
	AllowedDomains       []string      `json:"allowedDomains,omitempty"`
	RequireVerifiedEmail bool          `json:"requireVerifiedEmail"`

	// Endpoint overrides. Required for OIDC without discovery, optional
	// for Google (used to point at fakes).
	DiscoveryURL     string `json:"discoveryUrl,omitempty"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
	TokenURL         string `json:"tokenUrl,omitempty"`
	UserInfoURL      string `json:"userInfoUrl,omitempty"`
}

// LoginConfig controls the login initiation step
type LoginConfig struct {
	AllowedReturnOrigins []string      `json:"allowedReturnOrigins"`
	StateTTL             time.Duration `json:"stateTtl"`
}

// SessionConfig controls session issuance
type SessionConfig struct {
	SigningKey Secret        `json:"signingKey"`
	TTL        time.Duration `json:"ttl"`
	CookieName string        `json:"cookieName"`
	// Issuer is the JWT iss claim; defaults to server.baseURL.
	Issuer string `json:"issuer,omitempty"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Kind              StorageKind   `json:"kind"`
	GCPProject        string        `json:"gcpProject,omitempty"`
	FirestoreDatabase string        `json:"firestoreDatabase,omitempty"`
	CollectionPrefix  string        `json:"collectionPrefix,omitempty"`
	CleanupInterval   time.Duration `json:"cleanupInterval"`
}
