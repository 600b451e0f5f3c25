package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLoginRequestNotFound is returned when a state token is unknown or
	// was already consumed
	ErrLoginRequestNotFound = errors.New("login request not found")

	// ErrIdentityNotFound is returned when an identity doesn't exist
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrSessionNotFound is returned when a session doesn't exist
	ErrSessionNotFound = errors.New("session not found")
)

// LoginRequest is a pending login, keyed by its state token. It lives from
// BeginLogin until the matching callback consumes it or it expires.
type LoginRequest struct {
	StateToken   string    `json:"state_token"`
	ReturnURL    string    `json:"return_url"`
	CodeVerifier string    `json:"-"`
	Provider     string    `json:"provider"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the request is no longer usable at now.
func (r *LoginRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Identity is the local record of a provider account, unique per
// (ProviderType, Subject).
type Identity struct {
	ID            string    `json:"id"`
	ProviderType  string    `json:"provider_type"`
	Subject       string    `json:"subject"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name"`
	Picture       string    `json:"picture"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

// SessionRecord is the server-side half of an application session. Its
// presence is what makes a session credential valid.
type SessionRecord struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	Subject    string    `json:"subject"`
	Email      string    `json:"email"`
	ReturnURL  string    `json:"return_url"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (r *SessionRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// LoginRequestStore persists pending logins.
type LoginRequestStore interface {
	SaveLoginRequest(ctx context.Context, req *LoginRequest) error

	// ConsumeLoginRequest atomically loads and deletes the request. Of any
	// number of concurrent calls for one token at most one succeeds; the
	// rest get ErrLoginRequestNotFound. Expired requests are still returned
	// (and deleted) so the caller can decide.
	ConsumeLoginRequest(ctx context.Context, stateToken string) (*LoginRequest, error)
}

// IdentityStore persists local identity records.
type IdentityStore interface {
	// UpsertIdentity creates the identity for (ProviderType, Subject) or
	// refreshes its profile fields and LastSeen. The stored record is
	// returned with its ID and FirstSeen set.
	UpsertIdentity(ctx context.Context, identity *Identity) (*Identity, error)
	GetIdentity(ctx context.Context, id string) (*Identity, error)
}

// SessionStore persists session records.
type SessionStore interface {
	CreateSession(ctx context.Context, session *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
}

// Storage combines all storage capabilities needed by signin-front
type Storage interface {
	LoginRequestStore
	IdentityStore
	SessionStore

	// CleanupExpired removes login requests and sessions expired at now
	// and returns how many were removed.
	CleanupExpired(ctx context.Context, now time.Time) (int, error)

	Close() error
}
