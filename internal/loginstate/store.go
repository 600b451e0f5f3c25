// Package loginstate issues and redeems the single-use state tokens that
// bind an OAuth callback to the login that started it.
package loginstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/signin-front/internal/crypto"
	"github.com/dgellow/signin-front/internal/log"
	"github.com/dgellow/signin-front/internal/storage"
	"golang.org/x/oauth2"
)

// ErrInvalidState is returned for state tokens that are empty, unknown,
// already consumed or expired.
var ErrInvalidState = errors.New("invalid state")

// Store issues login requests and consumes them exactly once.
type Store struct {
	backend  storage.LoginRequestStore
	provider string
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for TTL tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store for logins against provider whose requests
// expire after ttl.
func NewStore(backend storage.LoginRequestStore, provider string, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		provider: provider,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates and persists a login request bound to returnURL. The
// returned request carries a fresh state token and PKCE verifier.
func (s *Store) Issue(ctx context.Context, returnURL string) (*storage.LoginRequest, error) {
	token, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	now := s.now()
	req := &storage.LoginRequest{
		StateToken:   token,
		ReturnURL:    returnURL,
		CodeVerifier: oauth2.GenerateVerifier(),
		Provider:     s.provider,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.backend.SaveLoginRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("saving login request: %w", err)
	}

	log.DebugCtx(ctx, "loginstate", "Issued login request", map[string]any{
		"provider":   s.provider,
		"expires_at": req.ExpiresAt,
	})
	return req, nil
}

// ValidateAndConsume redeems a state token. The entry is deleted whether
// or not it is still valid, so a token can never be used twice. Backend
// failures other than a missing entry are returned unwrapped by
// ErrInvalidState.
func (s *Store) ValidateAndConsume(ctx context.Context, stateToken string) (*storage.LoginRequest, error) {
	if stateToken == "" {
		return nil, fmt.Errorf("%w: missing state", ErrInvalidState)
	}

	req, err := s.backend.ConsumeLoginRequest(ctx, stateToken)
	if err != nil {
		if errors.Is(err, storage.ErrLoginRequestNotFound) {
			return nil, fmt.Errorf("%w: unknown or already used", ErrInvalidState)
		}
		return nil, fmt.Errorf("consuming login request: %w", err)
	}

	if req.Expired(s.now()) {
		return nil, fmt.Errorf("%w: expired at %s", ErrInvalidState, req.ExpiresAt.Format(time.RFC3339))
	}
	if req.Provider != s.provider {
		return nil, fmt.Errorf("%w: issued for provider %q", ErrInvalidState, req.Provider)
	}
	return req, nil
}
