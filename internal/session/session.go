// Package session mints and verifies application sessions. A session is a
// server-side record plus an HS256 JWT that names it; the record is
// authoritative, so deleting it revokes the credential.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/signin-front/internal/crypto"
	"github.com/dgellow/signin-front/internal/idp"
	"github.com/dgellow/signin-front/internal/log"
	"github.com/dgellow/signin-front/internal/storage"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession is returned by Verify for credentials that are
// malformed, badly signed, expired or revoked.
var ErrInvalidSession = errors.New("invalid session")

// Session is an authenticated application session.
type Session struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	Subject    string    `json:"subject"`
	Email      string    `json:"email"`
	ReturnURL  string    `json:"return_url,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Claims are the JWT claims of a session credential. The registered
// subject is the local identity ID.
type Claims struct {
	Email string `json:"email"`
	Sid   string `json:"sid"`
	jwt.RegisteredClaims
}

// Store is the storage the issuer needs.
type Store interface {
	storage.IdentityStore
	storage.SessionStore
}

// Issuer creates, verifies and revokes sessions.
type Issuer struct {
	store  Store
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer signing with key. issuer becomes the iss
// claim and is required on verification.
func NewIssuer(store Store, key []byte, issuer string, ttl time.Duration, opts ...Option) *Issuer {
	i := &Issuer{
		store:  store,
		key:    key,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// TTL returns the lifetime of issued sessions.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue records the identity behind profile, persists a new session and
// returns it with its signed credential.
func (i *Issuer) Issue(ctx context.Context, profile *idp.Profile, returnURL string) (*Session, string, error) {
	if profile == nil || profile.Subject == "" {
		return nil, "", fmt.Errorf("profile without subject")
	}

	now := i.now()
	identity, err := i.store.UpsertIdentity(ctx, &storage.Identity{
		ProviderType:  profile.ProviderType,
		Subject:       profile.Subject,
		Email:         profile.Email,
		EmailVerified: profile.EmailVerified,
		Name:          profile.Name,
		Picture:       profile.Picture,
		LastSeen:      now,
	})
	if err != nil {
		return nil, "", fmt.Errorf("upserting identity: %w", err)
	}

	id, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, "", fmt.Errorf("generating session id: %w", err)
	}

	sess := &Session{
		ID:         id,
		IdentityID: identity.ID,
		Subject:    profile.Subject,
		Email:      profile.Email,
		ReturnURL:  returnURL,
		IssuedAt:   now,
		ExpiresAt:  now.Add(i.ttl),
	}
	if err := i.store.CreateSession(ctx, &storage.SessionRecord{
		ID:         sess.ID,
		IdentityID: sess.IdentityID,
		Subject:    sess.Subject,
		Email:      sess.Email,
		ReturnURL:  sess.ReturnURL,
		IssuedAt:   sess.IssuedAt,
		ExpiresAt:  sess.ExpiresAt,
	}); err != nil {
		return nil, "", fmt.Errorf("creating session: %w", err)
	}

	credential, err := i.sign(sess)
	if err != nil {
		return nil, "", fmt.Errorf("signing session: %w", err)
	}

	log.InfoCtx(ctx, "session", "Session issued", map[string]any{
		"identity_id": sess.IdentityID,
		"provider":    profile.ProviderType,
		"expires_at":  sess.ExpiresAt,
	})
	return sess, credential, nil
}

func (i *Issuer) sign(sess *Session) (string, error) {
	claims := Claims{
		Email: sess.Email,
		Sid:   sess.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   sess.IdentityID,
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.key)
}

// Verify checks a credential's signature and expiry, then requires its
// session record to still exist.
func (i *Issuer) Verify(ctx context.Context, credential string) (*Session, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrInvalidSession)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(credential, &claims, func(token *jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if claims.Sid == "" {
		return nil, fmt.Errorf("%w: missing sid", ErrInvalidSession)
	}

	record, err := i.store.GetSession(ctx, claims.Sid)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: revoked", ErrInvalidSession)
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if record.Expired(i.now()) {
		return nil, fmt.Errorf("%w: expired", ErrInvalidSession)
	}
	if record.IdentityID != claims.Subject {
		return nil, fmt.Errorf("%w: subject mismatch", ErrInvalidSession)
	}

	return &Session{
		ID:         record.ID,
		IdentityID: record.IdentityID,
		Subject:    record.Subject,
		Email:      record.Email,
		ReturnURL:  record.ReturnURL,
		IssuedAt:   record.IssuedAt,
		ExpiresAt:  record.ExpiresAt,
	}, nil
}

// Identity returns the identity record behind a session.
func (i *Issuer) Identity(ctx context.Context, sess *Session) (*storage.Identity, error) {
	return i.store.GetIdentity(ctx, sess.IdentityID)
}

// Revoke deletes the session record; its credential stops verifying.
func (i *Issuer) Revoke(ctx context.Context, sessionID string) error {
	if err := i.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	log.InfoCtx(ctx, "session", "Session revoked", nil)
	return nil
}
