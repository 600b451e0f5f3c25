package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgellow/signin-front/internal/log"
	"github.com/google/uuid"
)

// Ensure MemoryStorage implements required interfaces
var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage keeps everything in process memory. Suitable for a single
// instance; state is lost on restart.
type MemoryStorage struct {
	loginRequests      map[string]*LoginRequest // map[stateToken]
	loginRequestsMutex sync.Mutex
	identities         map[string]*Identity // map[id]
	identityIndex      map[string]string    // map[provider:subject] = id
	identitiesMutex    sync.RWMutex
	sessions           map[string]*SessionRecord // map[sessionID]
	sessionsMutex      sync.RWMutex
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		loginRequests: make(map[string]*LoginRequest),
		identities:    make(map[string]*Identity),
		identityIndex: make(map[string]string),
		sessions:      make(map[string]*SessionRecord),
	}
}

// SaveLoginRequest stores a pending login under its state token
func (s *MemoryStorage) SaveLoginRequest(_ context.Context, req *LoginRequest) error {
	if req == nil || req.StateToken == "" {
		return fmt.Errorf("login request requires a state token")
	}

	s.loginRequestsMutex.Lock()
	defer s.loginRequestsMutex.Unlock()

	if _, exists := s.loginRequests[req.StateToken]; exists {
		return fmt.Errorf("login request already exists")
	}
	reqCopy := *req
	s.loginRequests[req.StateToken] = &reqCopy
	return nil
}

// ConsumeLoginRequest loads and deletes a pending login (one-time use)
func (s *MemoryStorage) ConsumeLoginRequest(_ context.Context, stateToken string) (*LoginRequest, error) {
	s.loginRequestsMutex.Lock()
	defer s.loginRequestsMutex.Unlock()

	req, ok := s.loginRequests[stateToken]
	if !ok {
		return nil, ErrLoginRequestNotFound
	}
	delete(s.loginRequests, stateToken)
	return req, nil
}

func identityKey(providerType, subject string) string {
	return providerType + ":" + subject
}

// UpsertIdentity creates or refreshes the identity for a provider account
func (s *MemoryStorage) UpsertIdentity(_ context.Context, identity *Identity) (*Identity, error) {
	if identity == nil || identity.ProviderType == "" || identity.Subject == "" {
		return nil, fmt.Errorf("identity requires provider type and subject")
	}

	s.identitiesMutex.Lock()
	defer s.identitiesMutex.Unlock()

	key := identityKey(identity.ProviderType, identity.Subject)
	if id, exists := s.identityIndex[key]; exists {
		// Create a copy to avoid modifying records handed out earlier
		updated := *s.identities[id]
		updated.Email = identity.Email
		updated.EmailVerified = identity.EmailVerified
		updated.Name = identity.Name
		updated.Picture = identity.Picture
		updated.LastSeen = identity.LastSeen
		s.identities[id] = &updated
		result := updated
		return &result, nil
	}

	created := *identity
	created.ID = uuid.NewString()
	created.FirstSeen = identity.LastSeen
	s.identities[created.ID] = &created
	s.identityIndex[key] = created.ID

	log.LogDebugWithFields("storage", "Created identity", map[string]any{
		"identity_id": created.ID,
		"provider":    created.ProviderType,
	})

	result := created
	return &result, nil
}

// GetIdentity returns an identity by ID
func (s *MemoryStorage) GetIdentity(_ context.Context, id string) (*Identity, error) {
	s.identitiesMutex.RLock()
	defer s.identitiesMutex.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	result := *identity
	return &result, nil
}

// CreateSession stores a new session record
func (s *MemoryStorage) CreateSession(_ context.Context, session *SessionRecord) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session requires an ID")
	}

	s.sessionsMutex.Lock()
	defer s.sessionsMutex.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session already exists")
	}
	sessionCopy := *session
	s.sessions[session.ID] = &sessionCopy
	return nil
}

// GetSession returns a session record by ID
func (s *MemoryStorage) GetSession(_ context.Context, id string) (*SessionRecord, error) {
	s.sessionsMutex.RLock()
	defer s.sessionsMutex.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	result := *session
	return &result, nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (s *MemoryStorage) DeleteSession(_ context.Context, id string) error {
	s.sessionsMutex.Lock()
	defer s.sessionsMutex.Unlock()

	delete(s.sessions, id)
	return nil
}

// CleanupExpired removes expired login requests and sessions
func (s *MemoryStorage) CleanupExpired(_ context.Context, now time.Time) (int, error) {
	count := 0

	s.loginRequestsMutex.Lock()
	for token, req := range s.loginRequests {
		if req.Expired(now) {
			delete(s.loginRequests, token)
			count++
		}
	}
	s.loginRequestsMutex.Unlock()

	s.sessionsMutex.Lock()
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			count++
		}
	}
	s.sessionsMutex.Unlock()

	return count, nil
}

// Close is a no-op for memory storage
func (s *MemoryStorage) Close() error {
	return nil
}
