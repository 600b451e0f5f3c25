package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/signin-front/internal/log"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStorage implements Storage using Google Cloud Firestore. Login
// requests are consumed inside a transaction so a state token can only be
// redeemed once across every instance sharing the database.
type FirestoreStorage struct {
	client        *firestore.Client
	projectID     string
	loginRequests string
	identities    string
	sessions      string
}

// Ensure FirestoreStorage implements Storage interface
var _ Storage = (*FirestoreStorage)(nil)

// LoginRequestDoc represents a pending login document in Firestore
type LoginRequestDoc struct {
	StateToken   string    `firestore:"state_token"`
	ReturnURL    string    `firestore:"return_url"`
	CodeVerifier string    `firestore:"code_verifier"`
	Provider     string    `firestore:"provider"`
	CreatedAt    time.Time `firestore:"created_at"`
	ExpiresAt    time.Time `firestore:"expires_at"`
}

// IdentityDoc represents an identity document in Firestore
type IdentityDoc struct {
	ID            string    `firestore:"id"`
	ProviderType  string    `firestore:"provider_type"`
	Subject       string    `firestore:"subject"`
	Email         string    `firestore:"email"`
	EmailVerified bool      `firestore:"email_verified"`
	Name          string    `firestore:"name"`
	Picture       string    `firestore:"picture"`
	FirstSeen     time.Time `firestore:"first_seen"`
	LastSeen      time.Time `firestore:"last_seen"`
}

// SessionDoc represents a session document in Firestore
type SessionDoc struct {
	ID         string    `firestore:"id"`
	IdentityID string    `firestore:"identity_id"`
	Subject    string    `firestore:"subject"`
	Email      string    `firestore:"email"`
	ReturnURL  string    `firestore:"return_url"`
	IssuedAt   time.Time `firestore:"issued_at"`
	ExpiresAt  time.Time `firestore:"expires_at"`
}

// NewFirestoreStorage creates a new Firestore storage instance. Collections
// are named "<prefix>_login_requests", "<prefix>_identities" and
// "<prefix>_sessions".
func NewFirestoreStorage(ctx context.Context, projectID, database, collectionPrefix string) (*FirestoreStorage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collectionPrefix == "" {
		return nil, fmt.Errorf("collection prefix is required")
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("firestore", "Connected to Firestore", map[string]any{
		"project":  projectID,
		"database": database,
		"prefix":   collectionPrefix,
	})

	return &FirestoreStorage{
		client:        client,
		projectID:     projectID,
		loginRequests: collectionPrefix + "_login_requests",
		identities:    collectionPrefix + "_identities",
		sessions:      collectionPrefix + "_sessions",
	}, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}

// SaveLoginRequest stores a pending login under its state token
func (s *FirestoreStorage) SaveLoginRequest(ctx context.Context, req *LoginRequest) error {
	if req == nil || req.StateToken == "" {
		return fmt.Errorf("login request requires a state token")
	}

	doc := LoginRequestDoc(*req)
	_, err := s.client.Collection(s.loginRequests).Doc(req.StateToken).Create(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to save login request: %w", err)
	}
	return nil
}

// ConsumeLoginRequest reads and deletes the request in one transaction
func (s *FirestoreStorage) ConsumeLoginRequest(ctx context.Context, stateToken string) (*LoginRequest, error) {
	if stateToken == "" {
		return nil, ErrLoginRequestNotFound
	}

	ref := s.client.Collection(s.loginRequests).Doc(stateToken)
	var consumed LoginRequestDoc

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrLoginRequestNotFound
			}
			return err
		}
		if err := snap.DataTo(&consumed); err != nil {
			return fmt.Errorf("failed to unmarshal login request: %w", err)
		}
		return tx.Delete(ref)
	})
	if err != nil {
		if errors.Is(err, ErrLoginRequestNotFound) {
			return nil, ErrLoginRequestNotFound
		}
		return nil, fmt.Errorf("failed to consume login request: %w", err)
	}

	req := LoginRequest(consumed)
	return &req, nil
}

// UpsertIdentity creates or refreshes the identity for a provider account.
// The lookup by (provider_type, subject) and the write share a transaction.
func (s *FirestoreStorage) UpsertIdentity(ctx context.Context, identity *Identity) (*Identity, error) {
	if identity == nil || identity.ProviderType == "" || identity.Subject == "" {
		return nil, fmt.Errorf("identity requires provider type and subject")
	}

	col := s.client.Collection(s.identities)
	query := col.Where("provider_type", "==", identity.ProviderType).
		Where("subject", "==", identity.Subject).
		Limit(1)

	var result IdentityDoc
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}

		if len(snaps) > 0 {
			if err := snaps[0].DataTo(&result); err != nil {
				return fmt.Errorf("failed to unmarshal identity: %w", err)
			}
			result.Email = identity.Email
			result.EmailVerified = identity.EmailVerified
			result.Name = identity.Name
			result.Picture = identity.Picture
			result.LastSeen = identity.LastSeen
			return tx.Update(snaps[0].Ref, []firestore.Update{
				{Path: "email", Value: result.Email},
				{Path: "email_verified", Value: result.EmailVerified},
				{Path: "name", Value: result.Name},
				{Path: "picture", Value: result.Picture},
				{Path: "last_seen", Value: result.LastSeen},
			})
		}

		result = IdentityDoc(*identity)
		result.ID = uuid.NewString()
		result.FirstSeen = identity.LastSeen
		return tx.Create(col.Doc(result.ID), result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert identity: %w", err)
	}

	out := Identity(result)
	return &out, nil
}

// GetIdentity returns an identity by ID
func (s *FirestoreStorage) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	doc, err := s.client.Collection(s.identities).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	var identityDoc IdentityDoc
	if err := doc.DataTo(&identityDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}
	identity := Identity(identityDoc)
	return &identity, nil
}

// CreateSession stores a new session record
func (s *FirestoreStorage) CreateSession(ctx context.Context, session *SessionRecord) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session requires an ID")
	}

	_, err := s.client.Collection(s.sessions).Doc(session.ID).Create(ctx, SessionDoc(*session))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession returns a session record by ID
func (s *FirestoreStorage) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}

	doc, err := s.client.Collection(s.sessions).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sessionDoc SessionDoc
	if err := doc.DataTo(&sessionDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	session := SessionRecord(sessionDoc)
	return &session, nil
}

// DeleteSession removes a session. Deleting a missing session is not an error.
func (s *FirestoreStorage) DeleteSession(ctx context.Context, id string) error {
	_, err := s.client.Collection(s.sessions).Doc(id).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CleanupExpired removes expired login requests and sessions
func (s *FirestoreStorage) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for _, collection := range []string{s.loginRequests, s.sessions} {
		count, err := s.deleteExpired(ctx, collection, now)
		total += count
		if err != nil {
			return total, err
		}
	}

	if total > 0 {
		log.LogInfoWithFields("firestore", "Cleaned up expired records", map[string]any{
			"count": total,
		})
	}
	return total, nil
}

func (s *FirestoreStorage) deleteExpired(ctx context.Context, collection string, now time.Time) (int, error) {
	iter := s.client.Collection(collection).
		Where("expires_at", "<=", now).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0
	const maxBatchSize = 500 // Firestore batch write limit

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired %s: %w", collection, err)
		}

		batch.Delete(doc.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}
	return count, nil
}
