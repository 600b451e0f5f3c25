package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgellow/signin-front/internal/idp"
	"github.com/dgellow/signin-front/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "this-is-a-valid-session-signing-key-32-chars"

var testProfile = &idp.Profile{
	ProviderType:  "google",
	Subject:       "google-sub-123",
	Email:         "user@example.com",
	EmailVerified: true,
	Name:          "Test User",
}

func newTestIssuer(t *testing.T, now *time.Time) (*Issuer, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	issuer := NewIssuer(store, []byte(testKey), "https://login.example.com", time.Hour,
		WithClock(func() time.Time { return *now }))
	return issuer, store
}

func TestIssue(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	issuer, store := newTestIssuer(t, &now)
	ctx := context.Background()

	sess, credential, err := issuer.Issue(ctx, testProfile, "http://localhost:5173/profile")
	require.NoError(t, err)
	require.NotEmpty(t, credential)

	assert.NotEmpty(t, sess.ID)
	assert.NotEmpty(t, sess.IdentityID)
	assert.Equal(t, "google-sub-123", sess.Subject)
	assert.Equal(t, "user@example.com", sess.Email)
	assert.Equal(t, "http://localhost:5173/profile", sess.ReturnURL)
	assert.Equal(t, now.Add(time.Hour), sess.ExpiresAt)

	record, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.IdentityID, record.IdentityID)

	identity, err := store.GetIdentity(ctx, sess.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, "Test User", identity.Name)

	parsed, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(testKey), nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(*Claims)
	assert.Equal(t, sess.ID, claims.Sid)
	assert.Equal(t, sess.IdentityID, claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "https://login.example.com", claims.Issuer)
	assert.Equal(t, "HS256", parsed.Method.Alg())
}

func TestIssue_SameIdentityAcrossLogins(t *testing.T) {
	now := time.Now()
	issuer, _ := newTestIssuer(t, &now)
	ctx := context.Background()

	first, _, err := issuer.Issue(ctx, testProfile, "")
	require.NoError(t, err)
	second, _, err := issuer.Issue(ctx, testProfile, "")
	require.NoError(t, err)

	assert.Equal(t, first.IdentityID, second.IdentityID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestIssue_RequiresSubject(t *testing.T) {
	now := time.Now()
	issuer, _ := newTestIssuer(t, &now)

	_, _, err := issuer.Issue(context.Background(), &idp.Profile{Email: "x@example.com"}, "")
	assert.Error(t, err)
}

type failingSessionStore struct {
	*storage.MemoryStorage
}

func (failingSessionStore) CreateSession(context.Context, *storage.SessionRecord) error {
	return errors.New("firestore unavailable")
}

func TestIssue_PersistenceFailure(t *testing.T) {
	issuer := NewIssuer(failingSessionStore{storage.NewMemoryStorage()}, []byte(testKey), "iss", time.Hour)

	sess, credential, err := issuer.Issue(context.Background(), testProfile, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firestore unavailable")
	assert.Nil(t, sess)
	assert.Empty(t, credential)
}

func TestVerify(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	issuer, _ := newTestIssuer(t, &now)
	ctx := context.Background()

	issued, credential, err := issuer.Issue(ctx, testProfile, "http://localhost:5173/")
	require.NoError(t, err)

	got, err := issuer.Verify(ctx, credential)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
	assert.Equal(t, issued.Email, got.Email)

	identity, err := issuer.Identity(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "google-sub-123", identity.Subject)
}

func TestVerify_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		now := time.Now()
		issuer, _ := newTestIssuer(t, &now)
		_, err := issuer.Verify(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("garbage", func(t *testing.T) {
		now := time.Now()
		issuer, _ := newTestIssuer(t, &now)
		_, err := issuer.Verify(ctx, "not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("wrong_key", func(t *testing.T) {
		now := time.Now()
		issuer, store := newTestIssuer(t, &now)
		_, credential, err := issuer.Issue(ctx, testProfile, "")
		require.NoError(t, err)

		other := NewIssuer(store, []byte("another-signing-key-that-is-32-bytes!!"), "https://login.example.com", time.Hour)
		_, err = other.Verify(ctx, credential)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("wrong_issuer", func(t *testing.T) {
		now := time.Now()
		issuer, store := newTestIssuer(t, &now)
		_, credential, err := issuer.Issue(ctx, testProfile, "")
		require.NoError(t, err)

		other := NewIssuer(store, []byte(testKey), "https://other.example.com", time.Hour)
		_, err = other.Verify(ctx, credential)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("expired", func(t *testing.T) {
		now := time.Now()
		issuer, _ := newTestIssuer(t, &now)
		_, credential, err := issuer.Issue(ctx, testProfile, "")
		require.NoError(t, err)

		now = now.Add(2 * time.Hour)
		_, err = issuer.Verify(ctx, credential)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("revoked", func(t *testing.T) {
		now := time.Now()
		issuer, _ := newTestIssuer(t, &now)
		sess, credential, err := issuer.Issue(ctx, testProfile, "")
		require.NoError(t, err)

		require.NoError(t, issuer.Revoke(ctx, sess.ID))
		_, err = issuer.Verify(ctx, credential)
		assert.ErrorIs(t, err, ErrInvalidSession)
		assert.Contains(t, err.Error(), "revoked")
	})

	t.Run("alg_none", func(t *testing.T) {
		now := time.Now()
		issuer, _ := newTestIssuer(t, &now)
		sess, _, err := issuer.Issue(ctx, testProfile, "")
		require.NoError(t, err)

		forged := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			Sid: sess.ID,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "https://login.example.com",
				Subject:   sess.IdentityID,
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		})
		token, err := forged.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = issuer.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})
}
