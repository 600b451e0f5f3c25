package testutil

import (
	"context"
	"time"

	"github.com/dgellow/signin-front/internal/idp"
	"github.com/dgellow/signin-front/internal/storage"
	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"
)

// MockProvider is a testify mock of idp.Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Type() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) AuthURL(state, verifier string) string {
	args := m.Called(state, verifier)
	return args.String(0)
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	args := m.Called(ctx, code, verifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

func (m *MockProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*idp.Profile, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*idp.Profile), args.Error(1)
}

var _ idp.Provider = (*MockProvider)(nil)

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveLoginRequest(ctx context.Context, req *storage.LoginRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockStorage) ConsumeLoginRequest(ctx context.Context, stateToken string) (*storage.LoginRequest, error) {
	args := m.Called(ctx, stateToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.LoginRequest), args.Error(1)
}

func (m *MockStorage) UpsertIdentity(ctx context.Context, identity *storage.Identity) (*storage.Identity, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Identity), args.Error(1)
}

func (m *MockStorage) GetIdentity(ctx context.Context, id string) (*storage.Identity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Identity), args.Error(1)
}

func (m *MockStorage) CreateSession(ctx context.Context, session *storage.SessionRecord) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockStorage) GetSession(ctx context.Context, id string) (*storage.SessionRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.SessionRecord), args.Error(1)
}

func (m *MockStorage) DeleteSession(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStorage) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ storage.Storage = (*MockStorage)(nil)
