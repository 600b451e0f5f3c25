package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/signin-front/internal/envutil"
	"github.com/dgellow/signin-front/internal/idp"
	jsonwriter "github.com/dgellow/signin-front/internal/json"
	"github.com/dgellow/signin-front/internal/login"
	"github.com/dgellow/signin-front/internal/loginstate"
	"github.com/dgellow/signin-front/internal/session"
	"github.com/dgellow/signin-front/internal/storage"
	"github.com/dgellow/signin-front/internal/testutil"
	"github.com/dgellow/signin-front/internal/urlutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testCookieName = "signin_session"
	testReturnURL  = "http://localhost:5173/after-login"
	testAuthURL    = "https://accounts.example.com/o/oauth2/auth"
)

type testServer struct {
	handler  http.Handler
	provider *testutil.MockProvider

	mu     sync.Mutex
	states []string
}

func (s *testServer) lastState(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.states)
	return s.states[len(s.states)-1]
}

func (s *testServer) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func newTestServer(t *testing.T, errorPageURL string) *testServer {
	t.Helper()
	t.Setenv(envutil.EnvVar, "")

	store := storage.NewMemoryStorage()
	returnURLs, err := urlutil.NewReturnURLPolicy([]string{"http://localhost:5173"})
	require.NoError(t, err)

	ts := &testServer{provider: &testutil.MockProvider{}}
	ts.provider.On("Type").Return("google").Maybe()
	ts.provider.On("AuthURL", mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			ts.mu.Lock()
			ts.states = append(ts.states, args.String(0))
			ts.mu.Unlock()
		}).
		Return(testAuthURL).Maybe()

	sessions := session.NewIssuer(store, []byte("server-test-signing-key-0123456789abc"), "https://login.example.com", time.Hour)
	controller := login.NewController(login.Config{
		ReturnURLs:      returnURLs,
		States:          loginstate.NewStore(store, "google", 5*time.Minute),
		Provider:        ts.provider,
		Sessions:        sessions,
		ProviderTimeout: time.Second,
	})

	mux := http.NewServeMux()
	RegisterAuthRoutes(mux, NewAuthHandlers(AuthHandlersConfig{
		Controller:   controller,
		Sessions:     sessions,
		ReturnURLs:   returnURLs,
		CookieName:   testCookieName,
		ErrorPageURL: errorPageURL,
	}))
	ts.handler = ChainMiddleware(mux, NewRequestIDMiddleware())
	return ts
}

func (s *testServer) expectSuccessfulExchange() {
	token := &oauth2.Token{AccessToken: "access", Expiry: time.Now().Add(time.Hour)}
	s.provider.On("ExchangeCode", mock.Anything, "good-code", mock.Anything).Return(token, nil)
	s.provider.On("UserInfo", mock.Anything, token).Return(&idp.Profile{
		ProviderType:  "google",
		Subject:       "109876",
		Email:         "grace@example.com",
		EmailVerified: true,
		Name:          "Grace Hopper",
		Domain:        "example.com",
	}, nil)
}

// login runs the full redirect/callback round trip and returns the
// session cookie.
func (s *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()

	w := s.do(httptest.NewRequest(http.MethodGet, "/auth/google?state="+url.QueryEscape(testReturnURL), nil))
	require.Equal(t, http.StatusFound, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=good-code&state="+url.QueryEscape(s.lastState(t)), nil))
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, testReturnURL, w.Header().Get("Location"))

	for _, c := range w.Result().Cookies() {
		if c.Name == testCookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) jsonwriter.ErrorResponse {
	t.Helper()
	var resp jsonwriter.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestLoginHandler_RedirectsToProvider(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(httptest.NewRequest(http.MethodGet, "/auth/google?state="+url.QueryEscape(testReturnURL), nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, testAuthURL, w.Header().Get("Location"))
	assert.Empty(t, w.Result().Cookies(), "login must not set cookies")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestLoginHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantError  string
	}{
		{"unknown_provider", "/auth/github?state=" + url.QueryEscape(testReturnURL), http.StatusNotFound, "not_found"},
		{"missing_return_url", "/auth/google", http.StatusBadRequest, "invalid_return_url"},
		{"foreign_return_url", "/auth/google?state=" + url.QueryEscape("https://evil.example.com/"), http.StatusBadRequest, "invalid_return_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, "")

			w := ts.do(httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantError, decodeError(t, w).Error)
			ts.provider.AssertNotCalled(t, "AuthURL", mock.Anything, mock.Anything)
		})
	}
}

func TestCallbackHandler_SetsCookieAndRedirects(t *testing.T) {
	ts := newTestServer(t, "")
	ts.expectSuccessfulExchange()

	c := ts.login(t)

	assert.NotEmpty(t, c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int(time.Hour.Seconds()), c.MaxAge)
}

func TestCallbackHandler_ReplayRejected(t *testing.T) {
	ts := newTestServer(t, "")
	ts.expectSuccessfulExchange()
	ts.login(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=good-code&state="+url.QueryEscape(ts.lastState(t)), nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "invalid_state", resp.Error)
	assert.Equal(t, w.Header().Get(RequestIDHeader), resp.RequestID)
	assert.Empty(t, w.Result().Cookies())
}

func TestCallbackHandler_ErrorPageRedirect(t *testing.T) {
	ts := newTestServer(t, "http://localhost:5173/login-error")

	w := ts.do(httptest.NewRequest(http.MethodGet, "/auth/google?state="+url.QueryEscape(testReturnURL), nil))
	require.Equal(t, http.StatusFound, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/auth/google/callback?error=access_denied&state="+url.QueryEscape(ts.lastState(t)), nil))

	assert.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login-error", location.Path)
	assert.Equal(t, "access_denied", location.Query().Get("error"))
	assert.Equal(t, w.Header().Get(RequestIDHeader), location.Query().Get("request_id"))
	assert.Empty(t, w.Result().Cookies())
}

func TestCallbackHandler_ProviderFailureIsBadGateway(t *testing.T) {
	ts := newTestServer(t, "")
	ts.provider.On("ExchangeCode", mock.Anything, "bad-code", mock.Anything).
		Return(nil, idp.ErrExchangeFailed)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/auth/google?state="+url.QueryEscape(testReturnURL), nil))
	require.Equal(t, http.StatusFound, w.Code)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=bad-code&state="+url.QueryEscape(ts.lastState(t)), nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "exchange_failed", decodeError(t, w).Error)
}

func TestMeHandler(t *testing.T) {
	ts := newTestServer(t, "")
	ts.expectSuccessfulExchange()
	c := ts.login(t)

	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.AddCookie(c)
	w := ts.do(r)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "grace@example.com", body["email"])
	assert.Equal(t, "google", body["provider"])
	assert.Equal(t, "109876", body["subject"])
	assert.Equal(t, "Grace Hopper", body["name"])
}

func TestMeHandler_Unauthorized(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.AddCookie(&http.Cookie{Name: testCookieName, Value: "forged"})
	w = ts.do(r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge, "invalid cookie should be cleared")
}

func TestLogoutHandler(t *testing.T) {
	ts := newTestServer(t, "")
	ts.expectSuccessfulExchange()
	c := ts.login(t)

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.AddCookie(c)
	w := ts.do(r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testCookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)

	// The old credential is revoked server side even if the browser kept it.
	r = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.AddCookie(c)
	w = ts.do(r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutHandler_ReturnURL(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(httptest.NewRequest(http.MethodPost, "/auth/logout?state="+url.QueryEscape("http://localhost:5173/bye"), nil))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "http://localhost:5173/bye", w.Header().Get("Location"))

	w = ts.do(httptest.NewRequest(http.MethodPost, "/auth/logout?state="+url.QueryEscape("https://evil.example.com/"), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_return_url", decodeError(t, w).Error)
}
