package integration

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/dgellow/signin-front/internal"
	"github.com/dgellow/signin-front/internal/config"
	"github.com/dgellow/signin-front/internal/envutil"
	"github.com/stretchr/testify/require"
)

const (
	clientUIOrigin = "http://localhost:5173"
	testSigningKey = "integration-signing-key-0123456789abcdef"
)

var defaultUser = FakeUser{
	Subject:       "110248495921238986420",
	Email:         "ada@example.com",
	EmailVerified: true,
	Name:          "Ada Lovelace",
	HostedDomain:  "example.com",
}

// testEnv is a running signin-front in front of a fake Google.
type testEnv struct {
	App    *httptest.Server
	Google *FakeGoogleServer
}

type configOption func(cfg map[string]any)

func withAllowedDomains(domains ...string) configOption {
	return func(cfg map[string]any) {
		cfg["provider"].(map[string]any)["allowedDomains"] = domains
	}
}

func withErrorPage(u string) configOption {
	return func(cfg map[string]any) {
		cfg["server"].(map[string]any)["errorPageURL"] = u
	}
}

func withRateLimit(perSecond float64, burst int) configOption {
	return func(cfg map[string]any) {
		cfg["server"].(map[string]any)["rateLimit"] = map[string]any{
			"perSecond": perSecond,
			"burst":     burst,
		}
	}
}

// buildTestConfig renders a config document the way an operator would
// write it, with secrets as env references.
func buildTestConfig(appURL string, google *FakeGoogleServer, opts ...configOption) []byte {
	cfg := map[string]any{
		"version": config.Version,
		"server": map[string]any{
			"addr":           "127.0.0.1:0",
			"baseURL":        appURL,
			"allowedOrigins": []string{clientUIOrigin},
		},
		"provider": map[string]any{
			"type":             "google",
			"clientId":         map[string]string{"$env": "IT_GOOGLE_CLIENT_ID"},
			"clientSecret":     map[string]string{"$env": "IT_GOOGLE_CLIENT_SECRET"},
			"authorizationUrl": google.AuthURL(),
			"tokenUrl":         google.TokenURL(),
			"userInfoUrl":      google.UserInfoURL(),
			"timeout":          "2s",
		},
		"login": map[string]any{
			"allowedReturnOrigins": []string{clientUIOrigin},
			"stateTtl":             "5m",
		},
		"session": map[string]any{
			"signingKey": map[string]string{"$env": "IT_SESSION_SIGNING_KEY"},
			"ttl":        "1h",
		},
		"storage": map[string]any{
			"kind": "memory",
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	data, _ := json.Marshal(cfg)
	return data
}

// startSigninFront runs the application in-process. Dev mode lets the
// session cookie travel over the plain-http test server.
func startSigninFront(t *testing.T, opts ...configOption) *testEnv {
	t.Helper()
	t.Setenv(envutil.EnvVar, "development")
	t.Setenv("IT_GOOGLE_CLIENT_ID", "integration-client.apps.googleusercontent.com")
	t.Setenv("IT_GOOGLE_CLIENT_SECRET", "integration-secret")
	t.Setenv("IT_SESSION_SIGNING_KEY", testSigningKey)

	google := NewFakeGoogleServer(defaultUser)
	t.Cleanup(google.Close)

	// The redirect URI depends on the app's address, so the handler is
	// installed after the listener exists.
	var handler http.Handler
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(app.Close)

	cfg, err := config.Parse(buildTestConfig(app.URL, google, opts...))
	require.NoError(t, err)

	front, err := internal.NewSigninFront(t.Context(), cfg)
	require.NoError(t, err)
	handler = front.Handler()

	return &testEnv{App: app, Google: google}
}

// newBrowser returns a client with a cookie jar that stops when it is
// sent back to the Client UI, like a browser leaving the service.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme+"://"+req.URL.Host == clientUIOrigin {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// stopAtCallback returns a client that does not follow the provider's
// redirect back to the callback, so tests can replay or tamper with it.
func stopAtCallback(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Path == "/auth/google/callback" {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

func loginURL(appURL, returnURL string) string {
	return appURL + "/auth/google?state=" + url.QueryEscape(returnURL)
}

// callbackURL starts a login and returns the callback URL the provider
// sent the browser to, without following it.
func (e *testEnv) callbackURL(t *testing.T, returnURL string) string {
	t.Helper()
	resp, err := stopAtCallback(t).Get(loginURL(e.App.URL, returnURL))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.NotEmpty(t, location)
	return location
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}
