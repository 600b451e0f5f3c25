package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// FakeUser is the account the fake Google server signs in.
type FakeUser struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	HostedDomain  string
}

type fakeGrant struct {
	challenge   string
	redirectURI string
	user        FakeUser
}

// FakeGoogleServer is an in-process stand-in for Google's authorization,
// token and userinfo endpoints. It enforces PKCE S256 and single-use codes.
type FakeGoogleServer struct {
	*httptest.Server

	mu           sync.Mutex
	user         FakeUser
	denyConsent  bool
	failUserInfo bool
	grants       map[string]fakeGrant
	tokens       map[string]FakeUser
	authRequests []url.Values
	nextID       int
}

// NewFakeGoogleServer starts a fake Google server signing in user.
func NewFakeGoogleServer(user FakeUser) *FakeGoogleServer {
	f := &FakeGoogleServer{
		user:   user,
		grants: make(map[string]fakeGrant),
		tokens: make(map[string]FakeUser),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth", f.handleAuth)
	mux.HandleFunc("POST /token", f.handleToken)
	mux.HandleFunc("GET /userinfo", f.handleUserInfo)
	f.Server = httptest.NewServer(mux)
	return f
}

func (f *FakeGoogleServer) AuthURL() string     { return f.URL + "/auth" }
func (f *FakeGoogleServer) TokenURL() string    { return f.URL + "/token" }
func (f *FakeGoogleServer) UserInfoURL() string { return f.URL + "/userinfo" }

// SetUser changes the account signed in by subsequent logins.
func (f *FakeGoogleServer) SetUser(user FakeUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = user
}

// DenyConsent makes the consent screen answer with error=access_denied.
func (f *FakeGoogleServer) DenyConsent(deny bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denyConsent = deny
}

// FailUserInfo makes the userinfo endpoint return 500.
func (f *FakeGoogleServer) FailUserInfo(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUserInfo = fail
}

// AuthRequests returns the query of every authorization request received.
func (f *FakeGoogleServer) AuthRequests() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.authRequests...)
}

func (f *FakeGoogleServer) handleAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f.mu.Lock()
	f.authRequests = append(f.authRequests, q)
	deny := f.denyConsent
	f.nextID++
	code := fmt.Sprintf("code-%d", f.nextID)
	if !deny {
		f.grants[code] = fakeGrant{
			challenge:   q.Get("code_challenge"),
			redirectURI: q.Get("redirect_uri"),
			user:        f.user,
		}
	}
	f.mu.Unlock()

	callback, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || q.Get("response_type") != "code" {
		http.Error(w, "bad authorization request", http.StatusBadRequest)
		return
	}
	params := url.Values{"state": {q.Get("state")}}
	if deny {
		params.Set("error", "access_denied")
	} else {
		params.Set("code", code)
	}
	callback.RawQuery = params.Encode()
	http.Redirect(w, r, callback.String(), http.StatusFound)
}

func writeOAuthError(w http.ResponseWriter, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func (f *FakeGoogleServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	code := r.FormValue("code")
	grant, ok := f.grants[code]
	delete(f.grants, code)
	f.mu.Unlock()

	if !ok {
		writeOAuthError(w, "invalid_grant", "Invalid authorization code")
		return
	}
	if grant.redirectURI != r.FormValue("redirect_uri") {
		writeOAuthError(w, "invalid_grant", "redirect_uri mismatch")
		return
	}
	if grant.challenge == "" || oauth2.S256ChallengeFromVerifier(r.FormValue("code_verifier")) != grant.challenge {
		writeOAuthError(w, "invalid_grant", "PKCE verification failed")
		return
	}

	f.mu.Lock()
	f.nextID++
	accessToken := fmt.Sprintf("access-%d", f.nextID)
	f.tokens[accessToken] = grant.user
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     "fake.id.token",
	})
}

func (f *FakeGoogleServer) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	accessToken := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	f.mu.Lock()
	user, ok := f.tokens[accessToken]
	fail := f.failUserInfo
	f.mu.Unlock()

	if fail {
		http.Error(w, "backend error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"sub":            user.Subject,
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"name":           user.Name,
		"hd":             user.HostedDomain,
	})
}
