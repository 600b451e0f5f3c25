package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/dgellow/signin-front/internal/cookie"
	jsonwriter "github.com/dgellow/signin-front/internal/json"
	"github.com/dgellow/signin-front/internal/log"
	"github.com/dgellow/signin-front/internal/login"
	"github.com/dgellow/signin-front/internal/session"
	"github.com/dgellow/signin-front/internal/urlutil"
)

// AuthHandlers provides the login HTTP handlers with dependency injection
type AuthHandlers struct {
	controller   *login.Controller
	sessions     *session.Issuer
	returnURLs   *urlutil.ReturnURLPolicy
	cookieName   string
	errorPageURL string
}

// AuthHandlersConfig wires AuthHandlers.
type AuthHandlersConfig struct {
	Controller *login.Controller
	Sessions   *session.Issuer
	ReturnURLs *urlutil.ReturnURLPolicy
	CookieName string
	// ErrorPageURL, when set, receives browsers whose callback failed
	// instead of a JSON error body.
	ErrorPageURL string
}

// NewAuthHandlers creates new auth handlers with dependency injection
func NewAuthHandlers(cfg AuthHandlersConfig) *AuthHandlers {
	return &AuthHandlers{
		controller:   cfg.Controller,
		sessions:     cfg.Sessions,
		returnURLs:   cfg.ReturnURLs,
		cookieName:   cfg.CookieName,
		errorPageURL: cfg.ErrorPageURL,
	}
}

// profileResponse is the body of GET /auth/me.
type profileResponse struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Picture   string    `json:"picture,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandlers) knownProvider(w http.ResponseWriter, r *http.Request) bool {
	if r.PathValue("provider") != h.controller.ProviderType() {
		jsonwriter.WriteNotFound(w, "Unknown provider")
		return false
	}
	return true
}

// LoginHandler starts a login: GET /auth/{provider}?state=<returnURL>.
// The state query parameter is the caller's return URL; the opaque state
// sent to the provider is generated here.
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !h.knownProvider(w, r) {
		return
	}

	redirect, err := h.controller.BeginLogin(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		h.writeLoginError(w, r, err, false)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

// CallbackHandler handles the provider callback:
// GET /auth/{provider}/callback?code=...&state=...
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if !h.knownProvider(w, r) {
		return
	}

	q := r.URL.Query()
	if errMsg := q.Get("error"); errMsg != "" {
		log.WarnCtx(r.Context(), "auth", "Provider returned an error", map[string]any{
			"error":             errMsg,
			"error_description": q.Get("error_description"),
		})
	}

	result, err := h.controller.HandleCallback(r.Context(), login.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	})
	if err != nil {
		h.writeLoginError(w, r, err, true)
		return
	}

	cookie.SetSession(w, h.cookieName, result.Credential, h.sessions.TTL())
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, result.ReturnURL, http.StatusFound)
}

// MeHandler returns the profile of the current session: GET /auth/me.
func (h *AuthHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.currentSession(w, r)
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Not signed in")
		return
	}

	identity, err := h.sessions.Identity(r.Context(), sess)
	if err != nil {
		log.ErrorCtx(r.Context(), "auth", "Failed to load identity", map[string]any{
			"identity_id": sess.IdentityID,
			"error":       err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to load profile")
		return
	}

	_ = jsonwriter.Write(w, profileResponse{
		ID:        identity.ID,
		Provider:  identity.ProviderType,
		Subject:   identity.Subject,
		Email:     identity.Email,
		Name:      identity.Name,
		Picture:   identity.Picture,
		ExpiresAt: sess.ExpiresAt,
	})
}

// LogoutHandler revokes the current session: POST /auth/logout. With an
// allow-listed state return URL the browser is sent there, otherwise the
// response is 204.
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	returnURL := ""
	if raw := r.URL.Query().Get("state"); raw != "" {
		normalized, err := h.returnURLs.Validate(raw)
		if err != nil {
			h.writeLoginError(w, r, errors.Join(login.ErrInvalidReturnURL, err), false)
			return
		}
		returnURL = normalized
	}

	if sess, ok := h.currentSession(w, r); ok {
		if err := h.sessions.Revoke(r.Context(), sess.ID); err != nil {
			log.ErrorCtx(r.Context(), "auth", "Failed to revoke session", map[string]any{
				"error": err.Error(),
			})
			jsonwriter.WriteInternalServerError(w, "Failed to sign out")
			return
		}
	}
	cookie.ClearSession(w, h.cookieName)

	if returnURL != "" {
		http.Redirect(w, r, returnURL, http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// currentSession verifies the session cookie. Invalid cookies are cleared.
func (h *AuthHandlers) currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	credential, err := cookie.Get(r, h.cookieName)
	if err != nil || credential == "" {
		return nil, false
	}

	sess, err := h.sessions.Verify(r.Context(), credential)
	if err != nil {
		log.DebugCtx(r.Context(), "auth", "Rejected session cookie", map[string]any{
			"error": err.Error(),
		})
		cookie.ClearSession(w, h.cookieName)
		return nil, false
	}
	return sess, true
}

// writeLoginError reports a failed login. Browsers arriving from the
// provider go to the error page when one is configured; everything else
// gets JSON. Only the failure kind and request ID leave the server.
func (h *AuthHandlers) writeLoginError(w http.ResponseWriter, r *http.Request, err error, fromProvider bool) {
	kind := login.Kind(err)
	requestID := log.RequestID(r.Context())

	if fromProvider && h.errorPageURL != "" {
		target, buildErr := urlutil.WithQuery(h.errorPageURL, map[string]string{
			"error":      kind,
			"request_id": requestID,
		})
		if buildErr == nil {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		log.ErrorCtx(r.Context(), "auth", "Invalid error page URL", map[string]any{
			"error": buildErr.Error(),
		})
	}

	jsonwriter.WriteErrorResponse(w, login.HTTPStatus(err), jsonwriter.ErrorResponse{
		Error:     kind,
		RequestID: requestID,
	})
}
