// Package login drives the server-side "Login with Google" flow:
// BeginLogin sends the browser to the provider, HandleCallback turns the
// provider's answer into an application session.
package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/signin-front/internal/emailutil"
	"github.com/dgellow/signin-front/internal/idp"
	"github.com/dgellow/signin-front/internal/log"
	"github.com/dgellow/signin-front/internal/loginstate"
	"github.com/dgellow/signin-front/internal/session"
	"github.com/dgellow/signin-front/internal/urlutil"
)

// Phase is the position of one login attempt in its lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingCallback
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingCallback:
		return "awaiting_callback"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Redirect is where BeginLogin sends the browser.
type Redirect struct {
	URL   string
	Phase Phase
}

// CallbackParams are the query parameters of the provider callback.
type CallbackParams struct {
	Code  string
	State string
	// Error is the provider-reported error code, e.g. "access_denied".
	Error string
}

// Result is a completed login.
type Result struct {
	Session    *session.Session
	Credential string
	ReturnURL  string
	Phase      Phase
}

// AccessPolicy restricts who may sign in. The zero value admits everyone.
type AccessPolicy struct {
	AllowedDomains       []string
	RequireVerifiedEmail bool
}

func (p AccessPolicy) check(profile *idp.Profile) error {
	if p.RequireVerifiedEmail && !profile.EmailVerified {
		return fmt.Errorf("email %s is not verified", emailutil.Normalize(profile.Email))
	}
	return idp.ValidateDomain(profile.Domain, p.AllowedDomains)
}

// Controller coordinates the state store, provider and session issuer.
// It is safe for concurrent use; all per-login state lives in storage.
type Controller struct {
	returnURLs *urlutil.ReturnURLPolicy
	states     *loginstate.Store
	provider   idp.Provider
	sessions   *session.Issuer
	policy     AccessPolicy
	timeout    time.Duration
}

// Config wires a Controller.
type Config struct {
	ReturnURLs *urlutil.ReturnURLPolicy
	States     *loginstate.Store
	Provider   idp.Provider
	Sessions   *session.Issuer
	Policy     AccessPolicy
	// ProviderTimeout bounds each call to the provider.
	ProviderTimeout time.Duration
}

// NewController creates a Controller.
func NewController(cfg Config) *Controller {
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Controller{
		returnURLs: cfg.ReturnURLs,
		states:     cfg.States,
		provider:   cfg.Provider,
		sessions:   cfg.Sessions,
		policy:     cfg.Policy,
		timeout:    timeout,
	}
}

// ProviderType returns the type of the configured provider.
func (c *Controller) ProviderType() string {
	return c.provider.Type()
}

// BeginLogin validates returnURL, records a pending login and returns the
// provider authorization URL. Nothing is stored when returnURL is rejected.
func (c *Controller) BeginLogin(ctx context.Context, returnURL string) (*Redirect, error) {
	normalized, err := c.returnURLs.Validate(returnURL)
	if err != nil {
		log.WarnCtx(ctx, "login", "Rejected return URL", map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", ErrInvalidReturnURL, err)
	}

	req, err := c.states.Issue(ctx, normalized)
	if err != nil {
		log.ErrorCtx(ctx, "login", "Failed to issue login state", map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	return &Redirect{
		URL:   c.provider.AuthURL(req.StateToken, req.CodeVerifier),
		Phase: PhaseAwaitingCallback,
	}, nil
}

// HandleCallback completes a login. The state is consumed before anything
// else so that it is spent even when a later step fails.
func (c *Controller) HandleCallback(ctx context.Context, params CallbackParams) (*Result, error) {
	req, err := c.states.ValidateAndConsume(ctx, params.State)
	if err != nil {
		if errors.Is(err, loginstate.ErrInvalidState) {
			return nil, c.fail(ctx, err)
		}
		return nil, c.fail(ctx, fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
	}

	if params.Error != "" {
		return nil, c.fail(ctx, fmt.Errorf("%w: provider returned %q", ErrAccessDenied, params.Error))
	}
	if params.Code == "" {
		return nil, c.fail(ctx, fmt.Errorf("%w: missing authorization code", ErrExchangeFailed))
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	token, err := c.provider.ExchangeCode(exchangeCtx, params.Code, req.CodeVerifier)
	cancel()
	if err != nil {
		return nil, c.fail(ctx, classify(ErrExchangeFailed, err))
	}

	profileCtx, cancel := context.WithTimeout(ctx, c.timeout)
	profile, err := c.provider.UserInfo(profileCtx, token)
	cancel()
	if err != nil {
		return nil, c.fail(ctx, classify(ErrProfileFetchFailed, err))
	}

	if err := c.policy.check(profile); err != nil {
		return nil, c.fail(ctx, fmt.Errorf("%w: %w", ErrAccessDenied, err))
	}

	sess, credential, err := c.sessions.Issue(ctx, profile, req.ReturnURL)
	if err != nil {
		return nil, c.fail(ctx, fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
	}

	log.InfoCtx(ctx, "login", "Login completed", map[string]any{
		"provider":    profile.ProviderType,
		"identity_id": sess.IdentityID,
		"phase":       PhaseCompleted.String(),
	})

	return &Result{
		Session:    sess,
		Credential: credential,
		ReturnURL:  req.ReturnURL,
		Phase:      PhaseCompleted,
	}, nil
}

// classify makes sure err carries kind, which custom providers may not do.
func classify(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func (c *Controller) fail(ctx context.Context, err error) error {
	log.WarnCtx(ctx, "login", "Login failed", map[string]any{
		"kind":  Kind(err),
		"error": err.Error(),
		"phase": PhaseFailed.String(),
	})
	return err
}
