package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/signin-front/internal/config"
	"github.com/dgellow/signin-front/internal/idp"
	"github.com/dgellow/signin-front/internal/log"
	"github.com/dgellow/signin-front/internal/login"
	"github.com/dgellow/signin-front/internal/loginstate"
	"github.com/dgellow/signin-front/internal/server"
	"github.com/dgellow/signin-front/internal/session"
	"github.com/dgellow/signin-front/internal/storage"
	"github.com/dgellow/signin-front/internal/urlutil"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// SigninFront represents the complete sign-in application
type SigninFront struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	storage    storage.Storage
	cleanup    *storage.CleanupManager
	limiter    *server.IPRateLimiter
}

// NewSigninFront builds the application and all its dependencies. Provider
// options are passed through to the identity provider, mainly so tests can
// inject an HTTP client.
func NewSigninFront(ctx context.Context, cfg config.Config, providerOpts ...idp.Option) (*SigninFront, error) {
	log.LogInfoWithFields("signinfront", "Building sign-in application", map[string]any{
		"baseURL":  cfg.Server.BaseURL,
		"provider": cfg.Provider.Type,
		"storage":  cfg.Storage.Kind,
	})

	store, err := setupStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	handler, limiter, err := buildHTTPHandler(ctx, cfg, store, providerOpts)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &SigninFront{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
		storage:    store,
		cleanup:    storage.NewCleanupManager(store, cfg.Storage.CleanupInterval),
		limiter:    limiter,
	}, nil
}

// Handler returns the fully wired HTTP handler.
func (s *SigninFront) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, SIGINT/SIGTERM arrives or a component
// fails, then shuts everything down.
func (s *SigninFront) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *SigninFront) Serve(ctx context.Context, ln net.Listener) error {
	log.LogInfoWithFields("signinfront", "Starting sign-in application", map[string]any{
		"addr": ln.Addr().String(),
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.cleanup.Run(gctx)
	})
	if s.limiter != nil {
		g.Go(func() error {
			return s.limiter.Run(gctx, time.Minute)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("signinfront", "Starting graceful shutdown", map[string]any{
			"timeout": shutdownTimeout.String(),
		})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()
	if closeErr := s.storage.Close(); closeErr != nil {
		log.LogErrorWithFields("signinfront", "Failed to close storage", map[string]any{
			"error": closeErr.Error(),
		})
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.LogErrorWithFields("signinfront", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("signinfront", "Application shutdown complete", nil)
	return nil
}

// setupStorage creates storage based on configuration
func setupStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	if cfg.Kind == config.StorageKindFirestore {
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":  cfg.GCPProject,
			"database": cfg.FirestoreDatabase,
			"prefix":   cfg.CollectionPrefix,
		})
		firestoreStorage, err := storage.NewFirestoreStorage(ctx, cfg.GCPProject, cfg.FirestoreDatabase, cfg.CollectionPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return firestoreStorage, nil
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", nil)
	return storage.NewMemoryStorage(), nil
}

// buildHTTPHandler creates the complete HTTP handler with all routing and middleware
func buildHTTPHandler(ctx context.Context, cfg config.Config, store storage.Storage, providerOpts []idp.Option) (http.Handler, *server.IPRateLimiter, error) {
	provider, err := idp.NewProvider(ctx, cfg.Provider, providerOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create identity provider: %w", err)
	}

	returnURLs, err := urlutil.NewReturnURLPolicy(cfg.Login.AllowedReturnOrigins)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid return origins: %w", err)
	}

	sessions := session.NewIssuer(store, []byte(cfg.Session.SigningKey), cfg.Session.Issuer, cfg.Session.TTL)
	controller := login.NewController(login.Config{
		ReturnURLs: returnURLs,
		States:     loginstate.NewStore(store, provider.Type(), cfg.Login.StateTTL),
		Provider:   provider,
		Sessions:   sessions,
		Policy: login.AccessPolicy{
			AllowedDomains:       cfg.Provider.AllowedDomains,
			RequireVerifiedEmail: cfg.Provider.RequireVerifiedEmail,
		},
		ProviderTimeout: cfg.Provider.Timeout,
	})

	authHandlers := server.NewAuthHandlers(server.AuthHandlersConfig{
		Controller:   controller,
		Sessions:     sessions,
		ReturnURLs:   returnURLs,
		CookieName:   cfg.Session.CookieName,
		ErrorPageURL: cfg.Server.ErrorPageURL,
	})

	var limiter *server.IPRateLimiter
	if cfg.Server.RateLimit.PerSecond > 0 {
		limiter = server.NewIPRateLimiter(cfg.Server.RateLimit.PerSecond, cfg.Server.RateLimit.Burst)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health", server.NewHealthHandler())
	server.RegisterAuthRoutes(mux, authHandlers,
		server.NewRateLimitMiddleware(limiter),
		server.NewCORSMiddleware(cfg.Server.AllowedOrigins),
	)

	handler := server.ChainMiddleware(mux,
		server.NewLoggerMiddleware("http"),
		server.NewRecoverMiddleware("http"),
		server.NewRequestIDMiddleware(),
	)
	return handler, limiter, nil
}
