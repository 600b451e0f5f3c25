package server

import "net/http"

// RegisterAuthRoutes mounts the login endpoints on mux, each wrapped in
// middlewares.
func RegisterAuthRoutes(mux *http.ServeMux, h *AuthHandlers, middlewares ...MiddlewareFunc) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, ChainMiddleware(fn, middlewares...))
	}

	handle("GET /auth/me", h.MeHandler)
	handle("POST /auth/logout", h.LogoutHandler)
	handle("GET /auth/{provider}", h.LoginHandler)
	handle("GET /auth/{provider}/callback", h.CallbackHandler)
	// Preflight requests for the routes above.
	handle("OPTIONS /auth/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
