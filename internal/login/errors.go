package login

import (
	"errors"
	"net/http"

	"github.com/dgellow/signin-front/internal/idp"
	"github.com/dgellow/signin-front/internal/loginstate"
)

// Failure kinds. Every error returned by the Controller wraps exactly one
// of these; Kind and HTTPStatus classify it.
var (
	ErrInvalidReturnURL   = errors.New("invalid return URL")
	ErrInvalidState       = loginstate.ErrInvalidState
	ErrAccessDenied       = errors.New("access denied")
	ErrExchangeFailed     = idp.ErrExchangeFailed
	ErrProfileFetchFailed = idp.ErrProfileFetchFailed
	ErrPersistenceFailed  = errors.New("persistence failed")
)

var kinds = []struct {
	err    error
	kind   string
	status int
}{
	{ErrInvalidReturnURL, "invalid_return_url", http.StatusBadRequest},
	{ErrInvalidState, "invalid_state", http.StatusBadRequest},
	{ErrAccessDenied, "access_denied", http.StatusForbidden},
	{ErrExchangeFailed, "exchange_failed", http.StatusBadGateway},
	{ErrProfileFetchFailed, "profile_fetch_failed", http.StatusBadGateway},
	{ErrPersistenceFailed, "persistence_failed", http.StatusInternalServerError},
}

// Kind returns the stable, browser-safe name of err's failure kind.
// Unclassified errors are "server_error".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "server_error"
}

// HTTPStatus maps err's failure kind to a response status.
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}
