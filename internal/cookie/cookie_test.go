package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgellow/signin-front/internal/envutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetSession(t *testing.T) {
	t.Setenv(envutil.EnvVar, "")
	w := httptest.NewRecorder()

	SetSession(w, "signin_session", "credential", 24*time.Hour)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "signin_session", c.Name)
	assert.Equal(t, "credential", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 86400, c.MaxAge)
}

func TestSetSession_DevModeNotSecure(t *testing.T) {
	t.Setenv(envutil.EnvVar, "development")
	w := httptest.NewRecorder()

	SetSession(w, "signin_session", "credential", time.Hour)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.False(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)
}

func TestClearSession(t *testing.T) {
	t.Setenv(envutil.EnvVar, "")
	w := httptest.NewRecorder()

	ClearSession(w, "signin_session")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "signin_session", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.True(t, cookies[0].HttpOnly)
}

func TestGet(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.AddCookie(&http.Cookie{Name: "signin_session", Value: "abc"})

	v, err := Get(r, "signin_session")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	_, err = Get(r, "other")
	assert.ErrorIs(t, err, http.ErrNoCookie)
}
