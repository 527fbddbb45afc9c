package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", mw, func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, strconv.FormatInt(id, 10))
	})
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequiredWithToken(t *testing.T) {
	auth := NewAuthenticator("s3cret", time.Hour, "room-chat-service")
	token, err := auth.IssueToken(42, time.Now())
	require.NoError(t, err)
	r := newRouter(auth.Required())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	assert.Equal(t, "42", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token "+token)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodGet, "/me", nil)).Code)
}

func TestRequiredRejectsForeignAndExpiredTokens(t *testing.T) {
	auth := NewAuthenticator("s3cret", time.Hour, "room-chat-service")
	r := newRouter(auth.Required())

	foreign, err := NewAuthenticator("other", time.Hour, "x").IssueToken(1, time.Now())
	require.NoError(t, err)
	expired, err := auth.IssueToken(1, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	for _, token := range []string{foreign, expired, "garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
	}
}

func TestParseTokenFallsBackToSubject(t *testing.T) {
	auth := NewAuthenticator("s3cret", time.Hour, "")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	id, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestHeaderIdentityWhenSecretEmpty(t *testing.T) {
	auth := NewAuthenticator("", 0, "")
	assert.False(t, auth.Enabled())
	token, err := auth.IssueToken(1, time.Now())
	require.NoError(t, err)
	assert.Empty(t, token)

	r := newRouter(auth.Required())
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", "9")
	assert.Equal(t, "9", serve(r, req).Body.String())

	assert.Equal(t, "5", serve(r, httptest.NewRequest(http.MethodGet, "/me?userId=5", nil)).Body.String())
	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodGet, "/me?userId=abc", nil)).Code)
}

func TestOptionalAllowsAnonymous(t *testing.T) {
	auth := NewAuthenticator("", 0, "")
	r := newRouter(auth.Optional())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())
}
