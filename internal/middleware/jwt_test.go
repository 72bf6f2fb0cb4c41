package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dugsihub/dugsi-api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const jwtTestSecret = "test-secret"

func newProtectedRouter() *gin.Engine {
	auth := service.NewAuthService(nil, nil, nil, service.AuthConfig{
		Secret:     jwtTestSecret,
		Expiration: time.Hour,
		Issuer:     "dugsi-api",
	})
	r := gin.New()
	r.GET("/protected", JWT(auth), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*service.Claims)
		c.JSON(http.StatusOK, gin.H{"subject": claims.Subject})
	})
	return r
}

func signTestToken(t *testing.T, secret string, expiresAt time.Time) string {
	t.Helper()
	claims := &service.Claims{
		Email: "admin@dugsi.so",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTAllowsValidToken(t *testing.T) {
	r := newProtectedRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, jwtTestSecret, time.Now().Add(time.Hour)))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subject":"u1"`)
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	r := newProtectedRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsMalformedHeader(t *testing.T) {
	r := newProtectedRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	r := newProtectedRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, jwtTestSecret, time.Now().Add(-time.Hour)))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	r := newProtectedRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "other-secret", time.Now().Add(time.Hour)))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
