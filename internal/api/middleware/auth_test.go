package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "super-secret-signing-key"

func init() {
	gin.SetMode(gin.TestMode)
}

func mintToken(t *testing.T, secret, role string, subject string, expiresIn time.Duration) string {
	t.Helper()
	claims := SupabaseClaims{
		Role:  role,
		Email: "fan@garyai.app",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newAuthTestRouter(secret string) *gin.Engine {
	middleware := NewAuthMiddleware(secret)
	router := gin.New()
	router.GET("/protected", middleware.AuthRequired(), func(c *gin.Context) {
		userID, err := GetUserIDFromContext(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID.String()})
	})
	return router
}

func getProtected(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthRequiredAcceptsValidToken(t *testing.T) {
	router := newAuthTestRouter(testJWTSecret)
	userID := uuid.NewString()

	token := mintToken(t, testJWTSecret, "authenticated", userID, time.Hour)
	w := getProtected(router, "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID)
}

func TestAuthRequiredAcceptsServiceRole(t *testing.T) {
	router := newAuthTestRouter(testJWTSecret)

	token := mintToken(t, testJWTSecret, "service_role", uuid.NewString(), time.Hour)
	w := getProtected(router, "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
}

// TestAuthRequiredRejections covers the 401 paths: missing header, missing
// scheme, wrong key, expired token, unexpected role, and a non-UUID subject.
func TestAuthRequiredRejections(t *testing.T) {
	router := newAuthTestRouter(testJWTSecret)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer scheme", mintToken(t, testJWTSecret, "authenticated", uuid.NewString(), time.Hour)},
		{"wrong secret", "Bearer " + mintToken(t, "some-other-secret", "authenticated", uuid.NewString(), time.Hour)},
		{"expired token", "Bearer " + mintToken(t, testJWTSecret, "authenticated", uuid.NewString(), -time.Hour)},
		{"anon role", "Bearer " + mintToken(t, testJWTSecret, "anon", uuid.NewString(), time.Hour)},
		{"non-uuid subject", "Bearer " + mintToken(t, testJWTSecret, "authenticated", "user-42", time.Hour)},
		{"garbage token", "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := getProtected(router, tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuthOptionalLetsAnonymousThrough(t *testing.T) {
	middleware := NewAuthMiddleware(testJWTSecret)
	router := gin.New()
	router.GET("/open", middleware.AuthOptional(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"authenticated": IsAuthenticated(c)})
	})

	// No header at all.
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)

	// A bad token downgrades to anonymous instead of failing.
	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer junk")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)

	// A valid token authenticates.
	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testJWTSecret, "authenticated", uuid.NewString(), time.Hour))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":true`)
}
