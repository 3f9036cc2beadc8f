package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func protectedRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", JWTAuthMiddleware(secret), func(c *gin.Context) {
		username, _ := c.Get("username")
		c.JSON(http.StatusOK, gin.H{"username": username})
	})
	router.GET("/admin", JWTAuthMiddleware(secret), AdminRoleMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func doGet(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := IssueOperatorToken(testSecret, "operator", "admin")
	require.NoError(t, err)

	claims, err := validateOperatorToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "operator", claims.Subject)
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	router := protectedRouter(testSecret)
	token, err := IssueOperatorToken(testSecret, "operator", "operator")
	require.NoError(t, err)

	w := doGet(router, "/protected", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "operator")
}

func TestMiddlewareRejectsMissingOrMalformedHeader(t *testing.T) {
	router := protectedRouter(testSecret)

	w := doGet(router, "/protected", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic abc123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsWrongSecret(t *testing.T) {
	router := protectedRouter(testSecret)
	token, err := IssueOperatorToken("other-secret", "operator", "admin")
	require.NoError(t, err)

	w := doGet(router, "/protected", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoleRequired(t *testing.T) {
	router := protectedRouter(testSecret)

	operatorToken, err := IssueOperatorToken(testSecret, "viewer", "operator")
	require.NoError(t, err)
	w := doGet(router, "/admin", operatorToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken, err := IssueOperatorToken(testSecret, "operator", "admin")
	require.NoError(t, err)
	w = doGet(router, "/admin", adminToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterLocksAfterFailures(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, time.Minute)

	allowed, _, _ := rl.Check("10.0.0.1")
	assert.True(t, allowed)

	for i := 0; i < 3; i++ {
		rl.RecordAttempt("10.0.0.1", false)
	}
	allowed, remaining, _ := rl.Check("10.0.0.1")
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)

	// Another IP is unaffected.
	allowed, _, _ = rl.Check("10.0.0.2")
	assert.True(t, allowed)
}

func TestRateLimiterSuccessClearsAttempts(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, time.Minute)

	rl.RecordAttempt("10.0.0.1", false)
	rl.RecordAttempt("10.0.0.1", false)
	rl.RecordAttempt("10.0.0.1", true)

	allowed, remaining, _ := rl.Check("10.0.0.1")
	assert.True(t, allowed)
	assert.Equal(t, 3, remaining)
}
