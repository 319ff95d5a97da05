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

func newAuthRouter(am *AuthMiddleware, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	chain := router.Group("", am.Authenticate())
	if len(roles) > 0 {
		chain.Use(am.RequireRole(roles...))
	}
	chain.GET("/probe", func(c *gin.Context) {
		userID, _ := c.Get("user_id")
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})

	return router
}

func TestAuthenticate_MissingToken(t *testing.T) {
	router := newAuthRouter(NewAuthMiddleware("secret"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticate_ValidBearerToken(t *testing.T) {
	am := NewAuthMiddleware("secret")
	router := newAuthRouter(am)

	token, err := am.GenerateToken("user-1", "user", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
}

func TestAuthenticate_QueryToken(t *testing.T) {
	am := NewAuthMiddleware("secret")
	router := newAuthRouter(am)

	token, err := am.GenerateToken("user-1", "user", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe?token="+token, nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	other := NewAuthMiddleware("other-secret")
	router := newAuthRouter(NewAuthMiddleware("secret"))

	token, err := other.GenerateToken("user-1", "user", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	am := NewAuthMiddleware("secret")
	router := newAuthRouter(am)

	token, err := am.GenerateToken("user-1", "user", -time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	am := NewAuthMiddleware("secret")
	router := newAuthRouter(am, "admin")

	userToken, err := am.GenerateToken("user-1", "user", time.Hour)
	require.NoError(t, err)
	adminToken, err := am.GenerateToken("admin-1", "admin", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
