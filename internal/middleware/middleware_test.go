package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/auth"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/orkutrevival/backend/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

func newAuthService() *auth.Service {
	return auth.NewService([]byte("middleware-secret"), time.Hour,
		auth.NewAdminRegistry([]string{"admin@orkut.com"}, ""))
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRequireAuth(t *testing.T) {
	svc := newAuthService()
	router := gin.New()
	router.GET("/me", RequireAuth(svc), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(util.ContextUserID))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	resp, err := svc.GenerateTokenForProfile(&models.Profile{ID: "p-1", Email: "user@orkut.com", Username: "user"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p-1", w.Body.String())

	// query token is accepted for websocket style clients
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+resp.Token, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	adminToken, _, err := svc.GenerateAdminToken("admin@orkut.com")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	svc := newAuthService()
	router := gin.New()
	router.GET("/admin", RequireAdmin(svc), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(util.ContextEmail))
	})

	adminToken, _, err := svc.GenerateAdminToken("admin@orkut.com")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin@orkut.com", w.Body.String())

	userToken, err := svc.GenerateTokenForProfile(&models.Profile{ID: "p-2", Email: "user@orkut.com"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userToken.Token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}
