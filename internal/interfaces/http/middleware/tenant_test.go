package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTenantTestRouter(cfg TenantConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TenantWithConfig(cfg))
	r.GET("/balances", func(c *gin.Context) {
		id, ok := GetTenantID(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"tenant": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenant": id.String()})
	})
	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestTenant_ValidHeader(t *testing.T) {
	r := newTenantTestRouter(DefaultTenantConfig())
	tenantID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/balances", nil)
	req.Header.Set(TenantHeaderKey, tenantID.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), tenantID.String())
}

func TestTenant_MissingHeader(t *testing.T) {
	r := newTenantTestRouter(DefaultTenantConfig())

	req := httptest.NewRequest(http.MethodGet, "/balances", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_TENANT_REQUIRED")
}

func TestTenant_MalformedHeader(t *testing.T) {
	r := newTenantTestRouter(DefaultTenantConfig())

	req := httptest.NewRequest(http.MethodGet, "/balances", nil)
	req.Header.Set(TenantHeaderKey, "not-a-uuid")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_INVALID_INPUT")
}

func TestTenant_NilUUIDRejected(t *testing.T) {
	r := newTenantTestRouter(DefaultTenantConfig())

	req := httptest.NewRequest(http.MethodGet, "/balances", nil)
	req.Header.Set(TenantHeaderKey, uuid.Nil.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTenant_SkipPaths(t *testing.T) {
	r := newTenantTestRouter(DefaultTenantConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTenant_OptionalWhenNotRequired(t *testing.T) {
	cfg := DefaultTenantConfig()
	cfg.Required = false
	r := newTenantTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/balances", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "null")
}
