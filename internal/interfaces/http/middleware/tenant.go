package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

// Context keys and headers for tenant scoping
const (
	TenantIDKey     = "tenant_id"
	TenantHeaderKey = "X-Tenant-ID"
)

// TenantConfig holds configuration for the tenant middleware
type TenantConfig struct {
	// SkipPaths are paths that don't require tenant context
	SkipPaths []string
	// Required rejects requests without a tenant id when true
	Required bool
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultTenantConfig returns default tenant middleware configuration
func DefaultTenantConfig() TenantConfig {
	return TenantConfig{
		SkipPaths: []string{"/health", "/healthz", "/ready"},
		Required:  true,
	}
}

// Tenant extracts the tenant id from the X-Tenant-ID header and stores it in
// the gin context. Every settlement operation is scoped to exactly one tenant.
func Tenant() gin.HandlerFunc {
	return TenantWithConfig(DefaultTenantConfig())
}

// TenantWithConfig returns tenant middleware with custom configuration
func TenantWithConfig(cfg TenantConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip || strings.HasPrefix(path, skip+"/") {
				c.Next()
				return
			}
		}

		raw := c.GetHeader(TenantHeaderKey)
		if raw == "" {
			if cfg.Required {
				c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
					dto.ErrCodeTenantRequired,
					"X-Tenant-ID header is required",
					GetRequestID(c),
				))
				return
			}
			c.Next()
			return
		}

		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rejected request with malformed tenant id",
					zap.String("path", path),
					zap.String("tenant_header", raw),
				)
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeInvalidInput,
				"X-Tenant-ID must be a valid UUID",
				GetRequestID(c),
			))
			return
		}

		c.Set(TenantIDKey, tenantID)
		c.Next()
	}
}

// GetTenantID returns the tenant id stored by the tenant middleware
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(TenantIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
