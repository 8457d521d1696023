// Package router wires the HTTP handlers into a gin engine.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/interfaces/http/handler"
	"github.com/marketplace/backend/internal/interfaces/http/middleware"
)

// Config holds everything the router needs to assemble the API surface
type Config struct {
	Balances   *handler.SellerBalanceHandler
	Runs       *handler.SettlementRunHandler
	Payouts    *handler.PayoutHandler
	Reports    *handler.ReportHandler
	System     *handler.SystemHandler
	Logger     *zap.Logger
	Middleware []gin.HandlerFunc

	// MaxBodyBytes caps request body size; zero applies the 1 MiB default
	MaxBodyBytes int64
	// CORS overrides the default (deny-all) cross-origin policy
	CORS *middleware.CORSConfig
}

const defaultMaxBodyBytes = 1 << 20

// Setup builds a gin engine with the full settlement API mounted under
// /api/v1. Health stays outside the version prefix so probes do not carry a
// tenant header.
func Setup(cfg Config) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	if cfg.CORS != nil {
		corsConfig = *cfg.CORS
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	engine.Use(middleware.BodyLimit(maxBody))

	for _, m := range cfg.Middleware {
		engine.Use(m)
	}

	if cfg.System != nil {
		engine.GET("/health", cfg.System.Health)
		engine.GET("/healthz", cfg.System.Health)
	}

	tenantCfg := middleware.DefaultTenantConfig()
	tenantCfg.Logger = cfg.Logger

	api := engine.Group("/api/v1")
	api.Use(middleware.TenantWithConfig(tenantCfg))

	if cfg.Balances != nil {
		api.POST("/balances", cfg.Balances.Record)
		api.POST("/balances/adjustments", cfg.Balances.RecordAdjustment)
		api.GET("/balances", cfg.Balances.List)
		api.GET("/balances/:id", cfg.Balances.Get)
		api.GET("/sellers/:id/summary", cfg.Balances.SellerSummary)
	}

	if cfg.Runs != nil {
		api.POST("/settlement-runs", cfg.Runs.Create)
		api.GET("/settlement-runs", cfg.Runs.List)
		api.GET("/settlement-runs/:id", cfg.Runs.Get)
		api.POST("/settlement-runs/:id/execute", cfg.Runs.Execute)
		api.POST("/settlement-runs/:id/cancel", cfg.Runs.Cancel)
	}

	if cfg.Payouts != nil {
		api.POST("/settlement-runs/:id/payouts", cfg.Payouts.Generate)
		api.GET("/payouts", cfg.Payouts.List)
		api.GET("/payouts/:id", cfg.Payouts.Get)
		api.POST("/payouts/:id/dispatch", cfg.Payouts.Dispatch)
		api.POST("/payouts/:id/retry", cfg.Payouts.Retry)
		api.POST("/payouts/:id/result", cfg.Payouts.Result)
	}

	if cfg.Reports != nil {
		api.GET("/reports/overview", cfg.Reports.TenantOverview)
		api.GET("/reports/sellers/:id/statement", cfg.Reports.SellerStatement)
		api.GET("/reports/settlement-runs/:id", cfg.Reports.RunReport)
	}

	return engine
}
