package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	settlementapp "github.com/marketplace/backend/internal/application/settlement"
	"github.com/marketplace/backend/internal/infrastructure/banking"
	"github.com/marketplace/backend/internal/infrastructure/cache"
	"github.com/marketplace/backend/internal/infrastructure/config"
	"github.com/marketplace/backend/internal/infrastructure/directory"
	"github.com/marketplace/backend/internal/infrastructure/event"
	"github.com/marketplace/backend/internal/infrastructure/logger"
	"github.com/marketplace/backend/internal/infrastructure/persistence"
	"github.com/marketplace/backend/internal/infrastructure/scheduler"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
	"github.com/marketplace/backend/internal/interfaces/http/handler"
	"github.com/marketplace/backend/internal/interfaces/http/middleware"
	"github.com/marketplace/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting settlement backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Initialize tracing
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Initialize metrics
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))

	// Initialize database connection
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{Enabled: true}, log)
		if err := dbTracing.Register(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}

	// Initialize repositories
	balanceRepo := persistence.NewGormSellerBalanceRepository(db.DB)
	runRepo := persistence.NewGormSettlementRunRepository(db.DB)
	payoutRepo := persistence.NewGormPayoutRepository(db.DB)
	uow := persistence.NewGormUnitOfWork(db)

	// Collaborator clients
	bankingGateway := banking.NewHTTPBankingGateway(cfg.Banking, log)
	sellerDirectory := directory.NewHTTPSellerDirectory(cfg.Directory)

	// Event bus
	eventBus := event.NewInMemoryEventBus(log)

	// Idempotency store (Redis when configured, in-memory otherwise)
	idempotencyStore, err := cache.NewIdempotencyStoreFactory(cfg.Redis).CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	// Application services
	ledgerService := settlementapp.NewLedgerService(balanceRepo, nil, eventBus, log)
	settlementService := settlementapp.NewSettlementService(runRepo, balanceRepo, uow, eventBus, log)
	payoutService := settlementapp.NewPayoutService(
		payoutRepo,
		runRepo,
		balanceRepo,
		sellerDirectory,
		bankingGateway,
		eventBus,
		log,
		cfg.Settlement.DispatchTimeout,
	)
	reportingService := settlementapp.NewReportingService(balanceRepo, runRepo, payoutRepo, log)

	// Event handlers: order events feed the ledger, banking results close
	// payouts, and the metrics handler counts lifecycle transitions
	orderItemHandler := settlementapp.NewOrderItemSettledHandler(ledgerService, balanceRepo, log)
	eventBus.Subscribe(orderItemHandler)

	payoutResultHandler := settlementapp.NewPayoutResultHandler(payoutService, idempotencyStore, cfg.Event.IdempotencyTTL, log)
	eventBus.Subscribe(payoutResultHandler)

	if meterProvider.IsEnabled() {
		settlementMetrics, err := telemetry.NewSettlementMetrics(meterProvider.Meter("settlement"), log)
		if err != nil {
			log.Warn("Failed to create settlement metrics", zap.Error(err))
		} else {
			eventBus.Subscribe(settlementMetrics)
		}
	}

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Settlement scheduler
	if cfg.Settlement.SchedulerEnabled {
		settlementScheduler := scheduler.NewSettlementScheduler(
			settlementService,
			payoutService,
			balanceRepo,
			log,
			scheduler.SettlementSchedulerConfig{
				Enabled:      cfg.Settlement.SchedulerEnabled,
				Interval:     cfg.Settlement.SchedulerInterval,
				RunTimeout:   cfg.Settlement.RunTimeout,
				AutoDispatch: cfg.Settlement.AutoDispatch,
			},
		)
		if err := settlementScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start settlement scheduler", zap.Error(err))
		}
		defer func() {
			if err := settlementScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping settlement scheduler", zap.Error(err))
			}
		}()
		log.Info("Settlement scheduler started",
			zap.Duration("interval", cfg.Settlement.SchedulerInterval),
			zap.Bool("auto_dispatch", cfg.Settlement.AutoDispatch),
		)
	}

	// HTTP handlers
	balanceHandler := handler.NewSellerBalanceHandler(ledgerService)
	runHandler := handler.NewSettlementRunHandler(settlementService)
	payoutHandler := handler.NewPayoutHandler(payoutService, eventBus, log)
	reportHandler := handler.NewReportHandler(reportingService)
	systemHandler := handler.NewSystemHandler(db)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	extraMiddleware := []gin.HandlerFunc{
		logger.Recovery(log),
		logger.GinMiddleware(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: meterProvider,
			ServiceName:   cfg.Telemetry.ServiceName,
			Enabled:       cfg.Telemetry.Enabled,
		}),
	}
	if cfg.HTTP.RateLimitEnabled {
		extraMiddleware = append(extraMiddleware, middleware.RateLimit(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	engine := router.Setup(router.Config{
		Balances: balanceHandler,
		Runs:     runHandler,
		Payouts:  payoutHandler,
		Reports:  reportHandler,
		System:   systemHandler,
		Logger:   log,
		CORS: &middleware.CORSConfig{
			AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
			AllowMethods:     cfg.HTTP.CORSAllowMethods,
			AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		},
		Middleware: extraMiddleware,
	})

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
