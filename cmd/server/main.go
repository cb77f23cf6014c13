package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	refundapp "github.com/erp/refundtracker/internal/application/refund"
	"github.com/erp/refundtracker/internal/domain/shared/valueobject"
	"github.com/erp/refundtracker/internal/infrastructure/auth"
	"github.com/erp/refundtracker/internal/infrastructure/cache"
	"github.com/erp/refundtracker/internal/infrastructure/config"
	csvimport "github.com/erp/refundtracker/internal/infrastructure/import"
	"github.com/erp/refundtracker/internal/infrastructure/logger"
	"github.com/erp/refundtracker/internal/infrastructure/persistence"
	"github.com/erp/refundtracker/internal/infrastructure/telemetry"
	"github.com/erp/refundtracker/internal/interfaces/http/handler"
	"github.com/erp/refundtracker/internal/interfaces/http/middleware"
	"github.com/erp/refundtracker/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultTimeFormat,
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting refund tracker",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	// Telemetry falls back to the no-op providers when disabled
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		ExportInterval:    cfg.Telemetry.ExportInterval,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()
	if providers.Enabled() {
		// Entries also go to the collector, at the configured level
		log = logger.Tee(log, providers.LogCore(cfg.Telemetry.ServiceName, log.Core()))
	}

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate schema", zap.Error(err))
		}
		log.Info("Schema migrated")
	}

	if cfg.Telemetry.Enabled {
		dbSystem, dbName := "postgresql", cfg.Database.DBName
		if cfg.Database.Driver == config.DriverSQLite {
			dbSystem, dbName = "sqlite", ""
		}
		if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
			Enabled:            cfg.Telemetry.DBTraceEnabled,
			System:             dbSystem,
			DBName:             dbName,
			WithQueryVariables: cfg.App.Env != "production",
		}, log); err != nil {
			log.Warn("Database tracing not installed", zap.Error(err))
		}
	}

	// Snapshot cache: redis when enabled and reachable, memory otherwise
	snapshotCache := cache.NewSnapshotCache(ctx, cfg.Accounting, cfg.Redis, log)
	defer func() {
		if err := snapshotCache.Close(); err != nil {
			log.Error("Error closing snapshot cache", zap.Error(err))
		}
	}()

	store := persistence.NewGormStore(db.DB, persistence.StoreOptions{
		QueryChunkSize: cfg.Accounting.QueryChunkSize,
		WriteBatchSize: cfg.Accounting.WriteBatchSize,
	})

	settings := refundapp.Settings{
		Tolerance:            valueobject.NewToleranceFromFloat(cfg.Accounting.Epsilon),
		OptimisticTolerance:  cfg.Accounting.OptimisticTolerance,
		RecomputeConcurrency: cfg.Accounting.RecomputeConcurrency,
	}

	// Initialize application services
	snapshotService := refundapp.NewSnapshotService(store, snapshotCache, settings, log)
	refundService := refundapp.NewRefundService(store, snapshotService, settings, log)
	returnService := refundapp.NewReturnService(store, snapshotService, log)
	reconciliationService := refundapp.NewReconciliationService(store, snapshotService, log)
	ingestionService := refundapp.NewIngestionService(store, snapshotService, settings, log)
	reportService := refundapp.NewReportService(store)
	orderService := refundapp.NewOrderService(store)

	meter := providers.Meter(telemetry.TracerName)
	accountingMetrics, err := telemetry.NewAccountingMetrics(meter)
	if err != nil {
		log.Warn("Accounting metrics unavailable", zap.Error(err))
	} else {
		snapshotService.SetMetrics(accountingMetrics)
		ingestionService.SetMetrics(accountingMetrics)
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Middleware order: request id, recovery, request log, security headers, CORS, body limit, then telemetry
	engine.Use(logger.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure(cfg.HTTP.HSTSMaxAge))
	engine.Use(middleware.CORS(cfg.HTTP.AllowOrigins))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.SpanAttributes())
	}
	if providers.Enabled() {
		engine.Use(middleware.HTTPMetrics(meter))
	}

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	if cfg.JWT.Enabled {
		r.Use(middleware.JWTAuth(middleware.JWTAuthConfig{
			Service:  auth.NewJWTService(cfg.JWT),
			Required: cfg.JWT.Required,
			Logger:   log,
		}))
		log.Info("JWT authentication enabled",
			zap.String("issuer", cfg.JWT.Issuer),
			zap.Bool("required", cfg.JWT.Required))
	}

	handlers := router.Handlers{
		Refunds:        handler.NewRefundHandler(refundService),
		Returns:        handler.NewReturnHandler(returnService),
		Reconciliation: handler.NewReconciliationHandler(reconciliationService),
		Orders:         handler.NewOrderHandler(orderService, snapshotService, ingestionService, cfg.Accounting.Epsilon,
			csvimport.WithParserOptions(csvimport.WithMaxBytes(cfg.HTTP.MaxBodySize))),
		Reports:        handler.NewReportHandler(reportService),
		System:         handler.NewSystemHandler(cfg.App.Name, version, db),
	}
	router.RegisterAPI(r, handlers)
	r.Setup()

	for _, g := range router.APIGroups(handlers) {
		log.Debug("Routes registered", zap.String("group", g.Name()), zap.Strings("routes", g.Routes()))
	}

	// Create HTTP server with timeouts
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

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
