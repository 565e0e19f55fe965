package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	activityapp "github.com/licensehub/backend/internal/application/activity"
	auditapp "github.com/licensehub/backend/internal/application/audit"
	licensingapp "github.com/licensehub/backend/internal/application/licensing"
	usageapp "github.com/licensehub/backend/internal/application/usage"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/usage"
	"github.com/licensehub/backend/internal/infrastructure/auth"
	"github.com/licensehub/backend/internal/infrastructure/cache"
	"github.com/licensehub/backend/internal/infrastructure/config"
	"github.com/licensehub/backend/internal/infrastructure/logger"
	"github.com/licensehub/backend/internal/infrastructure/persistence"
	"github.com/licensehub/backend/internal/infrastructure/scheduler"
	"github.com/licensehub/backend/internal/infrastructure/storage"
	"github.com/licensehub/backend/internal/infrastructure/telemetry"
	"github.com/licensehub/backend/internal/interfaces/http/handler"
	"github.com/licensehub/backend/internal/interfaces/http/middleware"
	"github.com/licensehub/backend/internal/interfaces/http/router"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

//	@title			LicenseHub API
//	@version		1.0
//	@description	Tenant licenses, per-product keys and usage metering

//	@contact.name	API Support
//	@contact.url	https://github.com/licensehub/backend

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

//	@securityDefinitions.apikey	ProductKey
//	@in							header
//	@name						X-Product-Key

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// specPath is where `swag init -o docs` writes the OpenAPI document
const specPath = "docs/swagger.json"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	telCfg := telemetry.ConfigFrom(cfg.Telemetry, version)
	tp, err := telemetry.NewTracerProvider(rootCtx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	mp, err := telemetry.NewMeterProvider(rootCtx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	lp, err := telemetry.NewLoggerProvider(rootCtx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	// Export log records alongside the local output
	log, err = logger.New(logCfg, logger.WithTee(lp.ZapCore(logger.ParseLevel(cfg.Log.Level))))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting LicenseHub",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if cfg.Telemetry.ProfilingEnabled {
		tp.EnableSpanProfiles()
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Database.SlowThreshold),
		logger.WithFullSQL(cfg.Telemetry.DBLogFullSQL))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	dbTelemetry := telemetry.DBConfig{
		TraceEnabled:       cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
		SlowQueryThreshold: cfg.Database.SlowThreshold,
	}
	if cfg.Database.Driver == "sqlite" {
		dbTelemetry.DBSystem = "sqlite"
	}
	if err := telemetry.RegisterDBTracing(db.DB, dbTelemetry, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get sql.DB", zap.Error(err))
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, sqlDB, mp, dbTelemetry, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}

	// Redis backs the daily usage counters and session invalidation. Without
	// it counters are read from the store and invalidation is process local.
	var (
		counter   usage.Counter
		blacklist middleware.InvalidationChecker
		revoker   licensingapp.SessionRevoker
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(rootCtx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
		counter = cache.NewUsageCounter(redisClient)
		redisBlacklist := auth.NewRedisSessionBlacklist(redisClient, cfg.JWT.AccessTokenExpiration)
		blacklist, revoker = redisBlacklist, redisBlacklist
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	} else {
		memBlacklist := auth.NewInMemorySessionBlacklist()
		blacklist, revoker = memBlacklist, memBlacklist
		log.Warn("Redis disabled, session invalidation is local to this instance")
	}

	// Repositories
	licenseRepo := persistence.NewGormLicenseRepository(db.DB)
	productKeyRepo := persistence.NewGormProductKeyRepository(db.DB)
	usageRepo := persistence.NewGormUsageRepository(db.DB)
	auditRepo := persistence.NewGormAuditRepository(db.DB)
	activityReader := persistence.NewGormActivityReader(db.DB)

	entitlementMetrics, err := telemetry.NewEntitlementMetrics(mp)
	if err != nil {
		log.Fatal("Failed to create entitlement metrics", zap.Error(err))
	}

	// Services
	jwtService := auth.NewJWTService(cfg.JWT, cfg.Entitlement.MasterLicenseKey)
	generator := licensing.NewRandomKeyGenerator(cfg.Entitlement.ProductKeyLength)
	recorder := auditapp.NewRecorder(auditRepo, log)
	legacyProduct := licensing.Product(cfg.Entitlement.LegacyProduct)

	serviceOpts := []licensingapp.Option{
		licensingapp.WithMaxAttempts(cfg.Entitlement.KeygenMaxAttempts),
		licensingapp.WithMetrics(entitlementMetrics),
		licensingapp.WithSessionRevoker(revoker),
	}
	entitlements := licensingapp.NewEntitlementService(licenseRepo, productKeyRepo, generator, recorder, log, serviceOpts...)
	licenses := licensingapp.NewLicenseService(licenseRepo, productKeyRepo, generator, jwtService, recorder, log, serviceOpts...)
	migrator := licensingapp.NewMigrationService(licenseRepo, productKeyRepo, recorder, legacyProduct, log)
	scopes := licensingapp.NewScopeResolver(licenseRepo, productKeyRepo, legacyProduct, log)
	activities := activityapp.NewService(activityReader, scopes)

	meterOpts := []usageapp.MeterOption{
		usageapp.WithObserver(entitlementMetrics),
		usageapp.WithWriteTimeout(cfg.Usage.WriteTimeout),
	}
	if counter != nil {
		meterOpts = append(meterOpts, usageapp.WithCounter(counter))
	}
	meter := usageapp.NewMeter(usageRepo, log, meterOpts...)

	adminHandler := handler.NewAdminHandler(licenses, entitlements, entitlements, migrator, recorder)

	// Audit archive
	var (
		archiveScheduler *scheduler.Scheduler
		archiveTrigger   *scheduler.CronTrigger
	)
	if cfg.Archive.Enabled {
		store, err := storage.NewS3ObjectStorage(&cfg.Archive, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create archive storage", zap.Error(err))
		}
		if err := store.EnsureBucket(rootCtx); err != nil {
			log.Fatal("Failed to prepare archive bucket", zap.Error(err), zap.String("bucket", store.Bucket()))
		}
		archiver := auditapp.NewArchiver(auditRepo, store, cfg.Archive.Prefix, log)
		adminHandler.WithArchiver(archiver)

		archiveScheduler, err = scheduler.NewScheduler(scheduler.Config{
			MaxConcurrentJobs: 1,
			JobTimeout:        cfg.Archive.JobTimeout,
			RetryAttempts:     cfg.Archive.RetryAttempts,
			RetryDelay:        cfg.Archive.RetryDelay,
			QueueSize:         16,
		}, scheduler.ExecutorFunc(func(ctx context.Context, job *scheduler.Job) error {
			_, err := archiver.ArchiveDay(ctx, job.Day)
			return err
		}), log)
		if err != nil {
			log.Fatal("Failed to create archive scheduler", zap.Error(err))
		}
		if err := archiveScheduler.Start(rootCtx); err != nil {
			log.Fatal("Failed to start archive scheduler", zap.Error(err))
		}
		archiveTrigger = scheduler.NewCronTrigger(scheduler.CronTriggerConfig{Hour: cfg.Archive.Hour},
			archiveScheduler, "audit-archive", cfg.Archive.RetryAttempts, log)
		if err := archiveTrigger.Start(rootCtx); err != nil {
			log.Fatal("Failed to start archive trigger", zap.Error(err))
		}
		log.Info("Audit archive enabled", zap.String("bucket", store.Bucket()), zap.Int("hour", cfg.Archive.Hour))
	}

	// HTTP
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to register validators", zap.Error(err))
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	skipPaths := []string{"/health"}
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	profilingCfg := middleware.ProfilingConfig{Enabled: cfg.Telemetry.ProfilingEnabled, SkipPaths: skipPaths}

	engine.Use(
		logger.GinRecovery(log),
		middleware.RequestID(),
		logger.GinLogger(log, skipPaths...),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
			SkipPaths:   skipPaths,
		}),
		middleware.SpanEnricher(),
		middleware.HTTPMetrics(mp, log),
		middleware.Profiling(profilingCfg),
		middleware.CORSWithConfig(corsCfg),
		middleware.Secure(cfg.App.Env == "production"),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	healthHandler := handler.NewHealthHandler(db, version)
	engine.GET("/health", healthHandler.Health)

	if cfg.App.Env != "production" {
		engine.StaticFile("/openapi/swagger.json", specPath)
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/openapi/swagger.json")))
	}

	probeLimiter := middleware.NewRateLimiter(600, time.Minute)
	go probeLimiter.Run(rootCtx)

	productGuards := []gin.HandlerFunc{
		middleware.RateLimitByIP(probeLimiter),
		middleware.ProductKeyAuth(entitlements, log),
	}
	if cfg.Usage.EnforceLimits {
		productGuards = append(productGuards, middleware.QuotaGuard(meter, log))
	}
	productGuards = append(productGuards,
		middleware.ProductProfiling(profilingCfg),
		middleware.UsageMetering(middleware.UsageConfig{
			Enabled:   cfg.Usage.Enabled,
			Recorder:  meter,
			SkipPaths: cfg.Usage.SkipPaths,
			Logger:    log,
		}),
	)

	handlers := router.Handlers{
		License:    handler.NewLicenseHandler(licenses),
		ProductKey: handler.NewProductKeyHandler(entitlements),
		Usage:      handler.NewUsageHandler(licenses, meter),
		Activity:   handler.NewActivityHandler(activities),
		Product:    handler.NewProductHandler(),
		Admin:      adminHandler,
	}
	guards := router.Guards{
		Session: []gin.HandlerFunc{middleware.SessionAuth(middleware.SessionConfig{
			Validator: jwtService,
			Blacklist: blacklist,
			Logger:    log,
		})},
		Master:  []gin.HandlerFunc{middleware.RequireMaster()},
		Product: productGuards,
	}

	router.NewRouter(engine).Register(router.API(handlers, guards)...).Setup()

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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if archiveTrigger != nil {
		if err := archiveTrigger.Stop(ctx); err != nil {
			log.Warn("Failed to stop archive trigger", zap.Error(err))
		}
		if err := archiveScheduler.Stop(ctx); err != nil {
			log.Warn("Failed to stop archive scheduler", zap.Error(err))
		}
	}
	if err := dbMetrics.Stop(); err != nil {
		log.Warn("Failed to stop database metrics", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Failed to stop profiler", zap.Error(err))
	}
	if err := tp.Shutdown(ctx); err != nil {
		log.Warn("Failed to shut down tracer provider", zap.Error(err))
	}
	if err := mp.Shutdown(ctx); err != nil {
		log.Warn("Failed to shut down meter provider", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	log.Info("Server exited gracefully")
	if err := lp.Shutdown(ctx); err != nil {
		log.Warn("Failed to shut down logger provider", zap.Error(err))
	}
}
