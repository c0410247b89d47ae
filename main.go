// Package main provides the main entry point for the adbridge ad publishing service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amirphl/adbridge/app/handlers"
	"github.com/amirphl/adbridge/app/middleware"
	"github.com/amirphl/adbridge/app/router"
	"github.com/amirphl/adbridge/app/services"
	businessflow "github.com/amirphl/adbridge/business_flow"
	"github.com/amirphl/adbridge/config"
	"github.com/amirphl/adbridge/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	closeLog := initializeLogging(cfg.Logging)
	defer closeLog()

	log.Printf("Starting adbridge %s (%s)...", cfg.Deployment.Version, cfg.Deployment.Environment)

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	// Stop background workers and close connections after in-flight requests drain
	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}

	log.Println("Server stopped")
}

// initializeLogging routes the standard logger to stdout, a rotating file, or both.
// The returned function closes the file writer.
func initializeLogging(cfg config.LoggingConfig) func() {
	log.SetFlags(log.LstdFlags | log.LUTC | log.Lmicroseconds)

	if cfg.Output != "file" && cfg.Output != "both" {
		log.SetOutput(os.Stdout)
		return func() {}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		log.Printf("Failed to create log directory, logging to stdout: %v", err)
		return func() {}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  false,
	}

	var out io.Writer = rotator
	if cfg.Output == "both" {
		out = io.MultiWriter(os.Stdout, rotator)
	}
	log.SetOutput(out)

	return func() {
		_ = rotator.Close()
	}
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logLevel string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	level := gormlogger.Warn
	if logLevel == "debug" {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(log.Default(), gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity.
// A nil client means campaign locks stay in-process.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis so connectivity loss shows up in the logs.
// The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if cfg.Database.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			return nil, err
		}
		log.Println("Database schema migrated")
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	healthChecks := map[string]router.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	if rc != nil {
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.HealthCheckInterval))
		healthChecks["redis"] = func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}
	}

	// Repositories
	campaignRepo := repository.NewCampaignRepository(db)
	connRepo := repository.NewAdPlatformConnectionRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Services
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	cipher, err := services.NewTokenCipher(cfg.AdPlatform.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token cipher: %w", err)
	}

	graph := services.NewGraphClient(cfg.AdPlatform)
	if !cfg.AdPlatform.HasCredentials() {
		log.Println("Ad platform app credentials are not configured; connect requests will be rejected")
	}

	locker := businessflow.NewCampaignLocker(rc, cfg.Cache.RedisPrefix, cfg.AdPlatform.LockTTL, cfg.AdPlatform.LockWait)

	compatibility := businessflow.NewCompatibilityValidator(graph)
	adminAccess := businessflow.NewAdminAccessVerifier(graph)
	payment := businessflow.NewPaymentEligibilityChecker(graph)

	// Flows
	campaignFlow := businessflow.NewCampaignFlow(campaignRepo, connRepo, auditRepo, locker, db)
	tokenFlow := businessflow.NewAdPlatformTokenFlow(campaignRepo, connRepo, auditRepo, graph, cipher, locker, cfg.AdPlatform, db)
	selectionFlow := businessflow.NewAdPlatformSelectionFlow(campaignRepo, connRepo, auditRepo, graph, cipher, locker)
	checkFlow := businessflow.NewAdPlatformCheckFlow(campaignRepo, connRepo, auditRepo, cipher, compatibility, adminAccess, payment, locker)
	deliveryFlow := businessflow.NewDeliveryFlow(campaignRepo, connRepo, auditRepo, graph, cipher, compatibility, locker, cfg.AdPlatform)
	reportFlow := businessflow.NewDeliveryReportFlow(campaignRepo, connRepo)

	// Handlers
	requestTimeout := cfg.Server.RequestTimeout
	routeHandlers := router.Handlers{
		Auth:           handlers.NewAuthHandler(tokenService, requestTimeout),
		Campaign:       handlers.NewCampaignHandler(campaignFlow, requestTimeout),
		AdPlatform:     handlers.NewAdPlatformHandler(tokenFlow, selectionFlow, checkFlow, requestTimeout),
		Delivery:       handlers.NewDeliveryHandler(deliveryFlow, cfg.DeliveryTimeout()),
		DeliveryReport: handlers.NewDeliveryReportAdminHandler(reportFlow, requestTimeout),
	}

	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	appRouter := router.NewFiberRouter(cfg, routeHandlers, authMiddleware, healthChecks)

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
