// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/amirphl/adbridge/app/dto"
	"github.com/amirphl/adbridge/app/handlers"
	"github.com/amirphl/adbridge/app/middleware"
	"github.com/amirphl/adbridge/config"
	"github.com/amirphl/adbridge/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Auth           handlers.AuthHandlerInterface
	Campaign       handlers.CampaignHandlerInterface
	AdPlatform     handlers.AdPlatformHandlerInterface
	Delivery       handlers.DeliveryHandlerInterface
	DeliveryReport handlers.DeliveryReportAdminHandlerInterface
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app          *fiber.App
	cfg          *config.ProductionConfig
	handlers     Handlers
	auth         *middleware.AuthMiddleware
	healthChecks map[string]HealthCheck
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(cfg *config.ProductionConfig, h Handlers, auth *middleware.AuthMiddleware, healthChecks map[string]HealthCheck) Router {
	bodyLimit := cfg.Server.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 4 * 1024 * 1024
	}

	app := fiber.New(fiber.Config{
		AppName:      "adbridge API",
		ServerHeader: "adbridge",
		ErrorHandler: errorHandler,
		BodyLimit:    bodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:          app,
		cfg:          cfg,
		handlers:     h,
		auth:         auth,
		healthChecks: healthChecks,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		path := r.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.app.Get(path, middleware.MetricsHandler())
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	api.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.GlobalRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath
		},
	}))

	// Token rotation; the bearer is checked by the handler since both subject kinds use it
	auth := api.Group("/auth")
	auth.Post("/refresh", r.handlers.Auth.Refresh)
	auth.Post("/logout", r.handlers.Auth.Logout)

	// Customer campaign routes
	campaigns := api.Group("/campaigns", r.auth.Authenticate())
	campaigns.Post("/", r.handlers.Campaign.CreateCampaign)
	campaigns.Get("/:uuid", r.handlers.Campaign.GetCampaign)
	campaigns.Put("/:uuid", r.handlers.Campaign.UpdateCampaign)
	campaigns.Delete("/:uuid", r.handlers.Campaign.DeleteCampaign)

	adPlatform := campaigns.Group("/:uuid/ad-platform")
	adPlatform.Post("/connect", r.handlers.AdPlatform.Connect)
	adPlatform.Get("/connection", r.handlers.AdPlatform.Status)
	adPlatform.Delete("/connection", r.handlers.AdPlatform.Disconnect)
	adPlatform.Get("/businesses", r.handlers.AdPlatform.ListBusinesses)
	adPlatform.Get("/pages", r.handlers.AdPlatform.ListPages)
	adPlatform.Get("/ad-accounts", r.handlers.AdPlatform.ListAdAccounts)
	adPlatform.Get("/instagram-accounts", r.handlers.AdPlatform.ListInstagramAccounts)
	adPlatform.Put("/selection", r.handlers.AdPlatform.UpdateSelection)
	adPlatform.Get("/compatibility", r.handlers.AdPlatform.Compatibility)
	adPlatform.Get("/admin-access", r.handlers.AdPlatform.AdminAccess)
	adPlatform.Get("/payment-eligibility", r.handlers.AdPlatform.PaymentEligibility)
	adPlatform.Post("/payment-connected", r.handlers.AdPlatform.ConfirmPaymentConnected)

	adPlatform.Post("/delivery", r.handlers.Delivery.Orchestrate)
	adPlatform.Get("/delivery", r.handlers.Delivery.GetState)
	adPlatform.Delete("/delivery", r.handlers.Delivery.Reset)
	adPlatform.Post("/publish", r.handlers.Delivery.Publish)

	// Admin routes
	admin := api.Group("/admin", r.auth.AdminAuthenticate())
	admin.Get("/ad-platform/deliveries", r.handlers.DeliveryReport.ListDeliveries)
	admin.Get("/ad-platform/delivery-report", r.handlers.DeliveryReport.DownloadDeliveryReport)

	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				requestid.FromContext(c),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics())
	}

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000,
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginResourcePolicy: "cross-origin",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	if len(r.cfg.Security.AllowedOrigins) > 0 {
		r.app.Use(cors.New(cors.Config{
			AllowOrigins: r.cfg.Security.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders: []string{
				"Origin",
				"Content-Type",
				"Accept",
				"Authorization",
				"X-Requested-With",
				"X-Request-ID",
			},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           utils.CORSMaxAge,
		}))
	}

	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","pid":"${pid}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// healthCheck pings every registered dependency
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(r.healthChecks))
	for name := range r.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := fiber.Map{}
	healthy := true
	for _, name := range names {
		if err := r.healthChecks[name](ctx); err != nil {
			healthy = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	data := fiber.Map{
		"status":    "ok",
		"timestamp": utils.UTCNow().Unix(),
		"version":   r.cfg.Deployment.Version,
		"service":   "adbridge-api",
		"checks":    checks,
	}
	if !healthy {
		data["status"] = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.APIResponse{
			Success: false,
			Message: "Service is degraded",
			Data:    data,
		})
	}

	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data:    data,
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	log.Printf("Error %d: %v", code, err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
