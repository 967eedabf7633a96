// Package server contains the HTTP gateway of the inbox: routing, request
// parsing and the mapping of application errors onto responses.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "ridehail/docs" // swagger docs
	"ridehail/internal/cache"
	"ridehail/internal/config"
	"ridehail/internal/database"
	"ridehail/internal/featureflags"
	"ridehail/internal/middleware"
	"ridehail/internal/models"
	"ridehail/internal/repository"
	"ridehail/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const serviceName = "ridehail-inbox"

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// initMetrics registers the HTTP collectors once per process; the default
// Prometheus registry rejects duplicates.
func initMetrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New(serviceName)
	})
	return prom
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	featureFlags   *featureflags.Manager
	inbox          InboxAPI
}

// NewServer connects to Postgres and Redis and wires the inbox. A Redis
// outage at startup is tolerated: rate limiting fails open and the unread
// cache is bypassed.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		middleware.Logger.Warn("redis unavailable, continuing without it", slog.String("error", err.Error()))
		redisClient = nil
	}

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis itself.
// redisClient may be nil.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}

	flags := featureflags.NewManager(cfg.FeatureFlags)
	participants := repository.NewParticipantRepository(db)
	inbox := service.NewInboxService(
		repository.NewTransactor(db),
		repository.NewConversationRepository(db, participants),
		participants,
		repository.NewMessageRepository(db),
		redisClient,
		flags,
		service.Options{UnreadCacheTTL: time.Duration(cfg.UnreadCacheTTLSeconds) * time.Second},
	)

	return &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: initMetrics(),
		featureFlags:   flags,
		inbox:          inbox,
	}, nil
}

// App builds the Fiber application on first use.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:      "Ride-hailing Inbox API",
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// errorHandler renders errors that escape handlers (panics caught by
// recover, unknown routes, framework failures) in the standard shape.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Message: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled request error",
		slog.String("path", c.Path()),
		slog.String("error", err.Error()),
	)
	return models.RespondWithError(c, models.StatusFor(err), err)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses
	// still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	if !s.config.IsProduction() {
		app.Get("/monitor", monitor.New(monitor.Config{Title: "Ride-hailing Inbox Metrics"}))
	}
	app.Get("/swagger/*", swagger.HandlerDefault)

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Message: "Too many requests, please try again later.",
				Error:   models.CodeRateLimited,
			})
		},
	}), middleware.AuthRequired(middleware.AuthConfig{
		Secret:   s.config.JWTSecret,
		Issuer:   s.config.JWTIssuer,
		Audience: s.config.JWTAudience,
	}, s.redis))

	api.Get("/search", s.SearchConversations)
	api.Get("/unread-count", s.GetUnreadCount)
	api.Get("/statistics", s.GetStatistics)
	api.Get("/memberships", s.GetMemberships)
	api.Get("/feature-flags", s.GetFeatureFlags)

	conversations := api.Group("/conversations")
	conversations.Get("/", s.GetConversations)
	conversations.Post("/", s.CreateConversation)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	conversations.Get("/:id/messages/search", s.SearchConversationMessages)
	conversations.Get("/:id/messages/statistics", s.GetMessageStatistics)
	conversations.Get("/:id/messages", s.GetMessages)
	conversations.Post("/:id/messages", s.sendRateLimit(), s.SendMessage)
	conversations.Get("/:id/participants/statistics", s.GetParticipantStatistics)
	conversations.Get("/:id/participants", s.GetParticipants)
	conversations.Post("/:id/participants", s.AddParticipants)
	conversations.Put("/:id/participants/:userId/role", s.UpdateParticipantRole)
	conversations.Delete("/:id/participants/:userId", s.RemoveParticipant)
	conversations.Put("/:id/archive", s.ArchiveConversation)
	conversations.Put("/:id/unarchive", s.UnarchiveConversation)
	conversations.Put("/:id/mute", s.MuteConversation)
	conversations.Put("/:id/unmute", s.UnmuteConversation)
	conversations.Put("/:id/read", s.MarkConversationRead)
	// Generic /:id routes must be last
	conversations.Get("/:id", s.GetConversation)
	conversations.Put("/:id", s.UpdateConversation)
	conversations.Delete("/:id", s.DeleteConversation)

	messages := api.Group("/messages")
	messages.Put("/:id/read", s.MarkMessageRead)
	messages.Get("/:id/status", s.GetMessageStatus)
	messages.Put("/:id/status", s.UpdateMessageStatus)
	messages.Get("/:id", s.GetMessage)
	messages.Put("/:id", s.UpdateMessage)
	messages.Delete("/:id", s.DeleteMessage)
}

// sendRateLimit limits sends per user. When Redis is down it fails open
// unless INBOX_SEND_RATE_FAIL_CLOSED is set.
func (s *Server) sendRateLimit() fiber.Handler {
	limit := s.config.SendRateLimit
	if limit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	window := time.Duration(s.config.SendRateWindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	policy := middleware.FailOpen
	if s.config.SendRateFailClosed {
		policy = middleware.FailClosed
	}
	return middleware.RateLimitWithPolicy(s.redis, limit, window, policy, "send_message")
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if s.db == nil {
		dbStatus = "unavailable"
	} else if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now().UTC(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	app := s.App()
	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			middleware.Logger.Error("error closing database", slog.String("error", err.Error()))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
