package router

import (
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/anonto42/lost-found/backend/internal/chat"
	"github.com/anonto42/lost-found/backend/internal/claims"
	"github.com/anonto42/lost-found/backend/internal/handlers"
	"github.com/anonto42/lost-found/backend/internal/handoff"
	"github.com/anonto42/lost-found/backend/internal/middleware"
	"github.com/anonto42/lost-found/backend/internal/notify"
	"github.com/anonto42/lost-found/backend/internal/ratelimit"
	"github.com/anonto42/lost-found/backend/internal/repositories"
	"github.com/anonto42/lost-found/backend/pkg/config"
)

// Dependencies are the stores and outside services the routes are built on.
// Redis, FirebaseAuth and Uploader are optional.
type Dependencies struct {
	Config       *config.Config
	SQL          *gorm.DB
	Posts        repositories.PostRepository
	Redis        *redis.Client
	FirebaseAuth handlers.IDTokenVerifier
	Mailer       notify.Mailer
	Uploader     handlers.ProofUploader
	Log          *slog.Logger

	// CodeGen overrides handoff code generation.
	CodeGen func() (string, error)
}

// SetupRoutes migrates the relational schema, builds the services and
// registers every route on e.
func SetupRoutes(e *echo.Echo, d Dependencies) error {
	cfg, log := d.Config, d.Log
	if log == nil {
		log = slog.Default()
	}

	if err := repositories.Migrate(d.SQL); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	log.Info("relational schema migrated")

	e.HTTPErrorHandler = handlers.HTTPErrorHandler

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// --- Initialize Repositories ---
	userRepo := repositories.NewPostgresUserRepository(d.SQL)
	claimRepo := repositories.NewPostgresClaimRepository(d.SQL)
	threadRepo := repositories.NewPostgresThreadRepository(d.SQL)
	messageRepo := repositories.NewPostgresMessageRepository(d.SQL)
	notificationRepo := repositories.NewPostgresNotificationRepository(d.SQL)

	// --- Services ---
	limiter := newLimiter(cfg, d.Redis, log)
	claimService := claims.NewService(claims.Deps{
		Claims:        claimRepo,
		Threads:       threadRepo,
		Posts:         d.Posts,
		Users:         userRepo,
		Limiter:       limiter,
		Notifier:      notify.NewNotifier(notificationRepo, log),
		Hasher:        handoff.NewHasher(cfg.HandoffBcryptCost),
		Log:           log,
		ClaimTTL:      cfg.ClaimTTL,
		ThreadIdleTTL: cfg.ThreadIdleTTL,
		CodeGen:       d.CodeGen,
	})
	chatService := chat.NewService(threadRepo, messageRepo, chat.NewHub(), cfg.ThreadIdleTTL, log)
	sweeper := claims.NewSweeper(claimRepo, threadRepo, log)
	sweeper.PruneLimiter(limiter, cfg.ClaimRateWindow)

	mailer := d.Mailer
	if mailer == nil {
		mailer = notify.LogMailer{Log: log}
	}

	// --- Unprotected routes for authentication ---
	authGroup := e.Group("/api/v1/auth")
	authHandler := handlers.NewAuthHandler(userRepo, d.FirebaseAuth, mailer, cfg.JWTSecret, log)
	authHandler.RegisterAuthRoutes(authGroup)

	// --- Protected routes (require JWT authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))

	authHandler.RegisterEmailRoutes(api)
	handlers.NewPostHandler(d.Posts).RegisterPostRoutes(api)
	handlers.NewClaimHandler(claimService, d.Uploader).RegisterClaimRoutes(api)
	handlers.NewChatHandler(chatService, cfg.CORSOrigin, log).RegisterChatRoutes(api)
	handlers.NewNotificationHandler(notificationRepo).RegisterNotificationRoutes(api)

	// --- Operator routes ---
	internal := e.Group("/internal")
	internal.Use(middleware.AdminTokenMiddleware(cfg.AdminToken))
	handlers.NewSweepHandler(sweeper).RegisterSweepRoutes(internal)

	log.Info("all routes configured")
	return nil
}

// NewSweeper builds a sweeper over the relational store for the CLI.
func NewSweeper(db *gorm.DB, log *slog.Logger) *claims.Sweeper {
	return claims.NewSweeper(
		repositories.NewPostgresClaimRepository(db),
		repositories.NewPostgresThreadRepository(db),
		log,
	)
}

// newLimiter prefers Redis so limits hold across replicas, falling back to
// process memory.
func newLimiter(cfg *config.Config, rdb *redis.Client, log *slog.Logger) ratelimit.Limiter {
	if rdb != nil {
		return ratelimit.FailOpen(ratelimit.NewRedis(rdb, "lostfound", cfg.ClaimRateLimit, cfg.ClaimRateWindow), log)
	}
	return ratelimit.NewMemory(cfg.ClaimRateLimit, cfg.ClaimRateWindow)
}
