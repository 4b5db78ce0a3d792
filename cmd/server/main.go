package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/anonto42/lost-found/backend/internal/metrics"
	"github.com/anonto42/lost-found/backend/internal/notify"
	"github.com/anonto42/lost-found/backend/internal/repositories"
	"github.com/anonto42/lost-found/backend/internal/router"
	"github.com/anonto42/lost-found/backend/internal/uploads"
	"github.com/anonto42/lost-found/backend/pkg/config"
	"github.com/anonto42/lost-found/backend/pkg/firebase"
	"github.com/anonto42/lost-found/backend/validators"
)

const (
	Version = "0.1.0"
	appName = "lost-found"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Lost & Found claims backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(logLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(), sweepCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})
	return cmd
}

func setupLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Load())
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize database connections
	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	posts := repositories.NewMongoPostRepository(db.Mongo.Database(cfg.MongoDatabase))
	if err := posts.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure post indexes: %w", err)
	}

	deps := router.Dependencies{
		Config: cfg,
		SQL:    db.SQL,
		Posts:  posts,
		Redis:  db.Redis,
		Log:    logger,
	}

	firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		return err
	}
	if firebaseApp != nil {
		deps.FirebaseAuth = firebaseApp.AuthClient
	}

	if cfg.SMTPHost != "" {
		deps.Mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	if cfg.S3Bucket != "" {
		uploader, err := uploads.NewS3Service(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.PresignTTL)
		if err != nil {
			return err
		}
		deps.Uploader = uploader
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e, cfg, logger)
	if err := router.SetupRoutes(e, deps); err != nil {
		return err
	}

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "port", cfg.Port, "env", cfg.Env)
		errCh <- e.Start(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
	return e.Shutdown(shutdownCtx)
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale pending claims and close idle threads once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, err := config.OpenSQL(cfg.DatabaseURL, true)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := repositories.Migrate(db); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}

			res, err := router.NewSweeper(db, slog.Default()).Run(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
		},
	}
}
