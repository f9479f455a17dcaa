package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/psd401/aistudio-document-service/internal/awsutil"
	"github.com/psd401/aistudio-document-service/internal/config"
	"github.com/psd401/aistudio-document-service/internal/handlers"
	"github.com/psd401/aistudio-document-service/internal/middleware"
	"github.com/psd401/aistudio-document-service/internal/notify"
	"github.com/psd401/aistudio-document-service/internal/queue"
	"github.com/psd401/aistudio-document-service/internal/repositories"
	"github.com/psd401/aistudio-document-service/internal/services"
	"github.com/psd401/aistudio-document-service/pkg/memorydb"
	"github.com/psd401/aistudio-document-service/pkg/postgres"
	"github.com/psd401/aistudio-document-service/pkg/s3io"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/psd401/aistudio-document-service/internal/auth"
)

func main() {
	// Load .env file
	envPaths := []string{
		"../../.env", // From cmd/api/ to the repo root
		".env",       // Current directory
	}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			log.Printf("Loaded .env from: %s", path)
			break
		}
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	jobRepo := repositories.NewJobRepository(db)
	if err := jobRepo.CreateSchema(ctx); err != nil {
		logger.Fatal("failed to create schema", zap.Error(err))
	}

	// Redis is optional; without it job lookups just skip the cache.
	var cache services.StatusCache
	if cfg.Redis.URL != "" {
		redisClient, err := memorydb.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Warn("redis unavailable, job status cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cache = redisClient
		}
	} else {
		logger.Info("REDIS_URL not set, job status cache disabled")
	}

	// AWS clients
	awsCfg, endpoint, err := awsutil.Load(ctx, cfg.AWS.Region, cfg.AWS.EndpointURL)
	if err != nil {
		logger.Fatal("failed to load AWS config", zap.Error(err))
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = true
		}
	})
	signer := s3io.NewSigner(s3.NewPresignClient(s3Client))
	publisher := queue.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS.QueueURL)

	hub := notify.NewHub()

	uploadService := services.NewUploadService(cfg, jobRepo, publisher, signer, cache, hub, logger)
	svcs := services.NewServices(uploadService)

	tokenService := auth.NewTokenService(cfg)
	authMW := middleware.NewAuthMiddleware(tokenService)

	documentHandler := handlers.NewDocumentHandler(svcs)
	eventsHandler := handlers.NewEventsHandler(hub, logger)

	router := setupRouter(cfg, logger, documentHandler, eventsHandler, authMW)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("host", cfg.Server.Host),
			zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.App.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func setupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	documentHandler *handlers.DocumentHandler,
	eventsHandler *handlers.EventsHandler,
	authMW *middleware.AuthMiddleware,
) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.ErrorMiddleware(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "aistudio-document-service",
		})
	})

	v1 := router.Group("/api/v1")
	{
		documents := v1.Group("/documents")
		documents.Use(authMW.RequireAuth())
		{
			documents.POST("/upload-url", documentHandler.CreateUploadURL())
			documents.POST("/confirm-upload", documentHandler.ConfirmUpload())
			documents.GET("/jobs", documentHandler.ListJobs())
			documents.GET("/jobs/:job_id", documentHandler.GetJobStatus())
			documents.POST("/jobs/:job_id/requeue", documentHandler.RequeueJob())
		}

		// WebSocket route accepts tokens from query params or cookies
		// (browsers can't set Authorization headers on socket upgrades).
		events := v1.Group("/documents/jobs-events")
		events.Use(authMW.RequireAuthForSocket())
		{
			events.GET("", eventsHandler.JobEvents())
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(authMW.RequireAuth())
		admin.Use(authMW.RequireAdmin())
		{
			admin.GET("/jobs", documentHandler.ListAllJobs())
		}
	}

	return router
}
