package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/trailerforge/api/internal/auth"
	"github.com/trailerforge/api/internal/client"
	"github.com/trailerforge/api/internal/config"
	"github.com/trailerforge/api/internal/handler"
	"github.com/trailerforge/api/internal/middleware"
	"github.com/trailerforge/api/internal/service"
	"github.com/trailerforge/api/internal/store"
	"github.com/trailerforge/api/internal/worker"
	ws "github.com/trailerforge/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Pick the job store: Redis when reachable, in-memory otherwise
	ctx := context.Background()
	var jobStore store.Store
	redisAvailable := redisClient.Ping(ctx).Err() == nil
	if redisAvailable {
		jobStore = store.NewRedisStore(redisClient)
	} else {
		log.Println("Warning: Redis not available, using in-memory store (state is not durable)")
		jobStore = store.NewMemoryStore()
		redisClient = nil
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize R2 client (optional - continues if not configured)
	var storageClient client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storageClient = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, using mock storage URLs")
	}

	// Initialize Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Zitadel.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize services
	jobService := service.NewJobService(jobStore, storageClient)
	claimService := service.NewClaimService(jobStore, cfg.Worker.MaxUserRenders, cfg.Worker.MaxGlobalRenders)
	pipelineService := service.NewPipelineService(jobStore)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, validate)
	pipelineHandler := handler.NewPipelineHandler(claimService, pipelineService, validate, hub)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	workerAuthMiddleware := middleware.WorkerAuthMiddleware(cfg.Worker.SharedSecret)
	if cfg.Worker.SharedSecret == "" {
		log.Println("Warning: worker shared secret not configured, callback surface is unauthenticated")
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Worker-Secret,X-Worker-Id",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":       redisAvailable,
				"r2":          storageClient != nil,
				"auth":        jwksVerifier != nil || cfg.JWT.Secret != "",
				"worker_auth": cfg.Worker.SharedSecret != "",
			},
		})
	})

	// User API routes
	api := app.Group("/api", apiAuthMiddleware)

	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.JobCreateLimit(cfg.RateLimit.JobsPerHour), jobHandler.Create)
	jobs.Post("/upload-url", rateLimiter.JobCreateLimit(cfg.RateLimit.JobsPerHour), jobHandler.UploadURL)
	jobs.Get("/", rateLimiter.ReadLimit(cfg.RateLimit.RequestsPerMin), jobHandler.List)
	jobs.Get("/:jobId", rateLimiter.ReadLimit(cfg.RateLimit.RequestsPerMin), jobHandler.Get)
	jobs.Post("/:jobId/uploaded", jobHandler.MarkUploaded)
	jobs.Put("/:jobId/profile", jobHandler.SelectProfile)
	jobs.Post("/:jobId/regenerate", rateLimiter.JobCreateLimit(cfg.RateLimit.JobsPerHour), jobHandler.Regenerate)

	// Worker callback routes (shared-secret authenticated)
	workerAPI := app.Group("/worker", workerAuthMiddleware)
	workerAPI.Get("/capacity", pipelineHandler.Capacity)
	workerAPI.Get("/jobs/claimable", pipelineHandler.Claimable)
	workerAPI.Get("/jobs/:jobId", pipelineHandler.Details)
	workerAPI.Post("/jobs/:jobId/claim", pipelineHandler.Claim)
	workerAPI.Post("/jobs/:jobId/release", pipelineHandler.Release)
	workerAPI.Post("/jobs/:jobId/status", pipelineHandler.UpdateStatus)
	workerAPI.Post("/jobs/:jobId/plans/:kind", pipelineHandler.UpsertPlan)
	workerAPI.Post("/jobs/:jobId/clips", pipelineHandler.CreateClip)
	workerAPI.Post("/jobs/:jobId/complete", pipelineHandler.Complete)
	workerAPI.Post("/jobs/:jobId/fail", pipelineHandler.Fail)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start the stale-lock sweeper (needs Redis for asynq)
	if redisAvailable {
		go startWorkerServer(cfg, jobStore, pipelineService, hub)
	} else {
		log.Println("Warning: stale-lock sweeper disabled without Redis")
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, jobStore store.Store, pipelineService *service.PipelineService, hub *ws.Hub) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		LogLevel:    asynqLogLevel,
	})

	sweeper := worker.NewSweeper(jobStore, pipelineService, hub, cfg.Worker.StaleLockThreshold, cfg.Worker.MaxAttempts)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeSweepStale, sweeper.ProcessTask)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{LogLevel: asynqLogLevel})
	if _, err := scheduler.Register(
		"@every "+cfg.Worker.SweepInterval.String(),
		asynq.NewTask(worker.TaskTypeSweepStale, nil),
	); err != nil {
		log.Printf("Failed to register sweep schedule: %v", err)
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			log.Printf("Asynq scheduler error: %v", err)
		}
	}()

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
