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
	"github.com/redis/go-redis/v9"

	"github.com/lofitape/api/internal/cleanup"
	"github.com/lofitape/api/internal/client"
	"github.com/lofitape/api/internal/config"
	"github.com/lofitape/api/internal/handler"
	"github.com/lofitape/api/internal/media"
	"github.com/lofitape/api/internal/middleware"
	"github.com/lofitape/api/internal/pipeline"
	"github.com/lofitape/api/internal/queue"
	"github.com/lofitape/api/internal/service"
	"github.com/lofitape/api/internal/source"
	"github.com/lofitape/api/internal/store"
	"github.com/lofitape/api/internal/worker"
	ws "github.com/lofitape/api/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Job store and scheduler: Redis-backed when configured, in-process
	// otherwise. Both sides must use the same backend or admitted jobs
	// would never be picked up.
	var (
		jobStore    store.JobStore
		scheduler   queue.Scheduler
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Redis configured but unreachable: %v", err)
		}
		jobStore = store.NewRedisStore(redisClient, cfg.Cleanup.Retention)
		scheduler = queue.NewAsynqScheduler(cfg.Redis, cfg.Worker)
		log.Printf("Using Redis at %s", cfg.Redis.Addr)
	} else {
		memStore := store.NewMemoryStore(cfg.Cleanup.Retention)
		defer memStore.Close()
		jobStore = memStore
		scheduler = queue.NewMemoryScheduler(cfg.Worker)
		log.Println("Redis not configured, using in-process store and queue")
	}

	// Artifact storage: R2 when credentials are present, local disk
	// otherwise.
	var (
		storage client.StorageClient
		purger  cleanup.ArtifactPurger
	)
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Fatalf("Failed to initialize R2 client: %v", err)
		}
		storage = r2Client
		log.Println("Storing artifacts in R2")
	} else {
		localClient, err := client.NewLocalClient(cfg.Paths.OutputDir)
		if err != nil {
			log.Fatalf("Failed to initialize local storage: %v", err)
		}
		storage = localClient
		purger = localClient
		log.Printf("Storing artifacts under %s", cfg.Paths.OutputDir)
	}

	// Processing side.
	runner := media.NewFFmpeg(cfg.Pipeline.FFmpegPath, cfg.Pipeline.SampleRate, cfg.Pipeline.Channels, cfg.Pipeline.Bitrate)
	acquirer := source.New(cfg.Source)
	pipe := pipeline.New(cfg.Pipeline, runner, acquirer, storage, cfg.Paths.WorkDir)

	hub := ws.NewHub()
	go hub.Run()

	convertWorker := worker.NewConvertWorker(jobStore, pipe, hub, cfg.Worker)
	go func() {
		if err := scheduler.Start(convertWorker.HandleAttempt); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	janitor := cleanup.NewJanitor(cfg.Cleanup, cfg.Paths, purger)
	if err := janitor.Start(); err != nil {
		log.Fatalf("Failed to start cleanup janitor: %v", err)
	}

	// HTTP side.
	jobService := service.NewJobService(jobStore, scheduler, cfg.Paths.UploadDir)
	validate := validator.New()
	jobHandler := handler.NewJobHandler(jobService, validate)
	downloadHandler := handler.NewDownloadHandler(jobService, storage)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    service.MaxUploadBytes,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams}\n"
	}
	app.Use(logger.New(logger.Config{Format: logFormat}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis": cfg.Redis.Enabled(),
				"r2":    purger == nil,
				"auth":  cfg.Gateway.Enabled || cfg.JWT.Secret != "",
			},
		})
	})

	var authHandler fiber.Handler
	if cfg.Gateway.Enabled {
		authHandler = middleware.GatewayAuthMiddleware()
	} else {
		authHandler = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Uploads carry their own, tighter budget on top of the general
	// submission limit.
	uploadLimit := rateLimiter.UploadLimit(cfg.RateLimit.UploadsPerHour)
	limitUploads := func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
			return uploadLimit(c)
		}
		return c.Next()
	}

	api := app.Group("/api", authHandler)
	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.JobsLimit(cfg.RateLimit.JobsPerHour), limitUploads, jobHandler.Create)
	jobs.Get("/:jobId", jobHandler.Status)
	api.Get("/download/:jobId/:format", downloadHandler.Download)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	// Graceful shutdown: stop intake first, then let in-flight attempts
	// finish before the process exits.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		janitor.Stop()
		scheduler.Shutdown()
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
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
