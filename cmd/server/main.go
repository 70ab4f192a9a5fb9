package main

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/physiopost/configs"
	"github.com/maheshrc27/physiopost/internal/api/handlers"
	"github.com/maheshrc27/physiopost/internal/api/middleware"
	"github.com/maheshrc27/physiopost/internal/approval"
	job "github.com/maheshrc27/physiopost/internal/jobs"
	"github.com/maheshrc27/physiopost/internal/queue"
	"github.com/maheshrc27/physiopost/internal/repository"
	"github.com/maheshrc27/physiopost/internal/service"
	"github.com/maheshrc27/physiopost/pkg/webhooksig"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	if cfg.LogFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	asynqClient := asynq.NewClient(redisConn)
	defer asynqClient.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer rdb.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("unhandled error", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + middleware.APIKeyHeader,
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	publishAttemptRepo := repository.NewPublishAttemptRepository(db)
	insightRepo := repository.NewInsightRepository(db)
	apiKeyRepository := repository.NewApiKeyRepository(db)

	r2Service, err := service.NewR2Service(*cfg)
	if err != nil {
		log.Fatalf("Failed to configure media storage: %v", err)
	}

	gate := approval.NewGate()
	queueClient := queue.NewClient(asynqClient, cfg.QueueMaxRetry)
	publisher := service.NewInstagramPublisher(*cfg)

	authService := service.NewAuthService(*cfg, userRepo)
	userService := service.NewUserService(userRepo)
	publishService := service.NewPublishService(postRepo, postMediaRepo, socialAccountRepo, publishAttemptRepo, publisher)
	schedulingService := service.NewSchedulingService(postRepo, insightRepo, queueClient, publishService, gate, cfg.Location())
	postService := service.NewPostService(db, postRepo, mediaAssetRepo, postMediaRepo, publishAttemptRepo, r2Service, schedulingService, queueClient, gate, cfg.Location())
	platformService := service.NewPlatformService(*cfg, socialAccountRepo)
	instagramService := service.NewInstagramService(*cfg, socialAccountRepo)
	apiKeyService := service.NewApiKeyService(apiKeyRepository)

	var generator service.ContentGenerator
	if cfg.ContentGeneratorURL != "" {
		generator = service.NewHTTPContentGenerator(cfg.ContentGeneratorURL, cfg.Publish.HTTPTimeout)
	}
	contentGenerator := service.NewFallbackGenerator(generator)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)

	platform := handlers.NewPlatformHandler(platformService, instagramService, *cfg)
	app.Get("/auth/:platform", platform.AddSocialAccount)
	app.Get("/auth/:platform/callback", platform.CallbackHandler)

	verifier := webhooksig.NewVerifier(cfg.Webhook.CurrentSigningKey, cfg.Webhook.NextSigningKey, cfg.Webhook.ClockTolerance)
	webhook := handlers.NewWebhookHandler(verifier, queue.NewLedger(rdb), publishService)
	app.Post("/webhooks/publish", webhook.PublishWebhook)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)
	api.Post("/user/remove", user.RemoveUser)

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	post := handlers.NewPostHandler(postService, schedulingService, contentGenerator)
	api.Post("/posts", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/suggest-time", post.SuggestTime)
	api.Post("/posts/generate", post.GenerateContent)
	api.Get("/posts/:id", post.GetPost)
	api.Delete("/posts/:id", post.RemovePost)
	api.Post("/posts/:id/submit", post.SubmitPost)
	api.Post("/posts/:id/approve", post.ApprovePost)
	api.Post("/posts/:id/reject", post.RejectPost)
	api.Post("/posts/:id/schedule", post.SchedulePost)
	api.Post("/posts/:id/publish", post.PublishPost)

	// social accounts api routes
	api.Get("/accounts", platform.ListSocialAccounts)
	api.Post("/accounts/remove", platform.DeleteSocialAccount)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, instagramService)
	insightSyncJob := job.NewInsightSyncJob(postRepo, socialAccountRepo, insightRepo, publisher)

	c := cron.New()
	if err := c.AddFunc("@every 10m", refreshTokenJob.RefreshTokens); err != nil {
		log.Fatalf("Failed to schedule token refresh: %v", err)
	}
	if err := c.AddFunc("@hourly", insightSyncJob.SyncInsights); err != nil {
		log.Fatalf("Failed to schedule insight sync: %v", err)
	}
	c.Start()

	// queue worker: relays due deliveries to the webhook receiver
	relay := queue.NewRelay(
		webhooksig.NewSigner(cfg.Webhook.CurrentSigningKey),
		cfg.Webhook.URL,
		&http.Client{Timeout: cfg.Publish.HTTPTimeout},
	)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 10,
		Queues:      map[string]int{queue.QueueName: 1},
	})

	go func() {
		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeDeliverPost, relay.HandleDeliverTask)

		slog.Info("starting the asynq server")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("server is running", "port", cfg.Port)

	gracefulShutdown(app, server, c, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server, c *cron.Cron, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	c.Stop()
	server.Shutdown()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	slog.Info("server shutdown complete")
}
