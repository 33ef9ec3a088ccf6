package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tigerphoto/photobooth-backend/internal/clients/genai"
	"github.com/tigerphoto/photobooth-backend/internal/clients/httpfetch"
	"github.com/tigerphoto/photobooth-backend/internal/clients/redisbus"
	"github.com/tigerphoto/photobooth-backend/internal/db"
	"github.com/tigerphoto/photobooth-backend/internal/events"
	"github.com/tigerphoto/photobooth-backend/internal/handlers"
	"github.com/tigerphoto/photobooth-backend/internal/jobs"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/observability"
	"github.com/tigerphoto/photobooth-backend/internal/repos"
	"github.com/tigerphoto/photobooth-backend/internal/server"
	"github.com/tigerphoto/photobooth-backend/internal/services"
	"github.com/tigerphoto/photobooth-backend/internal/sse"
	"github.com/tigerphoto/photobooth-backend/internal/storage"
	"github.com/tigerphoto/photobooth-backend/internal/styles"
	"github.com/tigerphoto/photobooth-backend/internal/utils"
)

const serviceName = "photobooth-backend"

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Env
	log.Info("Loading environment variables from main...")
	baseURL := utils.GetEnv("PUBLIC_BASE_URL", "http://localhost:8080", log)
	workerCount := utils.GetEnvAsInt("JOB_WORKER_COUNT", 2, log)
	port := utils.GetEnv("PORT", "8080", log)

	// Tracing
	shutdownTracing, err := observability.Setup(ctx, log, serviceName)
	if err != nil {
		log.Warn("Tracing setup failed", "error", err)
	} else {
		defer func() { _ = shutdownTracing(ctx) }()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	styleRepo := repos.NewStyleRepo(thePG, log)
	qrCodeRepo := repos.NewQRCodeRepo(thePG, log)
	sessionRepo := repos.NewSessionRepo(thePG, log)
	imageAssetRepo := repos.NewImageAssetRepo(thePG, log)
	aiJobRepo := repos.NewAIJobRepo(thePG, log)
	jobRunRepo := repos.NewJobRunRepo(thePG, log)

	// SSE hub + event publisher. With Redis configured, publishes travel
	// over pub/sub and the forwarder feeds them back into the local hub so
	// multi-process deployments all see them. Without Redis the publisher
	// short-circuits to the hub.
	log.Info("Setting up SSE hub now...")
	sseHub := sse.NewHub(log)
	var publisher events.Publisher = &events.HubPublisher{Hub: sseHub}
	bus, err := redisbus.New(log)
	if err != nil {
		log.Warn("Redis bus unavailable; events stay in-process", "error", err)
	} else {
		if err := bus.StartForwarder(ctx, sseHub.Broadcast); err != nil {
			log.Warn("Redis forwarder failed to start; events stay in-process", "error", err)
			_ = bus.Close()
		} else {
			publisher = &events.BusPublisher{Log: log, Bus: bus}
			defer bus.Close()
		}
	}

	// Clients
	store, err := storage.NewGCSStorage(ctx, log)
	if err != nil {
		log.Error("Could not init GCS storage", "error", err)
		os.Exit(1)
	}
	fetcher := httpfetch.New()
	modelClient, err := genai.NewClient(log)
	if err != nil {
		log.Error("Could not init GenAI client", "error", err)
		os.Exit(1)
	}
	styleRegistry := styles.NewRegistry(fetcher)

	// Services
	log.Info("Setting up Services from main...")
	workflow := services.NewWorkflow(thePG, log, sessionRepo, styleRepo, qrCodeRepo, imageAssetRepo, aiJobRepo, jobRunRepo, store, styleRegistry, baseURL)
	webhookService := services.NewWebhookService(thePG, log, sessionRepo, aiJobRepo, imageAssetRepo, fetcher, store, publisher)
	qrJobService := services.NewQRJobService(thePG, log, qrCodeRepo, store, baseURL)
	aiTransformService := services.NewAITransformService(thePG, log, sessionRepo, aiJobRepo, imageAssetRepo, store, fetcher, modelClient, styleRegistry, publisher)

	// Job worker
	jobRegistry := jobs.NewRegistry()
	if err := jobRegistry.Register(qrJobService); err != nil {
		log.Error("Could not register qr handler", "error", err)
		os.Exit(1)
	}
	if err := jobRegistry.Register(aiTransformService); err != nil {
		log.Error("Could not register ai handler", "error", err)
		os.Exit(1)
	}
	worker := jobs.NewWorker(log, jobRunRepo, jobRegistry, workerCount)
	worker.Start(ctx)

	// Handlers
	sessionHandler := handlers.NewSessionHandler(log, workflow)
	imageHandler := handlers.NewImageHandler(log, workflow)
	aiHandler := handlers.NewAIHandler(log, workflow, webhookService)
	streamHandler := handlers.NewStreamHandler(log, workflow, sseHub)
	redirectHandler := handlers.NewRedirectHandler(log, workflow)

	var origins []string
	if raw := utils.GetEnv("CORS_ALLOWED_ORIGINS", "", log); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	router := server.NewRouter(server.RouterConfig{
		ServiceName:     serviceName,
		AllowedOrigins:  origins,
		SessionHandler:  sessionHandler,
		ImageHandler:    imageHandler,
		AIHandler:       aiHandler,
		StreamHandler:   streamHandler,
		RedirectHandler: redirectHandler,
	})

	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
