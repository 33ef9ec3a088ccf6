package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tigerphoto/photobooth-backend/internal/handlers"
)

type RouterConfig struct {
	ServiceName     string
	AllowedOrigins  []string
	SessionHandler  *handlers.SessionHandler
	ImageHandler    *handlers.ImageHandler
	AIHandler       *handlers.AIHandler
	StreamHandler   *handlers.StreamHandler
	RedirectHandler *handlers.RedirectHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))

	// Cors
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	// Short redirect printed into every QR code.
	router.GET("/s/:slug", cfg.RedirectHandler.Resolve)

	api := router.Group("/api")
	{
		// Session lifecycle
		api.POST("/session/create", cfg.SessionHandler.Create)
		api.GET("/session/:uuid", cfg.SessionHandler.Get)
		api.GET("/session/:uuid/events", cfg.StreamHandler.Events)
		api.POST("/session/decorate", cfg.SessionHandler.Decorate)
		api.GET("/sessions", cfg.SessionHandler.List)
		api.GET("/styles", cfg.SessionHandler.ListStyles)

		// Images
		api.POST("/image/upload", cfg.ImageHandler.Upload)
		api.POST("/image/finalize", cfg.ImageHandler.Finalize)

		// AI pipeline
		api.POST("/ai/transform", cfg.AIHandler.Transform)
		api.POST("/ai/retry", cfg.AIHandler.Retry)
		api.POST("/ai/webhook", cfg.AIHandler.Webhook)

		// QR issuance status
		api.GET("/qr/:slug", cfg.RedirectHandler.QRStatus)
	}

	return router
}
