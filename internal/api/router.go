package api

import (
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/roomscape/roomscape-api/internal/api/handlers"
	apimiddleware "github.com/roomscape/roomscape-api/internal/api/middleware"
	"github.com/roomscape/roomscape-api/internal/config"
	"github.com/roomscape/roomscape-api/internal/freesound"
	"github.com/roomscape/roomscape-api/internal/metrics"
	"github.com/roomscape/roomscape-api/internal/pipeline"
	"github.com/roomscape/roomscape-api/internal/store"
	"github.com/roomscape/roomscape-api/internal/unity"
)

func SetupRouter(
	cfg *config.Config,
	orchestrator *pipeline.Orchestrator,
	fsClient *freesound.Client,
	processor *unity.Processor,
	history *store.Store,
	cw *metrics.Client,
	version string,
) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	router.Use(apimiddleware.RequestTracking(cw))

	// CORS middleware
	router.Use(apimiddleware.CORS())

	// Browser sessions and Freesound token resolution
	router.Use(apimiddleware.Sessions(cfg.SessionSecret))
	router.Use(apimiddleware.FreesoundToken())

	statusHandler := handlers.NewStatusHandler(version, history)
	generateHandler := handlers.NewGenerateHandler(orchestrator, cw)
	unityHandler := handlers.NewUnityHandler(
		processor,
		filepath.Join(cfg.ResponsesDir(), pipeline.AudioFilename),
		cw,
	)
	authHandler := handlers.NewAuthHandler(fsClient)
	oauthHandler := handlers.NewOAuthHandler(fsClient)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/status", statusHandler.ServerStatus)
		apiGroup.GET("/runs", statusHandler.RecentRuns)

		generate := apiGroup.Group("/generate")
		{
			generate.GET("/status", generateHandler.GenerationStatus)
			generate.POST("/pipeline", generateHandler.StartPipeline)
			generate.POST("/room", generateHandler.GenerateRoom)
			generate.POST("/audio", generateHandler.GenerateAudio)
		}

		apiGroup.POST("/process/unity", unityHandler.ProcessUnity)

		auth := apiGroup.Group("/auth")
		{
			auth.POST("/token", authHandler.Token)
			auth.GET("/status", authHandler.Status)
			auth.POST("/unity-token", authHandler.UnityToken)
		}
	}

	// Browser-facing Freesound OAuth flow
	freesoundGroup := router.Group("/freesound")
	{
		freesoundGroup.GET("/login", oauthHandler.Login)
		freesoundGroup.GET("/callback", oauthHandler.Callback)
		freesoundGroup.GET("/logout", oauthHandler.Logout)
		freesoundGroup.GET("/status", oauthHandler.SessionStatus)
	}

	return router
}
