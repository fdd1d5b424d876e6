package main

import (
	"context"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/roomscape/roomscape-api/internal/api"
	"github.com/roomscape/roomscape-api/internal/audioanalysis"
	"github.com/roomscape/roomscape-api/internal/config"
	"github.com/roomscape/roomscape-api/internal/freesound"
	"github.com/roomscape/roomscape-api/internal/llm"
	"github.com/roomscape/roomscape-api/internal/metrics"
	"github.com/roomscape/roomscape-api/internal/observability"
	"github.com/roomscape/roomscape-api/internal/pipeline"
	"github.com/roomscape/roomscape-api/internal/prompt"
	"github.com/roomscape/roomscape-api/internal/store"
	"github.com/roomscape/roomscape-api/internal/unity"
)

const (
	sentryFlushTimeout    = 2 * time.Second
	environmentProduction = "production"
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

// GetVersion returns the current release version
func GetVersion() string {
	return releaseVersion
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Initialize Sentry
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "roomscape-api@" + releaseVersion,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			Debug:            cfg.Environment != environmentProduction,
			BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
				// Filter out sensitive data
				if event.Request != nil {
					event.Request.Headers = filterSensitiveHeaders(event.Request.Headers)
				}
				return event
			},
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("⚠️  Sentry not configured (SENTRY_DSN not set)")
	}

	ctx := context.Background()

	// Initialize Langfuse LLM tracing
	observability.InitializeLangfuse(ctx, cfg)

	// CloudWatch metrics (no-op outside production)
	cw, err := metrics.NewClient(ctx, cfg.Environment)
	if err != nil {
		log.Printf("⚠️  CloudWatch metrics unavailable: %v", err)
	}

	// Run-history database
	history, err := store.Open(cfg.DatabasePath)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to open run-history database:", err)
	}

	// Freesound client with a persistent token cache
	fsClient := freesound.NewClient(freesound.Config{
		ClientID:     cfg.FreesoundClientID,
		ClientSecret: cfg.FreesoundClientSecret,
		Store:        freesound.NewFileStore(cfg.CredentialsPath),
	})

	// Pipeline wiring
	analyzer := audioanalysis.NewAnalyzer(audioanalysis.NewFFmpegProber())
	processor := unity.NewProcessor(fsClient, analyzer, cfg.StreamingAssetsDir(), cfg.SoundsDir())
	providers := llm.NewProviderFactory(cfg.OpenRouterAPIKey, cfg.GeminiAPIKey, cfg.SiteURL, cfg.SiteName)
	prompts := prompt.NewPromptLoader(cfg.PromptsDir)
	orchestrator := pipeline.NewOrchestrator(cfg, providers, prompts, prompt.NewPromptBuilder(), processor, history)

	// Set Gin mode
	if cfg.Environment == environmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := api.SetupRouter(cfg, orchestrator, fsClient, processor, history, cw, GetVersion())

	// Start server
	log.Printf("🚀 Starting server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to start server:", err)
	}
}

func filterSensitiveHeaders(headers map[string]string) map[string]string {
	filtered := make(map[string]string)
	sensitiveKeys := map[string]bool{
		"authorization": true,
		"cookie":        true,
		"x-api-key":     true,
	}

	for k, v := range headers {
		if sensitiveKeys[k] {
			filtered[k] = "[REDACTED]"
		} else {
			filtered[k] = v
		}
	}
	return filtered
}
