package config

import "os"

// Config holds the application configuration
// Note: this service is stateless apart from the Unity project directory it
// writes generated scenes into and a local sqlite run-history database.
type Config struct {
	// Environment
	Environment string
	Port        string

	// LLM API keys and models
	OpenRouterAPIKey string // OpenRouter API key for chat completions
	GeminiAPIKey     string // Google Gemini API key (optional alternate provider)
	RoomModel        string // Model used for room generation
	AudioModel       string // Model used for audio scene generation

	// Attribution headers sent to OpenRouter
	SiteURL  string
	SiteName string

	// Freesound OAuth application
	FreesoundClientID     string
	FreesoundClientSecret string

	// Browser session cookies
	SessionSecret string

	// Filesystem layout
	DataDir         string // Unity project root (StreamingAssets lives underneath)
	PromptsDir      string // Prompt template overrides
	CredentialsPath string // Freesound token cache
	DatabasePath    string // Run-history sqlite database

	// Observability
	SentryDSN         string
	LangfusePublicKey string
	LangfuseSecretKey string
	LangfuseHost      string
	LangfuseEnabled   bool

	// Audio validation
	MaxInvalidReferences int // Cross-reference violations tolerated before a retry
}

const defaultMaxInvalidReferences = 3

func Load() *Config {
	return &Config{
		Environment:           getEnv("ENVIRONMENT", "development"),
		Port:                  getEnv("PORT", "3000"),
		OpenRouterAPIKey:      getEnv("OPENROUTER_API_KEY", ""),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		RoomModel:             getEnv("AI_MODEL", "nousresearch/deephermes-3-mistral-24b-preview:free"),
		AudioModel:            getEnv("AUDIO_MODEL", "microsoft/phi-4-reasoning-plus:free"),
		SiteURL:               getEnv("SITE_URL", "http://localhost:3000"),
		SiteName:              getEnv("SITE_NAME", "Roomscape"),
		FreesoundClientID:     getEnv("FREESOUND_CLIENT_ID", ""),
		FreesoundClientSecret: getEnv("FREESOUND_CLIENT_SECRET", ""),
		SessionSecret:         getEnv("SESSION_SECRET", "freesound-session-secret"),
		DataDir:               getEnv("DATA_DIR", "Unity"),
		PromptsDir:            getEnv("PROMPTS_DIR", "Prompts"),
		CredentialsPath:       getEnv("FREESOUND_CREDENTIALS_PATH", "freesound_credentials.json"),
		DatabasePath:          getEnv("DATABASE_PATH", "roomscape.db"),
		SentryDSN:             getEnv("SENTRY_DSN", ""),
		LangfusePublicKey:     getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey:     getEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseHost:          getEnv("LANGFUSE_HOST", "https://cloud.langfuse.com"),
		LangfuseEnabled:       getEnv("LANGFUSE_ENABLED", "false") == "true",
		MaxInvalidReferences:  defaultMaxInvalidReferences,
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

// ResponsesDir is where generated room/audio JSON is persisted for the Unity client.
func (c *Config) ResponsesDir() string {
	return c.DataDir + "/Assets/StreamingAssets/Responses"
}

// StreamingAssetsDir holds the sound mapping file consumed by Unity.
func (c *Config) StreamingAssetsDir() string {
	return c.DataDir + "/Assets/StreamingAssets"
}

// SoundsDir holds downloaded sound files, one scene folder per pipeline run.
func (c *Config) SoundsDir() string {
	return c.DataDir + "/Assets/StreamingAssets/Sounds"
}
