package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppName     string
	DefaultUser string
	LogLevel    string
	LogFormat   string
	LogOutput   string
	// Sheet import simulation
	ImportStagger     time.Duration
	ImportMinLatency  time.Duration
	ImportMaxLatency  time.Duration
	ImportSuccessRate int
	// AI collaborators
	AnthropicAPIKey string
	SearchModel     string
	GeminiAPIKey    string
	GeminiBaseURL   string
	VideoModel      string
	VideoPoll       time.Duration
	// Redis cache for semantic search answers
	RedisURL   string
	AICacheTTL time.Duration
	// Keyword index
	MeiliURL       string
	MeiliMasterKey string
	MeiliIndex     string
	// Object storage for uploaded payloads
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	// SMTP - empty by default, email simulated if not configured
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	// Export
	ChromePath string
	PandocPath string
}

func Load() Config {
	return Config{
		AppName:     getenv("DOCUFLEX_APP_NAME", "DocuFlex"),
		DefaultUser: getenv("DOCUFLEX_DEFAULT_USER", "user-4"),
		LogLevel:    getenv("DOCUFLEX_LOG_LEVEL", "info"),
		LogFormat:   getenv("DOCUFLEX_LOG_FORMAT", "console"),
		LogOutput:   getenv("DOCUFLEX_LOG_OUTPUT", "stderr"),

		ImportStagger:     getenvDuration("DOCUFLEX_IMPORT_STAGGER_MS", 500, time.Millisecond),
		ImportMinLatency:  getenvDuration("DOCUFLEX_IMPORT_MIN_LATENCY_MS", 1000, time.Millisecond),
		ImportMaxLatency:  getenvDuration("DOCUFLEX_IMPORT_MAX_LATENCY_MS", 2000, time.Millisecond),
		ImportSuccessRate: getenvInt("DOCUFLEX_IMPORT_SUCCESS_RATE", 80),

		AnthropicAPIKey: getenv("ANTHROPIC_API_KEY", ""),
		SearchModel:     getenv("DOCUFLEX_SEARCH_MODEL", "claude-3-5-haiku-latest"),
		GeminiAPIKey:    getenv("GEMINI_API_KEY", ""),
		GeminiBaseURL:   getenv("GEMINI_BASE_URL", ""),
		VideoModel:      getenv("DOCUFLEX_VIDEO_MODEL", "veo-2.0-generate-001"),
		VideoPoll:       getenvDuration("DOCUFLEX_VIDEO_POLL_SECONDS", 5, time.Second),

		RedisURL:   getenv("REDIS_URL", ""),
		AICacheTTL: getenvDuration("DOCUFLEX_AI_CACHE_TTL_SECONDS", 3600, time.Second),

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		MeiliIndex:     getenv("MEILI_INDEX", "docuflex_items"),

		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "docuflex"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", ""),
		SMTPFromName: getenv("SMTP_FROM_NAME", "DocuFlex"),

		ChromePath: getenv("DOCUFLEX_CHROME_PATH", ""),
		PandocPath: getenv("DOCUFLEX_PANDOC_PATH", "pandoc"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback int, unit time.Duration) time.Duration {
	return time.Duration(getenvInt(key, fallback)) * unit
}
