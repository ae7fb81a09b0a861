package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Inbound processing
	UseMemoryQueue bool
	WorkerCount    int

	// Durable store
	DatabaseURL string

	// History cache
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	HistoryTTL    time.Duration
	HistoryLimit  int

	// Language model service
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIEmbeddingModel string
	GeminiAPIKey         string
	GeminiModel          string

	// Facebook Messenger
	FacebookPageAccessToken string
	FacebookVerifyToken     string
	FacebookAppSecret       string
	FacebookGraphAPIBase    string
	FacebookSendTimeout     time.Duration
	ImgurClientID           string

	// Retry policy for outbound delivery
	DeliveryMaxAttempts int
	DeliveryRetryDelay  time.Duration

	// Admin API
	AdminJWTSecret string

	// Default language for pattern detection and templates
	DefaultLanguage string

	// AWS / SQS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	InboundQueueURL     string

	// Escalation notifications
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	EscalationEmailTo string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		HistoryTTL:    getEnvAsDuration("HISTORY_TTL", 24*time.Hour),
		HistoryLimit:  getEnvAsInt("HISTORY_LIMIT", 20),

		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		FacebookPageAccessToken: getEnv("FACEBOOK_PAGE_ACCESS_TOKEN", ""),
		FacebookVerifyToken:     getEnv("FACEBOOK_VERIFY_TOKEN", ""),
		FacebookAppSecret:       getEnv("FACEBOOK_APP_SECRET", ""),
		FacebookGraphAPIBase:    getEnv("FACEBOOK_GRAPH_API_BASE", "https://graph.facebook.com/v18.0"),
		FacebookSendTimeout:     getEnvAsDuration("FACEBOOK_SEND_TIMEOUT", 30*time.Second),
		ImgurClientID:           getEnv("IMGUR_CLIENT_ID", ""),

		DeliveryMaxAttempts: getEnvAsInt("DELIVERY_MAX_ATTEMPTS", 3),
		DeliveryRetryDelay:  getEnvAsDuration("DELIVERY_RETRY_DELAY", 2*time.Second),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		DefaultLanguage: strings.ToLower(getEnv("DEFAULT_LANGUAGE", "en")),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		InboundQueueURL:     getEnv("INBOUND_QUEUE_URL", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Cafe Concierge"),
		EscalationEmailTo: getEnv("ESCALATION_EMAIL_TO", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
