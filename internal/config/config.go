package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                   string
	StoreBackend           string
	PostgresURL            string
	SQLitePath             string
	BoltPath               string
	LLMProvider            string
	LLMModel               string
	LLMBaseURL             string
	GroqAPIKey             string
	OpenAIAPIKey           string
	OpenRouterAPIKey       string
	LLMMaxRetries          int
	TokenLimit             int
	SourceMaxChars         int
	ScrapeTTL              time.Duration
	ConversationTTL        time.Duration
	ConversationSecretsKey string
	RateLimitRequests      int
	RateLimitWindow        time.Duration
	SearchBaseURL          string
	SearchMaxResults       int
	SearchRequestsPerSec   float64
	TemporalAddress        string
	TemporalTaskQueue      string
	SweepCron              string
}

func Load() Config {
	postgresURL := getEnv("POSTGRES_URL", "")
	if postgresURL == "" {
		postgresURL = buildPostgresURL()
	}
	if token := getEnv("STORE_TOKEN", ""); token != "" {
		postgresURL = withPassword(postgresURL, token)
	}
	return Config{
		Port:                   getEnv("PORT", "8080"),
		StoreBackend:           getEnv("STORE_BACKEND", "memory"),
		PostgresURL:            postgresURL,
		SQLitePath:             getEnv("SQLITE_PATH", "data/groundchat.db"),
		BoltPath:               getEnv("BOLT_PATH", "data/groundchat.bolt"),
		LLMProvider:            getEnv("LLM_PROVIDER", "groq"),
		LLMModel:               getEnv("LLM_MODEL", "llama3-8b-8192"),
		LLMBaseURL:             getEnv("LLM_BASE_URL", ""),
		GroqAPIKey:             getEnv("GROQ_API_KEY", ""),
		OpenAIAPIKey:           getEnv("OPENAI_API_KEY", ""),
		OpenRouterAPIKey:       getEnv("OPENROUTER_API_KEY", ""),
		LLMMaxRetries:          getEnvInt("LLM_MAX_RETRIES", 2),
		TokenLimit:             getEnvInt("TOKEN_LIMIT", 8000),
		SourceMaxChars:         getEnvInt("SOURCE_MAX_CHARS", 1000),
		ScrapeTTL:              getEnvSeconds("SCRAPE_TTL_SECONDS", 3600),
		ConversationTTL:        getEnvSeconds("CONVERSATION_TTL_SECONDS", 86400),
		ConversationSecretsKey: getEnv("CONVERSATION_SECRETS_KEY", ""),
		RateLimitRequests:      getEnvInt("RATE_LIMIT_REQUESTS", 20),
		RateLimitWindow:        getEnvSeconds("RATE_LIMIT_WINDOW_SECONDS", 60),
		SearchBaseURL:          getEnv("SEARCH_BASE_URL", "https://html.duckduckgo.com/html/"),
		SearchMaxResults:       getEnvInt("SEARCH_MAX_RESULTS", 5),
		SearchRequestsPerSec:   getEnvFloat("SEARCH_REQUESTS_PER_SECOND", 1),
		TemporalAddress:        getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue:      getEnv("TEMPORAL_TASK_QUEUE", "groundchat-maintenance"),
		SweepCron:              getEnv("SWEEP_CRON", "*/10 * * * *"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func buildPostgresURL() string {
	user := getEnv("POSTGRES_USER", "groundchat")
	password := getEnv("POSTGRES_PASSWORD", "groundchat")
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	database := getEnv("POSTGRES_DB", "groundchat")
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + database,
		RawQuery: "sslmode=disable",
	}
	return dsn.String()
}

// withPassword replaces the password of a postgres URL. Unparseable URLs are
// returned unchanged.
func withPassword(raw string, password string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}
	parsed.User = url.UserPassword(parsed.User.Username(), password)
	return parsed.String()
}
