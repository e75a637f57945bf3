package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	GeminiAPIKey  string
	TelegramToken string

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	WebAddr          string
	GeminiBaseURL    string
	GeminiAPIVersion string

	HTTPTimeout    time.Duration
	RequestTimeout time.Duration
	MaxConcurrent  int

	RetryMaxAttempts  int
	RetryBaseDelay    time.Duration
	RequestsPerMinute int
	PromptCacheTTL    time.Duration

	SessionMaxIdle time.Duration

	DatabaseURL      string
	HistoryRetention time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		LogLevel:          strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:             getEnvBool("DEBUG", false),
		PreferIPv4:        getEnvBool("PREFER_IPV4", true),
		WebAddr:           strings.TrimSpace(getEnv("WEB_ADDR", ":8080")),
		GeminiBaseURL:     strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion:  strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		HTTPTimeout:       time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		RequestTimeout:    time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 300)) * time.Second,
		MaxConcurrent:     getEnvInt("MAX_CONCURRENT", 4),
		RetryMaxAttempts:  getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:    time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 2000)) * time.Millisecond,
		RequestsPerMinute: getEnvInt("REQUESTS_PER_MINUTE", 0),
		PromptCacheTTL:    time.Duration(getEnvInt("PROMPT_CACHE_TTL_MINUTES", 10)) * time.Minute,
		SessionMaxIdle:    time.Duration(getEnvInt("SESSION_MAX_IDLE_MINUTES", 120)) * time.Minute,
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		HistoryRetention:  time.Duration(getEnvInt("HISTORY_RETENTION_DAYS", 30)) * 24 * time.Hour,
	}

	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))

	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required: create a key in Google AI Studio and export it before starting")
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetryMaxAttempts < 0 {
		cfg.RetryMaxAttempts = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 300 * time.Second
	}
	if cfg.SessionMaxIdle <= 0 {
		cfg.SessionMaxIdle = 2 * time.Hour
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
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
