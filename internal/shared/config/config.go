package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	DifyAPIKey      string
	DifyBaseURL     string
	UpstreamTimeout time.Duration
	MaxLimit        int
	QuotaWindow     time.Duration
	PlatformTypes   []string
	DatabaseURL     string
	Env             string
}

// DefaultPlatformTypes lists the marketplace categories the analyze form offers.
var DefaultPlatformTypes = []string{"淘宝/天猫", "京东", "抖音电商", "拼多多"}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	platforms := splitAndTrim(os.Getenv("PLATFORM_TYPES"))
	if len(platforms) == 0 {
		platforms = DefaultPlatformTypes
	}

	return Config{
		Port:            getEnv("PORT", "3000"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DifyAPIKey:      strings.TrimSpace(os.Getenv("DIFY_API_KEY")),
		DifyBaseURL:     getEnv("DIFY_BASE_URL", "https://api.dify.ai"),
		UpstreamTimeout: getEnvSeconds("UPSTREAM_TIMEOUT_SECONDS", 30*time.Second),
		MaxLimit:        getEnvInt("MAX_LIMIT", 3),
		QuotaWindow:     getEnvDuration("QUOTA_WINDOW", 24*time.Hour),
		PlatformTypes:   platforms,
		DatabaseURL:     dbURL,
		Env:             env,
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid int %q, using default %d", key, raw, def)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid duration %q, using default %s", key, raw, def)
		return def
	}
	return val
}

func getEnvSeconds(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid seconds %q, using default %s", key, raw, def)
		return def
	}
	return time.Duration(val) * time.Second
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}
