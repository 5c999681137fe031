package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	SiteURL            string
	CORSAllowedOrigins []string

	AuthJWTSecret string

	StripeSecretKey     string
	StripeWebhookSecret string

	ImageAPIBaseURL string
	ImageAPIKey     string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Quota QuotaConfig
}

// QuotaConfig carries the per-endpoint request budgets for the quota gate.
type QuotaConfig struct {
	WindowSeconds int
	GenerateMax   int
	SuggestMax    int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load loads configuration from environment variables and an optional .env
// file. Missing values fall back to development defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "imagenius"),
		AppVersion:  getenv("APP_VERSION", "1.0.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		SiteURL:            strings.TrimRight(getenv("SITE_URL", "http://localhost:5173"), "/"),
		CORSAllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "")),

		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),

		StripeSecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
		StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),

		ImageAPIBaseURL: strings.TrimRight(getenv("IMAGE_API_BASE_URL", ""), "/"),
		ImageAPIKey:     strings.TrimSpace(getenv("IMAGE_API_KEY", "")),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "imagenius"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		Quota: QuotaConfig{
			WindowSeconds: getenvInt("QUOTA_WINDOW_SECONDS", 60),
			GenerateMax:   getenvInt("QUOTA_GENERATE_MAX", 10),
			SuggestMax:    getenvInt("QUOTA_SUGGEST_MAX", 5),
			RedisAddr:     strings.TrimSpace(getenv("QUOTA_REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("QUOTA_REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("QUOTA_REDIS_DB", 0),
		},
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
