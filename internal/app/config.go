package app

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment
// variables, with an optional .env file for local development.
type Config struct {
	AppEnv   string
	HTTPAddr string

	DBDriver string
	DBDSN    string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifeMins int

	RedisURL string

	JWTSecret     string
	TokenTTLHours int

	DefaultExamMinutes int

	CORSOrigins         []string
	CSRFEnforced        bool
	AuthRateLimitPerMin int
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "cbtexam-dev-secret-change-me"
	}

	return Config{
		AppEnv:              envOrDefault("APP_ENV", "development"),
		HTTPAddr:            envOrDefault("HTTP_ADDR", ":8080"),
		DBDriver:            envOrDefault("DB_DRIVER", "sqlite"),
		DBDSN:               os.Getenv("DB_DSN"),
		DBMaxOpenConns:      intOrDefault("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:      intOrDefault("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifeMins:   intOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		RedisURL:            os.Getenv("REDIS_URL"),
		JWTSecret:           secret,
		TokenTTLHours:       intOrDefault("TOKEN_TTL_HOURS", 8),
		DefaultExamMinutes:  intOrDefault("DEFAULT_EXAM_MINUTES", 90),
		CORSOrigins:         splitList(envOrDefault("CORS_ORIGINS", "http://localhost:5173")),
		CSRFEnforced:        boolOrDefault("CSRF_ENFORCED", false),
		AuthRateLimitPerMin: intOrDefault("AUTH_RATE_LIMIT_PER_MINUTE", 60),
	}
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func intOrDefault(key string, fallback int) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	if n <= 0 {
		return fallback
	}
	return n
}

func boolOrDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
