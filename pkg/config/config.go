package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is only acceptable outside production.
const DefaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Port                    string
	Env                     string
	LogLevel                string
	DatabaseURL             string
	MongoURI                string
	MongoDatabase           string
	RedisURL                string
	JWTSecret               string
	AdminToken              string
	FirebaseCredentialsPath string
	MetricsPort             string
	CORSOrigin              string

	ClaimTTL          time.Duration
	ThreadIdleTTL     time.Duration
	ClaimRateLimit    int
	ClaimRateWindow   time.Duration
	HandoffBcryptCost int

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	S3Bucket   string
	AWSRegion  string
	PresignTTL time.Duration
}

// Load reads the environment, after an optional .env file.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}
	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		DatabaseURL:             getEnv("DATABASE_URL", "sqlite://lostfound.db"),
		MongoURI:                getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:           getEnv("MONGO_DATABASE", "lostfound"),
		RedisURL:                getEnv("REDIS_URL", ""),
		JWTSecret:               getEnv("JWT_SECRET", DefaultJWTSecret),
		AdminToken:              getEnv("ADMIN_TOKEN", ""),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		MetricsPort:             getEnv("METRICS_PORT", "9090"),
		CORSOrigin:              getEnv("CORS_ORIGIN", "*"),

		ClaimTTL:          getDuration("CLAIM_TTL", 7*24*time.Hour),
		ThreadIdleTTL:     getDuration("THREAD_IDLE_TTL", 72*time.Hour),
		ClaimRateLimit:    getInt("CLAIM_RATE_LIMIT", 5),
		ClaimRateWindow:   getDuration("CLAIM_RATE_WINDOW", time.Hour),
		HandoffBcryptCost: getInt("HANDOFF_BCRYPT_COST", 12),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "no-reply@lostfound.local"),

		S3Bucket:   getEnv("S3_BUCKET", ""),
		AWSRegion:  getEnv("AWS_REGION", "us-east-1"),
		PresignTTL: getDuration("PRESIGN_TTL", 15*time.Minute),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects settings the server must not run with.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == DefaultJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", defaultValue.String())
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return n
}
