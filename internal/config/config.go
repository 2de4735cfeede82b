package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI          string
	MongoDbName       string
	MongoTransactions bool

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort        string
	ServiceApiPort string
	CorsOrigins    []string

	// Realtime
	RealtimeBackend string // "local" or "redis"

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string
	EmailLogFile    string
	EmailCapture    bool // also keep sent mail in Redis mailboxes

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	ImageBaseS3URL     string
	ImageMaxDimension  int
	ImageMaxSizeMB     int

	// Adoption workflow
	ReconcileDelay       time.Duration
	ReconcileGracePeriod time.Duration
	ReconcileSweepCron   string

	// App Defaults
	AppName           string
	AnalyticsCacheTTL time.Duration
	LogLevel          string
	LogFile           string

	// Rate Limiting Defaults
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getSeconds := func(key, defaultValue string) (time.Duration, error) {
		seconds, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "furadapt")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "5001")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.RealtimeBackend = getEnv("REALTIME_BACKEND", "local")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@furadapt.example.com")
	cfg.EmailLogFile = getEnv("EMAIL_LOG_FILE", "")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "us-east-1")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.ImageBaseS3URL = getEnv("IMAGE_BASE_S3_URL", "")
	cfg.ReconcileSweepCron = getEnv("RECONCILE_SWEEP_CRON", "@every 15m")
	cfg.AppName = getEnv("APP_NAME", "FurAdapt")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFile = getEnv("LOG_FILE", "")

	switch cfg.RealtimeBackend {
	case "local", "redis":
	default:
		return nil, fmt.Errorf("invalid REALTIME_BACKEND: %q (want local or redis)", cfg.RealtimeBackend)
	}

	for _, origin := range strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.CorsOrigins = append(cfg.CorsOrigins, trimmed)
		}
	}

	cfg.MongoTransactions, err = strconv.ParseBool(getEnv("MONGO_TRANSACTIONS", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid MONGO_TRANSACTIONS: %w", err)
	}

	cfg.EmailCapture, err = strconv.ParseBool(getEnv("EMAIL_CAPTURE_REDIS", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid EMAIL_CAPTURE_REDIS: %w", err)
	}

	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	if cfg.JwtTTL, err = getSeconds("JWT_TTL_SECONDS", "2592000"); err != nil {
		return nil, err
	}
	if cfg.AnalyticsCacheTTL, err = getSeconds("ANALYTICS_CACHE_TTL_SECONDS", "60"); err != nil {
		return nil, err
	}
	if cfg.ReconcileDelay, err = getSeconds("RECONCILE_DELAY_SECONDS", "30"); err != nil {
		return nil, err
	}
	if cfg.ReconcileGracePeriod, err = getSeconds("RECONCILE_GRACE_SECONDS", "120"); err != nil {
		return nil, err
	}

	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg.ImageMaxDimension, err = strconv.Atoi(getEnv("IMAGE_MAX_DIMENSION", "1600"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_MAX_DIMENSION: %w", err)
	}

	cfg.ImageMaxSizeMB, err = strconv.Atoi(getEnv("IMAGE_MAX_SIZE_MB", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_MAX_SIZE_MB: %w", err)
	}

	cfg.RateLimitBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_BUCKET_SIZE", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_REFILL_RATE", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REFILL_RATE: %w", err)
	}

	return cfg, nil
}
