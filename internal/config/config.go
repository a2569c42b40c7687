package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Quiz gate policies
const (
	QuizGateInformational = "informational"
	QuizGateRequired      = "required"
)

// Config holds application configuration
type Config struct {
	ServerPort      string
	AppBaseURL      string
	DatabaseType    string
	DatabasePath    string
	DatabaseURL     string
	SessionDuration time.Duration
	CSRFSecret      string
	RequestTimeout  time.Duration

	// Rate limiting for auth endpoints
	AuthRateLimit  int
	AuthRateWindow time.Duration

	// Learning rules
	QuizPassThreshold          int
	QuizGate                   string
	LessonCompletionPoints     int
	StudentPointsPerLevel      int
	OrganizationPointsPerLevel int
	VideoProgressInterval      time.Duration

	// Mission video storage
	StorageBackend       string
	MediaDir             string
	MediaSigningSecret   string
	S3Bucket             string
	AWSRegion            string
	SignedURLTTL         time.Duration
	MaxVideoUploadBytes  int64
	MediaTransferTimeout time.Duration

	// Realtime fan-out
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Email
	EmailProvider string
	SESFromEmail  string
	SESFromName   string
	ResendAPIKey  string
	EmailDebug    bool

	// OAuth
	GoogleClientID       string
	GoogleClientSecret   string
	FacebookClientID     string
	FacebookClientSecret string
	AppleClientID        string
	AppleClientSecret    string
	OAuthRedirectBaseURL string

	// Startup and scheduled jobs
	SeedBadWords       bool
	SeedCatalog        bool
	CronStreakSchedule string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	return &Config{
		ServerPort:      getEnv("PORT", "8080"),
		AppBaseURL:      strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
		DatabaseType:    getEnv("DB_TYPE", "sqlite"),
		DatabasePath:    getEnv("DB_PATH", "./ecoquest.db"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SessionDuration: getEnvDuration("SESSION_DURATION", 24*time.Hour),
		CSRFSecret:      getEnv("CSRF_SECRET", "change-me-in-production"),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),

		AuthRateLimit:  getEnvInt("AUTH_RATE_LIMIT", 10),
		AuthRateWindow: getEnvDuration("AUTH_RATE_WINDOW", time.Minute),

		QuizPassThreshold:          getEnvInt("QUIZ_PASS_THRESHOLD", 70),
		QuizGate:                   normalizeQuizGate(getEnv("QUIZ_GATE", QuizGateInformational)),
		LessonCompletionPoints:     getEnvInt("LESSON_COMPLETION_POINTS", 10),
		StudentPointsPerLevel:      getEnvInt("STUDENT_POINTS_PER_LEVEL", 200),
		OrganizationPointsPerLevel: getEnvInt("ORGANIZATION_POINTS_PER_LEVEL", 2000),
		VideoProgressInterval:      getEnvDuration("VIDEO_PROGRESS_INTERVAL", time.Second),

		StorageBackend:       getEnv("STORAGE_BACKEND", "local"),
		MediaDir:             getEnv("MEDIA_DIR", "./media"),
		MediaSigningSecret:   getEnv("MEDIA_SIGNING_SECRET", "change-me-in-production"),
		S3Bucket:             getEnv("S3_BUCKET", "mission-videos"),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		SignedURLTTL:         getEnvDuration("SIGNED_URL_TTL", time.Hour),
		MaxVideoUploadBytes:  int64(getEnvInt("MAX_VIDEO_UPLOAD_MB", 100)) * 1024 * 1024,
		MediaTransferTimeout: getEnvDuration("MEDIA_TRANSFER_TIMEOUT", 10*time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		EmailProvider: getEnv("EMAIL_PROVIDER", "ses"),
		SESFromEmail:  getEnv("SES_FROM_EMAIL", ""),
		SESFromName:   getEnv("SES_FROM_NAME", "EcoQuest"),
		ResendAPIKey:  getEnv("RESEND_API_KEY", ""),
		EmailDebug:    getEnvBool("EMAIL_DEBUG", false),

		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
		FacebookClientID:     getEnv("FACEBOOK_CLIENT_ID", ""),
		FacebookClientSecret: getEnv("FACEBOOK_CLIENT_SECRET", ""),
		AppleClientID:        getEnv("APPLE_CLIENT_ID", ""),
		AppleClientSecret:    getEnv("APPLE_CLIENT_SECRET", ""),
		OAuthRedirectBaseURL: getEnv("OAUTH_REDIRECT_BASE_URL", ""),

		SeedBadWords:       getEnvBool("SEED_BAD_WORDS", true),
		SeedCatalog:        getEnvBool("SEED_CATALOG", true),
		CronStreakSchedule: getEnv("CRON_STREAK_SCHEDULE", "5 0 * * *"),
	}
}

// QuizRequired reports whether a failing quiz score blocks lesson progression
func (c *Config) QuizRequired() bool {
	return c.QuizGate == QuizGateRequired
}

func normalizeQuizGate(value string) string {
	if strings.EqualFold(strings.TrimSpace(value), QuizGateRequired) {
		return QuizGateRequired
	}
	return QuizGateInformational
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer for %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid boolean for %s=%q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvDuration accepts Go duration strings ("90s", "24h") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration for %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
