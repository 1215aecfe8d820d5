package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Common
	Env      string
	LogLevel string
	// API
	Port        string
	DatabaseURL string
	CORSOrigins []string
	// Redis (idempotency, refresh tokens, client sessions)
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	IdempotencyBackend string
	IdempotencyTTL     time.Duration
	SessionBackend     string
	// Tokens
	TokenSecret     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	// Object storage
	StorageBackend  string
	S3Region        string
	S3Endpoint      string
	GalleryBucket   string
	DocumentsBucket string
	SignedURLTTL    time.Duration
	// Worker
	WorkerPoll       time.Duration
	WorkerBatchSize  int
	URLRefreshWindow time.Duration
	// Client
	APIBaseURL       string
	RequestTimeout   time.Duration
	RefreshThreshold time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func durMS(key string, defMS int) time.Duration {
	return time.Duration(atoiDef(getEnv(key, strconv.Itoa(defMS)), defMS)) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads environment variables and applies defaults.
func Load() Config {
	return Config{
		Env:                getEnv("ENV", "local"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "*")),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            atoiDef(getEnv("REDIS_DB", "0"), 0),
		IdempotencyBackend: getEnv("IDEMPOTENCY_BACKEND", "redis"),
		IdempotencyTTL:     durMS("IDEMPOTENCY_TTL_MS", 86400000),
		SessionBackend:     getEnv("SESSION_BACKEND", "memory"),
		TokenSecret:        getEnv("TOKEN_SIGNING_SECRET", ""),
		AccessTokenTTL:     durMS("ACCESS_TOKEN_TTL_MS", 15*60*1000),
		RefreshTokenTTL:    durMS("REFRESH_TOKEN_TTL_MS", 30*24*60*60*1000),
		StorageBackend:     getEnv("STORAGE_BACKEND", "s3"),
		S3Region:           getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		GalleryBucket:      getEnv("GALLERY_BUCKET", "gallery"),
		DocumentsBucket:    getEnv("DOCUMENTS_BUCKET", "pdfs"),
		SignedURLTTL:       durMS("SIGNED_URL_TTL_MS", 7*24*60*60*1000),
		WorkerPoll:         durMS("WORKER_POLL_MS", 60000),
		WorkerBatchSize:    atoiDef(getEnv("WORKER_BATCH_LIMIT", "50"), 50),
		URLRefreshWindow:   durMS("URL_REFRESH_WINDOW_MS", 24*60*60*1000),
		APIBaseURL:         getEnv("CMS_API_BASE_URL", "http://localhost:8080"),
		RequestTimeout:     durMS("REQUEST_TIMEOUT_MS", 10000),
		RefreshThreshold:   durMS("TOKEN_REFRESH_THRESHOLD_MS", 300000),
	}
}
