package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the playback engine configuration.
// Values come from the environment (optionally via a .env file) with defaults
// that work for a local 1QFM deployment.
type Config struct {
	// Remote 1QFM API
	APIBaseURL string
	APIToken   string // static bearer token; empty means unauthenticated

	// Persistent store backend: "redis", "sqlite" or "memory"
	StoreBackend string
	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	// SQLite配置
	SQLitePath string

	// 离线下载
	MediaCacheDir       string
	DownloadConcurrency int   // 同时进行的下载数上限
	DownloadTimeoutSec  int   // 单个下载超时（秒）
	StorageQuotaBytes   int64 // 离线存储配额

	// MinIO 直连拉取（可选，媒体定位符为对象键时使用）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// 同步队列
	SyncMaxRetries int

	// 播放设置默认值
	CrossfadeSeconds float64

	// 日志
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvInt64 gets an environment variable as int64 or returns a default value.
func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	dataDir := getEnv("DATA_DIR", "data")

	return &Config{
		APIBaseURL: getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		APIToken:   os.Getenv("API_TOKEN"), // no sensible hardcoded default

		StoreBackend:  getEnv("STORE_BACKEND", "sqlite"),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", filepath.Join(dataDir, "player.db")),

		MediaCacheDir:       getEnv("MEDIA_CACHE_DIR", filepath.Join(dataDir, "media")),
		DownloadConcurrency: getEnvInt("DOWNLOAD_CONCURRENCY", 3),
		DownloadTimeoutSec:  getEnvInt("DOWNLOAD_TIMEOUT_SEC", 120),
		StorageQuotaBytes:   getEnvInt64("STORAGE_QUOTA_BYTES", 2<<30), // 默认2GB

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "bt1qfm"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		SyncMaxRetries: getEnvInt("SYNC_MAX_RETRIES", 3),

		CrossfadeSeconds: getEnvFloat("CROSSFADE_SECONDS", 0),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
