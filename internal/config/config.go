// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database and cache paths, remote API
// access, and rate limiting.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tbourn/go-diary-sync/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// RemoteConfig defines access to the diary backend API.
type RemoteConfig struct {
	BaseURL string // REMOTE_BASE_URL (e.g. "https://api.example.com")
	Token   string // REMOTE_TOKEN (bearer token)
}

// ImageCacheConfig tunes the two-tier image cache.
type ImageCacheConfig struct {
	Dir             string        // IMAGE_CACHE_DIR
	MaxMemoryItems  int           // IMAGE_CACHE_MAX_ITEMS
	MaxMemoryBytes  int64         // IMAGE_CACHE_MAX_BYTES
	DiskTTL         time.Duration // IMAGE_CACHE_DISK_TTL
	PrefetchWorkers int           // IMAGE_CACHE_PREFETCH_WORKERS
}

// DetailConfig tunes the detail cache and its pending-detail polling.
type DetailConfig struct {
	MaxItems     int           // DETAIL_CACHE_MAX_ITEMS
	MaxBytes     int64         // DETAIL_CACHE_MAX_BYTES
	PollInterval time.Duration // DETAIL_POLL_INTERVAL
	PollAttempts int           // DETAIL_POLL_ATTEMPTS
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	OwnerID string // OWNER_ID, the active diary account
	DBPath  string // SQLite path

	Remote     RemoteConfig
	ImageCache ImageCacheConfig
	Detail     DetailConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS CORSConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
// A .env file in the working directory is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		OwnerID: getenv("OWNER_ID", ""),
		DBPath:  getenv("DB_PATH", "diary.db"),

		Remote: RemoteConfig{
			BaseURL: getenv("REMOTE_BASE_URL", ""),
			// REMOTE_API_TOKEN is the legacy name, still honored.
			Token: sysutil.FirstNonEmpty(os.Getenv("REMOTE_TOKEN"), os.Getenv("REMOTE_API_TOKEN")),
		},
		ImageCache: ImageCacheConfig{
			Dir:             getenv("IMAGE_CACHE_DIR", "imagecache"),
			MaxMemoryItems:  getint("IMAGE_CACHE_MAX_ITEMS", 100),
			MaxMemoryBytes:  getint64("IMAGE_CACHE_MAX_BYTES", 50<<20),
			DiskTTL:         getdur("IMAGE_CACHE_DISK_TTL", 30*24*time.Hour),
			PrefetchWorkers: getint("IMAGE_CACHE_PREFETCH_WORKERS", 10),
		},
		Detail: DetailConfig{
			MaxItems:     getint("DETAIL_CACHE_MAX_ITEMS", 50),
			MaxBytes:     getint64("DETAIL_CACHE_MAX_BYTES", 2<<20),
			PollInterval: getdur("DETAIL_POLL_INTERVAL", 2*time.Second),
			PollAttempts: getint("DETAIL_POLL_ATTEMPTS", 10),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		return cfg, errors.New("REMOTE_BASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.ImageCache.Dir) == "" {
		return cfg, errors.New("IMAGE_CACHE_DIR must not be empty")
	}
	if cfg.ImageCache.MaxMemoryItems < 1 || cfg.ImageCache.MaxMemoryBytes < 1 {
		return cfg, errors.New("image cache limits must be >= 1")
	}
	if cfg.ImageCache.DiskTTL <= 0 {
		return cfg, errors.New("IMAGE_CACHE_DISK_TTL must be > 0")
	}
	if cfg.ImageCache.PrefetchWorkers < 1 {
		return cfg, errors.New("IMAGE_CACHE_PREFETCH_WORKERS must be >= 1")
	}
	if cfg.Detail.MaxItems < 1 || cfg.Detail.MaxBytes < 1 {
		return cfg, errors.New("detail cache limits must be >= 1")
	}
	if cfg.Detail.PollInterval <= 0 {
		return cfg, errors.New("DETAIL_POLL_INTERVAL must be > 0")
	}
	if cfg.Detail.PollAttempts < 1 {
		return cfg, errors.New("DETAIL_POLL_ATTEMPTS must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
