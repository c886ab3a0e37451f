package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// セッションストアの種類
const (
	SessionStoreMemory   = "memory"
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Fitbit OAuth
	// クライアント資格情報は起動時には必須としない。
	// 未設定のままOAuthフローを開始した時点でConfigurationErrorとなる。
	FitbitClientID     string
	FitbitClientSecret string
	FitbitRedirectURL  string
	FitbitScope        string
	FitbitAuthURL      string
	FitbitTokenURL     string
	FitbitAPIBaseURL   string
	DynamicSetup       bool

	// Upstream
	UpstreamTimeout          time.Duration
	UpstreamRateLimitPerHour int
	SleepFanoutConcurrency   int
	AllowQueryToken          bool

	// Session
	SessionSecret          string
	SessionMaxAge          int
	SessionStore           string
	SessionCleanupInterval time.Duration

	// Database
	DatabaseURL string

	// Redis
	RedisURL      string
	RedisPassword string

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort    string
	BaseURL       string
	DashboardPath string
	LoginPath     string

	// Logging
	LogLevel string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.SessionStore = getEnvString("SESSION_STORE", SessionStoreMemory)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.SessionStore == SessionStorePostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	switch cfg.SessionStore {
	case SessionStoreMemory, SessionStorePostgres, SessionStoreRedis:
	default:
		return nil, fmt.Errorf("unknown SESSION_STORE: %q", cfg.SessionStore)
	}

	// Optional fields with defaults
	cfg.FitbitClientID = os.Getenv("FITBIT_CLIENT_ID")
	cfg.FitbitClientSecret = os.Getenv("FITBIT_CLIENT_SECRET")
	cfg.FitbitRedirectURL = getEnvString("FITBIT_REDIRECT_URL", os.Getenv("FITBIT_REDIRECT_URI"))
	cfg.FitbitScope = getEnvString("FITBIT_SCOPE", model.DefaultScope)
	cfg.FitbitAuthURL = getEnvString("FITBIT_AUTH_URL", "https://www.fitbit.com/oauth2/authorize")
	cfg.FitbitTokenURL = getEnvString("FITBIT_TOKEN_URL", "https://api.fitbit.com/oauth2/token")
	cfg.FitbitAPIBaseURL = strings.TrimRight(getEnvString("FITBIT_API_BASE_URL", "https://api.fitbit.com"), "/")
	cfg.DynamicSetup = getEnvBool("DYNAMIC_SETUP", false)

	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	cfg.UpstreamRateLimitPerHour = getEnvInt("UPSTREAM_RATE_LIMIT_PER_HOUR", 150)
	cfg.SleepFanoutConcurrency = getEnvInt("SLEEP_FANOUT_CONCURRENCY", 10)
	cfg.AllowQueryToken = getEnvBool("ALLOW_QUERY_TOKEN", false)

	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.RedisURL = getEnvString("REDIS_URL", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.DashboardPath = getEnvString("DASHBOARD_PATH", "/dashboard")
	cfg.LoginPath = getEnvString("LOGIN_PATH", "/login")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// FitbitCredentials は環境変数から読み込んだOAuthクライアント資格情報を返す。
func (c *Config) FitbitCredentials() model.Credentials {
	return model.Credentials{
		ClientID:     c.FitbitClientID,
		ClientSecret: c.FitbitClientSecret,
		RedirectURI:  c.FitbitRedirectURL,
		Scope:        c.FitbitScope,
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
