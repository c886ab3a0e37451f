package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "test-session-secret-32bytes-long!")
	t.Setenv("BASE_URL", "http://localhost:8080")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("DATABASE_URL", "")
}

func TestLoad_AllRequiredVarsSet_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.SessionSecret != "test-session-secret-32bytes-long!" {
		t.Errorf("SessionSecret = %q, want %q", cfg.SessionSecret, "test-session-secret-32bytes-long!")
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8080")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)
	for _, key := range []string{
		"FITBIT_SCOPE", "FITBIT_AUTH_URL", "FITBIT_TOKEN_URL", "FITBIT_API_BASE_URL",
		"UPSTREAM_TIMEOUT", "UPSTREAM_RATE_LIMIT_PER_HOUR", "SLEEP_FANOUT_CONCURRENCY",
		"ALLOW_QUERY_TOKEN", "DYNAMIC_SETUP", "SESSION_MAX_AGE", "RATE_LIMIT_GENERAL",
		"SERVER_PORT", "DASHBOARD_PATH", "LOGIN_PATH", "CORS_ALLOWED_ORIGIN",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.SessionStore != SessionStoreMemory {
		t.Errorf("SessionStore = %q, want %q", cfg.SessionStore, SessionStoreMemory)
	}
	if cfg.SessionMaxAge != 86400 {
		t.Errorf("SessionMaxAge = %d, want %d", cfg.SessionMaxAge, 86400)
	}
	if cfg.FitbitScope != "activity heartrate sleep profile weight nutrition" {
		t.Errorf("FitbitScope = %q", cfg.FitbitScope)
	}
	if cfg.FitbitAuthURL != "https://www.fitbit.com/oauth2/authorize" {
		t.Errorf("FitbitAuthURL = %q", cfg.FitbitAuthURL)
	}
	if cfg.FitbitTokenURL != "https://api.fitbit.com/oauth2/token" {
		t.Errorf("FitbitTokenURL = %q", cfg.FitbitTokenURL)
	}
	if cfg.FitbitAPIBaseURL != "https://api.fitbit.com" {
		t.Errorf("FitbitAPIBaseURL = %q", cfg.FitbitAPIBaseURL)
	}
	if cfg.UpstreamTimeout != 10*time.Second {
		t.Errorf("UpstreamTimeout = %v, want %v", cfg.UpstreamTimeout, 10*time.Second)
	}
	if cfg.UpstreamRateLimitPerHour != 150 {
		t.Errorf("UpstreamRateLimitPerHour = %d, want %d", cfg.UpstreamRateLimitPerHour, 150)
	}
	if cfg.SleepFanoutConcurrency != 10 {
		t.Errorf("SleepFanoutConcurrency = %d, want %d", cfg.SleepFanoutConcurrency, 10)
	}
	if cfg.AllowQueryToken {
		t.Error("AllowQueryToken should default to false")
	}
	if cfg.DynamicSetup {
		t.Error("DynamicSetup should default to false")
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.DashboardPath != "/dashboard" {
		t.Errorf("DashboardPath = %q, want %q", cfg.DashboardPath, "/dashboard")
	}
	if cfg.LoginPath != "/login" {
		t.Errorf("LoginPath = %q, want %q", cfg.LoginPath, "/login")
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure should be false for http BASE_URL")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("BASE_URL", "https://fitbit.example.com")
	t.Setenv("FITBIT_CLIENT_ID", "client-id")
	t.Setenv("FITBIT_CLIENT_SECRET", "client-secret")
	t.Setenv("FITBIT_REDIRECT_URL", "")
	t.Setenv("FITBIT_REDIRECT_URI", "https://fitbit.example.com/auth/callback")
	t.Setenv("FITBIT_API_BASE_URL", "http://127.0.0.1:9999/")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")
	t.Setenv("ALLOW_QUERY_TOKEN", "true")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("SERVER_PORT", "3000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	creds := cfg.FitbitCredentials()
	if creds.ClientID != "client-id" || creds.ClientSecret != "client-secret" {
		t.Errorf("credentials = %+v", creds)
	}
	if creds.RedirectURI != "https://fitbit.example.com/auth/callback" {
		t.Errorf("RedirectURI = %q, want fallback from FITBIT_REDIRECT_URI", creds.RedirectURI)
	}
	if cfg.FitbitAPIBaseURL != "http://127.0.0.1:9999" {
		t.Errorf("FitbitAPIBaseURL = %q, want trailing slash trimmed", cfg.FitbitAPIBaseURL)
	}
	if cfg.UpstreamTimeout != 3*time.Second {
		t.Errorf("UpstreamTimeout = %v, want %v", cfg.UpstreamTimeout, 3*time.Second)
	}
	if !cfg.AllowQueryToken {
		t.Error("AllowQueryToken = false, want true")
	}
	if cfg.SessionStore != SessionStoreRedis {
		t.Errorf("SessionStore = %q, want %q", cfg.SessionStore, SessionStoreRedis)
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure should be true for https BASE_URL")
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "3000")
	}
}

func TestLoad_MissingSessionSecret_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SESSION_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing SESSION_SECRET, got nil")
	}
}

func TestLoad_MissingBaseURL_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("BASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing BASE_URL, got nil")
	}
}

func TestLoad_PostgresStoreRequiresDatabaseURL(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SESSION_STORE", "postgres")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing DATABASE_URL, got nil")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error = %q, want it to name DATABASE_URL", err.Error())
	}
}

func TestLoad_UnknownSessionStore_ReturnsError(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SESSION_STORE", "memcached")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown SESSION_STORE, got nil")
	}
}

func TestLoad_FitbitCredentialsAreOptional(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("FITBIT_CLIENT_ID", "")
	t.Setenv("FITBIT_CLIENT_SECRET", "")

	if _, err := Load(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
