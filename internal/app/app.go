package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/yukke-bit/fitbit-data-connector/internal/auth"
	"github.com/yukke-bit/fitbit-data-connector/internal/config"
	"github.com/yukke-bit/fitbit-data-connector/internal/crypto"
	"github.com/yukke-bit/fitbit-data-connector/internal/dashboard"
	"github.com/yukke-bit/fitbit-data-connector/internal/database"
	"github.com/yukke-bit/fitbit-data-connector/internal/fitbit"
	"github.com/yukke-bit/fitbit-data-connector/internal/handler"
	"github.com/yukke-bit/fitbit-data-connector/internal/logger"
	"github.com/yukke-bit/fitbit-data-connector/internal/metrics"
	"github.com/yukke-bit/fitbit-data-connector/internal/middleware"
	"github.com/yukke-bit/fitbit-data-connector/internal/repository"
	"github.com/yukke-bit/fitbit-data-connector/internal/security"
	"github.com/yukke-bit/fitbit-data-connector/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	level := logger.SetupDefault(w)

	// 2. .envの読み込み（既に設定済みの環境変数は上書きしない）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", slog.String("error", err.Error()))
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level.Set(logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		PrintUsage(w)
		return nil
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if !cmd.SupportsStore(cfg.SessionStore) {
		return fmt.Errorf("%s requires SESSION_STORE=%s, got %q", cmd, config.SessionStorePostgres, cfg.SessionStore)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("session_store", cfg.SessionStore),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// sessionStore は選択されたセッションストアとその付随物。
type sessionStore struct {
	repo   repository.SessionRepository
	purger repository.ExpiredSessionPurger // Redisの場合はnil
	checks map[string]handler.HealthCheck
	close  func()
}

// openSessionStore はSESSION_STOREに応じたセッションストアを開き、疎通を確認する。
func openSessionStore(ctx context.Context, cfg *config.Config) (*sessionStore, error) {
	if cfg.SessionStore == config.SessionStoreMemory {
		repo := repository.NewMemorySessionRepo()
		return &sessionStore{repo: repo, purger: repo, close: func() {}}, nil
	}

	// 永続化するストアではトークンを暗号化して保存する
	codec, err := crypto.NewSessionCipher(cfg.SessionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cipher: %w", err)
	}

	switch cfg.SessionStore {
	case config.SessionStorePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Ping(ctx, db, 5*time.Second); err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("database connection established")

		repo := repository.NewPostgresSessionRepo(db, codec)
		return &sessionStore{
			repo:   repo,
			purger: repo,
			checks: map[string]handler.HealthCheck{"database": db.PingContext},
			close:  func() { db.Close() },
		}, nil

	case config.SessionStoreRedis:
		opts, err := redisOptions(cfg)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established")

		return &sessionStore{
			repo: repository.NewRedisSessionRepo(client, codec),
			checks: map[string]handler.HealthCheck{
				"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
			},
			close: func() { client.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown session store: %q", cfg.SessionStore)
	}
}

// redisOptions はREDIS_URLからクライアント設定を作る。
// redis:// 形式のURLとhost:port形式の両方を受け付ける。
func redisOptions(cfg *config.Config) (*redis.Options, error) {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		if cfg.RedisPassword != "" {
			opts.Password = cfg.RedisPassword
		}
		return opts, nil
	}
	return &redis.Options{Addr: cfg.RedisURL, Password: cfg.RedisPassword}, nil
}

// newMetricsRegistry はアプリケーションのメトリクスとGo/プロセスのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// rateLimiterConfig はRATE_LIMIT_GENERAL（req/min）をreq/secに変換して反映する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	return rlCfg
}

// buildRouter は全依存関係をワイヤリングしてルーターを構築する。
func buildRouter(cfg *config.Config, store *sessionStore, reg *prometheus.Registry, collector *metrics.Collector, rateLimiter *middleware.RateLimiter) http.Handler {
	creds := cfg.FitbitCredentials()

	// 1. 認証
	oauthProvider := auth.NewFitbitOAuthProvider(auth.FitbitOAuthConfig{
		AuthURL:    cfg.FitbitAuthURL,
		TokenURL:   cfg.FitbitTokenURL,
		HTTPClient: &http.Client{Timeout: cfg.UpstreamTimeout},
	})
	authService := auth.NewService(oauthProvider, store.repo, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		Credentials:   creds,
	})
	gate := auth.NewGate(oauthProvider, store.repo, auth.GateConfig{
		Credentials: creds,
		Sources:     auth.DefaultTokenSources(cfg.AllowQueryToken),
	}, collector)

	// 2. Fitbit APIクライアントとダッシュボード
	client := fitbit.NewClient(fitbit.Config{
		BaseURL:          cfg.FitbitAPIBaseURL,
		Timeout:          cfg.UpstreamTimeout,
		RequestsPerHour:  cfg.UpstreamRateLimitPerHour,
		SleepConcurrency: cfg.SleepFanoutConcurrency,
	}, collector, security.NewTextSanitizer(), slog.Default())
	dashboardService := dashboard.NewService(client)

	// 3. ルーター
	return handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		SessionFinder:     store.repo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			DashboardPath: cfg.DashboardPath,
			LoginPath:     cfg.LoginPath,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
			DynamicSetup:  cfg.DynamicSetup,
		},

		Gate:             gate,
		DashboardService: dashboardService,

		HealthChecks:   store.checks,
		MetricsHandler: metrics.Handler(reg),
	})
}

// runServe はAPIサーバーモードで起動する。
// セッションストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openSessionStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.close()

	reg, collector := newMetricsRegistry()
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	// メモリストアは別プロセスのworkerから削除できないため、サーバー内で定期削除する
	if cfg.SessionStore == config.SessionStoreMemory {
		go cleanup.NewCleanupJob(store.purger, slog.Default(), cfg.SessionCleanupInterval).Start(ctx)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      buildRouter(cfg, store, reg, collector, rateLimiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // 睡眠時系列の並行取得を考慮
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの定期削除を実行する。ストアの検証はRunで済ませている。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openSessionStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.close()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanup.NewCleanupJob(store.purger, slog.Default(), cfg.SessionCleanupInterval).Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
