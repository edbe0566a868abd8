package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/tasktracker/internal/auth"
	"github.com/hitoshi/tasktracker/internal/authz"
	"github.com/hitoshi/tasktracker/internal/comment"
	"github.com/hitoshi/tasktracker/internal/config"
	"github.com/hitoshi/tasktracker/internal/database"
	"github.com/hitoshi/tasktracker/internal/gate"
	"github.com/hitoshi/tasktracker/internal/handler"
	"github.com/hitoshi/tasktracker/internal/idempotency"
	"github.com/hitoshi/tasktracker/internal/logger"
	"github.com/hitoshi/tasktracker/internal/metrics"
	"github.com/hitoshi/tasktracker/internal/middleware"
	"github.com/hitoshi/tasktracker/internal/project"
	"github.com/hitoshi/tasktracker/internal/ratelimit"
	"github.com/hitoshi/tasktracker/internal/repository"
	"github.com/hitoshi/tasktracker/internal/security"
	"github.com/hitoshi/tasktracker/internal/task"
	"github.com/hitoshi/tasktracker/internal/user"
	"github.com/hitoshi/tasktracker/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば環境変数に読み込み、Configを読み込んでJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envは任意。既に設定済みの環境変数は上書きしない
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("unknown LOG_LEVEL, using info", slog.String("log_level", cfg.LogLevel))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

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

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// stateStores はゲートが使う流量カウンタと冪等性記録のストア。
// REDIS_URLが設定されていればRedis、なければプロセス内メモリに保持する。
type stateStores struct {
	rate        ratelimit.Store
	idempotency idempotency.Store
	redis       *redis.Client
}

// newStateStores はcfgに従ってストアを生成する。
func newStateStores(cfg *config.Config) (*stateStores, error) {
	if cfg.RedisURL == "" {
		return &stateStores{
			rate:        ratelimit.NewMemoryStore(),
			idempotency: idempotency.NewMemoryStore(cfg.StateSweepInterval),
		}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return &stateStores{
		rate:        ratelimit.NewRedisStore(client),
		idempotency: idempotency.NewRedisStore(client),
		redis:       client,
	}, nil
}

// Close は外部ストアへの接続を閉じる。
func (s *stateStores) Close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

// backend はログ用のストア種別を返す。
func (s *stateStores) backend() string {
	if s.redis != nil {
		return "redis"
	}
	return "memory"
}

// server はserveモードで起動する構成一式。
type server struct {
	handler  http.Handler
	stores   *stateStores
	throttle *middleware.IPThrottle
	sweeper  *cleanup.Job
}

// close は起動時に生成したリソースを解放する。
func (s *server) close() {
	s.throttle.Stop()
	if err := s.stores.Close(); err != nil {
		slog.Warn("failed to close state stores", slog.String("error", err.Error()))
	}
}

// buildServer は全依存関係をワイヤリングしてserverを構築する。
func buildServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*server, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	projectRepo := repository.NewPostgresProjectRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	statsRepo := repository.NewPostgresStatsRepo(db)

	// 2. ゲートの初期化
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     cfg.SecretKey,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	stores, err := newStateStores(cfg)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(reg)
	limiter := ratelimit.New(stores.rate, ratelimit.Config{Limit: cfg.RateLimit, Window: cfg.RateLimitWindow})
	cache := idempotency.New(stores.idempotency, cfg.IdempotencyTTL)
	requestGate := gate.New(tokens, userRepo, limiter, cache, gate.WithMetrics(collector))

	// 3. ドメインサービスの初期化
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	resolver := authz.NewResolver(authz.RepositoryFacts(projectRepo, taskRepo))
	sanitizer := security.NewContentSanitizer()

	throttle := middleware.NewIPThrottle(middleware.PerMinute(cfg.AuthRateLimit, cfg.StateSweepInterval))

	// 4. ルーターの構築
	deps := &handler.RouterDeps{
		Gate:              requestGate,
		AuthThrottle:      throttle,
		InternalAPIKey:    cfg.InternalAPIKey,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		HealthCheck:       db.PingContext,

		AuthService:    auth.NewService(userRepo, tokens, hasher),
		UserService:    user.NewService(userRepo, hasher),
		ProjectService: project.NewService(projectRepo, resolver, sanitizer),
		TaskService:    task.NewService(taskRepo, commentRepo, resolver, sanitizer),
		CommentService: comment.NewService(commentRepo, resolver, sanitizer),
		Stats:          statsRepo,
	}

	// 5. 掃除ジョブの初期化
	sweeper := cleanup.NewJob(slog.Default(), collector,
		cleanup.Target{Name: "ratelimit", Sweeper: limiter},
		cleanup.Target{Name: "idempotency", Sweeper: cache},
	)

	return &server{
		handler:  handler.NewRouter(deps),
		stores:   stores,
		throttle: throttle,
		sweeper:  sweeper,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 依存関係の構築
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := buildServer(cfg, db, reg)
	if err != nil {
		return err
	}
	defer srv.close()

	slog.Info("request gate ready",
		slog.String("state_backend", srv.stores.backend()),
		slog.Int("rate_limit", cfg.RateLimit),
		slog.Duration("rate_limit_window", cfg.RateLimitWindow),
	)

	// 3. 掃除ジョブをバックグラウンドで起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.sweeper.Start(ctx, cfg.StateSweepInterval)

	// 4. HTTPサーバーの起動
	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
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
