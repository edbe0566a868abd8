package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/tasktracker/internal/metrics"
	"github.com/hitoshi/tasktracker/internal/middleware"
)

// RequestGate は認証・流量制限・冪等再生をまとめたゲートのインターフェース。
// gate.Gateが満たす。
type RequestGate interface {
	middleware.Authenticator
	middleware.Admitter
	middleware.Replayer
}

// HealthChecker は依存先（DBなど）の疎通を確認する関数。
type HealthChecker func(ctx context.Context) error

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Gate              RequestGate
	AuthThrottle      *middleware.IPThrottle
	InternalAPIKey    string
	CORSAllowedOrigin string
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	HealthCheck       HealthChecker

	// サービス
	AuthService    AuthServiceInterface
	UserService    UserServiceInterface
	ProjectService ProjectServiceInterface
	TaskService    TaskServiceInterface
	CommentService CommentServiceInterface
	Stats          StatsReader
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Logging → Recovery → SecurityHeaders → CORS
//	  /api/v1/auth/*   : IPThrottle
//	  /api/internal/*  : InternalKey
//	  その他の /api/*  : Auth → Admission → Idempotency
//
// /health と /metrics はゲートの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var loggingOpts []middleware.LoggingOption
	if deps.Metrics != nil {
		loggingOpts = append(loggingOpts, middleware.WithRequestMetrics(deps.Metrics))
	}

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, loggingOpts...))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "NOT_FOUND", "message": "not found"})
	})

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService)
	projectHandler := NewProjectHandler(deps.ProjectService)
	taskV1 := NewTaskHandler(deps.TaskService, APIv1)
	taskV2 := NewTaskHandler(deps.TaskService, APIv2)
	commentHandler := NewCommentHandler(deps.CommentService)
	statsHandler := NewStatsHandler(deps.Stats)

	// --- ゲート外のルート ---

	r.Get("/health", healthHandler(deps.HealthCheck))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 認証ルート（トークン不要、クライアントIPごとに制限）
	r.Route("/api/v1/auth", func(r chi.Router) {
		if deps.AuthThrottle != nil {
			r.Use(deps.AuthThrottle.Middleware())
		}
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
	})

	// 内部API（X-Internal-Keyで保護）
	r.Route("/api/internal", func(r chi.Router) {
		r.Use(middleware.NewInternalKeyMiddleware(deps.InternalAPIKey))
		r.Get("/stats", statsHandler.Get)
	})

	// --- ゲートを通過するルート ---
	// ミドルウェアスタック: Auth → Admission → Idempotency
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Gate))
		r.Use(middleware.NewAdmissionMiddleware(deps.Gate))
		r.Use(middleware.NewIdempotencyMiddleware(deps.Gate))

		r.Route("/api/v1", func(r chi.Router) {
			// ユーザー管理
			r.Route("/users", func(r chi.Router) {
				r.Get("/me", userHandler.Me)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", userHandler.Get)
					r.Patch("/", userHandler.Update)
					r.Delete("/", userHandler.Withdraw)
				})
			})

			// プロジェクト管理
			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projectHandler.List)
				r.Post("/", projectHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", projectHandler.Get)
					r.Patch("/", projectHandler.Update)
					r.Delete("/", projectHandler.Delete)

					r.Get("/tasks", taskV1.List)
					r.Post("/tasks", taskV1.Create)
				})
			})

			// タスク管理とコメント
			r.Route("/tasks/{id}", func(r chi.Router) {
				r.Get("/", taskV1.Get)
				r.Patch("/", taskV1.Update)
				r.Delete("/", taskV1.Delete)

				r.Route("/comments", func(r chi.Router) {
					r.Get("/", commentHandler.List)
					r.Post("/", commentHandler.Create)
					r.Patch("/{comment_id}", commentHandler.Update)
					r.Delete("/{comment_id}", commentHandler.Delete)
				})
			})
		})

		// v2はestimated_time_minutesを含むタスクAPI
		r.Route("/api/v2", func(r chi.Router) {
			r.Get("/projects/{id}/tasks", taskV2.List)
			r.Post("/projects/{id}/tasks", taskV2.Create)

			r.Route("/tasks/{id}", func(r chi.Router) {
				r.Get("/", taskV2.Get)
				r.Patch("/", taskV2.Update)
				r.Delete("/", taskV2.Delete)
			})
		})
	})

	return r
}

// healthHandler はヘルスチェックのハンドラーを返す。
// checkがエラーを返した場合は503を返す。
func healthHandler(check HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
