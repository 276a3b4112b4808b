package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/semesterswap/internal/metrics"
	"github.com/hitoshi/semesterswap/internal/middleware"
)

// HealthChecker はヘルスチェックでストアへの疎通を確認するインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 運用
	Logger         *slog.Logger
	HealthChecker  HealthChecker
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService   AuthServiceInterface
	AuthConfig    AuthHandlerConfig
	GoogleEnabled bool

	// ページ
	ViewBuilder ViewBuilder
	Profiles    ProfileFinder

	// 書き込み
	Mutations  MutationService
	ItemConfig ItemHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → CORS → Session → CSRF
//
// セッションミドルウェアは未認証のリクエストも通す。拒否はページガードと
// RequireAuth/RequireAdminがルートグループごとに行う。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(m))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// GET /health - 認証不要
	r.Get("/health", healthHandler(deps.HealthChecker))

	// GET /metrics - Prometheus
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	pageHandler := NewPageHandler(deps.ViewBuilder, deps.Profiles, PageHandlerConfig{
		AllowedOrigin: deps.CORSAllowedOrigin,
	})
	itemHandler := NewItemHandler(deps.Mutations, deps.ItemConfig)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// GET /api/csrf-token
		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.PasswordLogin)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)

			if deps.GoogleEnabled {
				r.Get("/google/login", authHandler.Login)
				r.Get("/google/callback", authHandler.Callback)
			}
		})

		// ページ: ガードの判定結果をJSONで返すため、RequireAuthは使わない
		r.With(PageGuard).Get("/api/pages/{page}", pageHandler.GetPage)
		r.With(PageGuard).Get("/api/live/{page}", pageHandler.Live)

		// 認証が必要なAPI
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireAuthMiddleware())
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// GET /api/profile - 出品フォームの初期値
			r.Get("/api/profile", pageHandler.GetProfile)

			r.Route("/api/items", func(r chi.Router) {
				// POST /api/items - 出品作成（出品専用レート制限を追加）
				r.With(deps.RateLimiter.ListingMiddleware()).Post("/", itemHandler.CreateListing)

				r.Route("/{id}", func(r chi.Router) {
					r.Delete("/", itemHandler.DeleteListing)
					r.Post("/sold", itemHandler.MarkSold)
					r.Post("/save", itemHandler.Save)
					r.Delete("/save", itemHandler.Unsave)
					r.Post("/reports", itemHandler.Report)
				})
			})

			// 管理者専用
			r.Route("/api/admin", func(r chi.Router) {
				r.Use(middleware.NewRequireAdminMiddleware())
				r.Delete("/items/{id}", itemHandler.AdminDeleteListing)
				r.Delete("/reports/{id}", itemHandler.DismissReport)
			})
		})
	})

	return r
}

// healthHandler はストアへの疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
