package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/semesterswap/internal/auth"
	"github.com/hitoshi/semesterswap/internal/config"
	"github.com/hitoshi/semesterswap/internal/database"
	"github.com/hitoshi/semesterswap/internal/dispatcher"
	"github.com/hitoshi/semesterswap/internal/guard"
	"github.com/hitoshi/semesterswap/internal/handler"
	"github.com/hitoshi/semesterswap/internal/logger"
	"github.com/hitoshi/semesterswap/internal/metrics"
	"github.com/hitoshi/semesterswap/internal/middleware"
	"github.com/hitoshi/semesterswap/internal/realtime"
	"github.com/hitoshi/semesterswap/internal/repository"
	"github.com/hitoshi/semesterswap/internal/security"
	"github.com/hitoshi/semesterswap/internal/storage"
	"github.com/hitoshi/semesterswap/internal/view"
	"github.com/hitoshi/semesterswap/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		writeUsage(w)
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

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーと変更通知リスナーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)
	savedRepo := repository.NewPostgresSavedItemRepo(db)
	reportRepo := repository.NewPostgresReportRepo(db)
	salesRepo := repository.NewPostgresSalesRepo(db)

	// 4. 変更通知: LISTEN/NOTIFY → Hub → 各ページのSynchronizer
	hub := realtime.NewHub(func(e realtime.Event) {
		collector.RecordNotification(e.Table)
	})
	listener := realtime.NewListener(cfg.DatabaseURL, hub)
	go func() {
		if err := listener.Run(ctx); err != nil {
			slog.Error("change listener stopped", slog.String("error", err.Error()))
		}
	}()

	// 5. 画像ストレージ
	store, err := storage.NewMinioStore(storage.Config{
		Endpoint:      cfg.MinioEndpoint,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		Bucket:        cfg.MinioBucket,
		UseSSL:        cfg.MinioUseSSL,
		PublicBaseURL: cfg.MinioPublicBaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		// バケットが用意できなくても閲覧系は動作するため起動は続ける
		slog.Warn("object store bucket not ready", slog.String("error", err.Error()))
	}

	// 6. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		HostedDomain: cfg.GoogleHostedDomain,
	})
	authService := auth.NewService(
		oauthProvider, profileRepo, identRepo, sessionRepo,
		auth.ServiceConfig{
			SessionMaxAge: cfg.SessionMaxAge,
			AllowedDomain: cfg.GoogleHostedDomain,
		},
	)

	sessionGuard := guard.New(sessionRepo, profileRepo)

	viewBuilder := view.NewBuilder(view.Deps{
		Profiles: profileRepo,
		Items:    itemRepo,
		Saved:    savedRepo,
		Reports:  reportRepo,
		Sales:    salesRepo,
	}, hub, collector)

	mutations := dispatcher.New(dispatcher.Deps{
		Profiles:  profileRepo,
		Items:     itemRepo,
		Saved:     savedRepo,
		Reports:   reportRepo,
		Store:     store,
		Sanitizer: security.NewTextSanitizer(),
		Notifier:  hub,
		Metrics:   collector,
	})

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitListing),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:         slog.Default(),
		HealthChecker:  db,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),

		SessionResolver:   sessionGuard,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		GoogleEnabled: cfg.GoogleEnabled(),

		ViewBuilder: viewBuilder,
		Profiles:    profileRepo,

		Mutations:  mutations,
		ItemConfig: handler.ItemHandlerConfig{MaxUploadSize: cfg.MaxUploadSize},
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	// WebSocket接続はUpgrade時にデッドラインが解除されるため、WriteTimeoutの影響を受けない
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Bool("google_login", cfg.GoogleEnabled()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	// リスナーとライブ接続のSynchronizerを先に止める
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションの定期削除を実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	cleanupJob := cleanup.NewSessionCleanupJob(db, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)

	runPeriodically(ctx, cfg.SessionCleanupInterval, func(ctx context.Context) {
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("session cleanup job failed", slog.String("error", err.Error()))
		}
	})

	slog.Info("worker stopped gracefully")
	return nil
}

// runPeriodically は起動直後に1回、その後intervalごとにjobを実行する。ctxのキャンセルで戻る。
func runPeriodically(ctx context.Context, interval time.Duration, job func(ctx context.Context)) {
	job(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
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
