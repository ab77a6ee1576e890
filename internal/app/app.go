// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
// serve（APIサーバー）、worker（バックグラウンド同期）、migrate、
// healthcheckの各サブコマンドに対応する。
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/unifeed/internal/config"
	"github.com/hitoshi/unifeed/internal/database"
	"github.com/hitoshi/unifeed/internal/fetcher"
	"github.com/hitoshi/unifeed/internal/handler"
	"github.com/hitoshi/unifeed/internal/item"
	"github.com/hitoshi/unifeed/internal/logger"
	"github.com/hitoshi/unifeed/internal/metrics"
	"github.com/hitoshi/unifeed/internal/middleware"
	"github.com/hitoshi/unifeed/internal/repository"
	"github.com/hitoshi/unifeed/internal/resolver"
	"github.com/hitoshi/unifeed/internal/security"
	"github.com/hitoshi/unifeed/internal/source"
	syncpkg "github.com/hitoshi/unifeed/internal/sync"
	"github.com/hitoshi/unifeed/internal/worker/cleanup"
	fetchpkg "github.com/hitoshi/unifeed/internal/worker/fetch"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

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

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	sourceRepo := repository.NewPostgresSourceRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)
	itemStateRepo := repository.NewPostgresItemStateRepo(db)

	// 3. セキュリティ・メトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 4. フェッチクライアントとリゾルバーの初期化
	client := fetcher.NewClient(ssrfGuard, cfg.FetchTimeout, cfg.FetchMaxSize)

	rssResolver := resolver.NewRSSResolver(client)
	youtubeResolver := resolver.NewYouTubeResolver(client, collector)
	appleClient := resolver.NewAppleLookupClient(
		&http.Client{Timeout: cfg.FetchTimeout}, slog.Default(),
	)
	podcastResolver := resolver.NewPodcastResolver(
		client, appleClient, youtubeResolver, rssResolver, collector,
	)

	// 特定プラットフォームを先に、汎用RSSをキャッチオールとして最後に登録する
	registry := resolver.NewRegistry(youtubeResolver, podcastResolver, rssResolver)

	avatarFetcher := resolver.NewAvatarFetcher(ssrfGuard)

	// 5. ドメインサービスの初期化
	sourceService := source.NewService(sourceRepo, itemStateRepo, registry, avatarFetcher, slog.Default())
	itemService := item.NewService(itemRepo, itemStateRepo)
	itemStateService := item.NewStateService(itemRepo, itemStateRepo)

	upsertSvc := item.NewContentUpsertService(itemRepo, sanitizer)
	engine := syncpkg.NewEngine(client, sourceRepo, upsertSvc, collector, slog.Default(), syncpkg.Config{
		RecentWindow: cfg.RecentWindow,
	})
	syncService := syncpkg.NewService(engine, sourceRepo)

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter: middleware.NewRateLimiter(
			middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSourceReg),
		),
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:         slog.Default(),
		StatusObserver: collector.RecordHTTPStatus,
		MetricsHandler: metrics.Handler(promRegistry),

		SourceService:    sourceService,
		ItemService:      itemService,
		ItemStateService: itemStateService,
		SyncService:      syncService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、同期スケジューラとセッションクリーンアップジョブを起動する。
// メトリクスは専用ポートで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	sourceRepo := repository.NewPostgresSourceRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)

	// 3. 同期エンジンの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	client := fetcher.NewClient(ssrfGuard, cfg.FetchTimeout, cfg.FetchMaxSize)
	upsertSvc := item.NewContentUpsertService(itemRepo, sanitizer)
	engine := syncpkg.NewEngine(client, sourceRepo, upsertSvc, collector, slog.Default(), syncpkg.Config{
		RecentWindow: cfg.RecentWindow,
	})

	// 4. スケジューラとクリーンアップジョブの初期化
	scheduler := fetchpkg.NewScheduler(
		sourceRepo, engine, slog.Default(), cfg.SyncBatchLimit, cfg.SyncConcurrency,
	)
	cleanupJob := cleanup.NewSessionCleanupJob(sessionRepo, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
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
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Int("batch_limit", cfg.SyncBatchLimit),
		slog.Int("concurrency", cfg.SyncConcurrency),
	)

	// メトリクスを専用ポートで公開
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metrics.SetupMetricsRoute(promRegistry),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// セッションクリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 同期スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SyncInterval)

	slog.Info("worker stopped gracefully")
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
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
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
