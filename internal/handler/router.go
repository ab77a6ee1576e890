package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/unifeed/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	// StatusObserver はレスポンスステータスコードをメトリクスに記録するフック。
	// nilの場合は記録しない。
	StatusObserver middleware.StatusObserver
	// MetricsHandler はPrometheusスクレイプ用ハンドラー。nilの場合は公開しない。
	MetricsHandler http.Handler

	// ソース
	SourceService SourceServiceInterface

	// コンテンツ
	ItemService      ItemServiceInterface
	ItemStateService ItemStateServiceInterface

	// 同期
	SyncService SyncServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery → (CSRF → Session → RateLimit)
//
// ヘルスチェックとCSRFトークン発行は認証ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusObserver))
	r.Use(middleware.NewRecoveryMiddleware())

	sourceHandler := NewSourceHandler(deps.SourceService)
	itemHandler := NewItemHandler(deps.ItemService, deps.ItemStateService)
	syncHandler := NewSyncHandler(deps.SyncService)

	// --- 認証不要のルート ---

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// CSRFトークン発行（Cookieの発行も兼ねる）
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: CSRF → Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ソース管理
		r.Route("/api/sources", func(r chi.Router) {
			// POST /api/sources - ソース登録（登録専用レート制限を追加）
			r.With(deps.RateLimiter.SourceRegistrationMiddleware()).Post("/", sourceHandler.RegisterSource)
			r.Get("/", sourceHandler.ListSources)

			// 手動同期（静的パスはワイルドカードより先にマッチする）
			r.Post("/sync", syncHandler.SyncAll)
			r.Post("/sync/full", syncHandler.SyncAllFull)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sourceHandler.GetSource)
				r.Delete("/", sourceHandler.DeleteSource)
				r.Post("/resume", sourceHandler.ResumeFetch)
				r.Post("/sync", syncHandler.SyncSource)

				// GET /api/sources/{id}/items - ソースごとのコンテンツ一覧
				r.Get("/items", itemHandler.ListItems)
			})
		})

		// コンテンツ管理
		r.Route("/api/items/{id}", func(r chi.Router) {
			r.Get("/", itemHandler.GetItem)
			r.Put("/state", itemHandler.UpdateItemState)
		})
	})

	return r
}
