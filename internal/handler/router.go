package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/intellizapp/resumefy/internal/middleware"
)

// groupFetchRouteTimeout はゲートウェイのグループ一括取得ルート専用の
// リクエスト期限。この操作は既知の遅さがあるため、既定の期限とは別に適用する。
const groupFetchRouteTimeout = 180 * time.Second

// HealthChecker はヘルスチェックに必要なインターフェース。実体は*sql.DB。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionValidator  middleware.SessionValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	RequestTimeout    time.Duration
	IncludeStackTrace bool

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService      AuthServiceInterface
	SessionRefresher SessionRefresher

	// ユーザー
	UserService UserServiceInterface

	// グループ
	GrupoService GrupoServiceInterface
	Metrics      QuotaRejectionRecorder

	// ゲートウェイ
	EvolutionService EvolutionServiceInterface

	// チャット
	IntellichatService IntellichatServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → SecurityHeaders → Logging → [Session → RateLimit → Timeout]
//
// 認証不要ルート（登録・ログイン・パスワードリセット）はセッション
// ミドルウェアの外に配置する。ロギングミドルウェアはapp層でサーバー全体に
// 適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.IncludeStackTrace))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	requestTimeout := deps.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 30 * time.Second
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionRefresher)
	userHandler := NewUserHandler(deps.UserService)
	grupoHandler := NewGrupoHandler(deps.GrupoService, deps.Metrics)
	evolutionHandler := NewEvolutionHandler(deps.EvolutionService)
	chatHandler := NewIntellichatHandler(deps.IntellichatService)

	// --- 認証不要のルート ---

	// ヘルスチェック（Dockerヘルスチェックおよび外形監視用）
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	// Prometheusスクレイプ
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTimeoutMiddleware(requestTimeout))

		r.Route("/api/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/forgot-password", authHandler.ForgotPassword)
		})
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → Timeout
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionValidator))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewTimeoutMiddleware(requestTimeout))

		// セッション管理
		r.Route("/api/auth", func(r chi.Router) {
			r.Get("/me", authHandler.Me)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
		})

		// プロフィール管理
		r.Route("/api/usuarios", func(r chi.Router) {
			r.Get("/me", userHandler.GetPerfil)
			r.Put("/me", userHandler.UpdatePerfil)
			r.Delete("/me", userHandler.Withdraw)
		})

		// グループ管理
		r.Route("/api/grupos", func(r chi.Router) {
			r.Get("/", grupoHandler.List)
			r.Get("/quota", grupoHandler.Quota)

			// POST /api/grupos - グループ登録（登録専用レート制限を追加）
			r.With(deps.RateLimiter.GroupRegistrationMiddleware()).Post("/", grupoHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", grupoHandler.Get)
				r.Put("/", grupoHandler.Update)
				r.Delete("/", grupoHandler.Delete)
				r.Post("/transfer", grupoHandler.Transfer)
			})
		})

		// ゲートウェイ照会
		r.Route("/api/evolution", func(r chi.Router) {
			r.Get("/status/{instanceName}", evolutionHandler.Status)
			// グループ一括取得は長い期限を個別適用
			r.With(middleware.NewTimeoutMiddleware(groupFetchRouteTimeout)).
				Get("/groups/{instanceName}", evolutionHandler.Groups)
		})

		// AIチャット
		r.Route("/api/intellichat", func(r chi.Router) {
			r.Post("/", chatHandler.Chat)
			r.Get("/sessions", chatHandler.ListSessions)
			r.Post("/sessions", chatHandler.StartSession)
			r.Get("/sessions/{id}/messages", chatHandler.ListMessages)
		})
	})

	return r
}
