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
	"golang.org/x/time/rate"

	"github.com/intellizapp/resumefy/internal/auth"
	"github.com/intellizapp/resumefy/internal/config"
	"github.com/intellizapp/resumefy/internal/database"
	"github.com/intellizapp/resumefy/internal/evolution"
	"github.com/intellizapp/resumefy/internal/group"
	"github.com/intellizapp/resumefy/internal/handler"
	"github.com/intellizapp/resumefy/internal/intellichat"
	"github.com/intellizapp/resumefy/internal/logger"
	"github.com/intellizapp/resumefy/internal/metrics"
	"github.com/intellizapp/resumefy/internal/middleware"
	"github.com/intellizapp/resumefy/internal/repository"
	"github.com/intellizapp/resumefy/internal/security"
	"github.com/intellizapp/resumefy/internal/session"
	"github.com/intellizapp/resumefy/internal/user"
	"github.com/intellizapp/resumefy/internal/webhook"
	"github.com/intellizapp/resumefy/internal/worker/cleanup"
	summarypkg "github.com/intellizapp/resumefy/internal/worker/summary"
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
		slog.String("env", cfg.Env),
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

// validateOutboundURLs は設定された外部接続先URLを起動時に検証する。
// Webhookとゲートウェイの両方が対象。未設定（空文字列）は許容し、
// 設定済みで危険なURLのみ拒否する。
func validateOutboundURLs(guard security.SSRFGuardService, cfg *config.Config) error {
	for name, rawURL := range map[string]string{
		"WEBHOOK_CHAT_URL":    cfg.WebhookChatURL,
		"WEBHOOK_SUMMARY_URL": cfg.WebhookSummaryURL,
		"WEBHOOK_RESET_URL":   cfg.WebhookResetURL,
		"EVOLUTION_API_URL":   cfg.EvolutionAPIURL,
	} {
		if rawURL == "" {
			continue
		}
		if err := guard.ValidateURL(rawURL); err != nil {
			return fmt.Errorf("%s is not a safe URL: %w", name, err)
		}
	}
	return nil
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
	usuarioRepo := repository.NewPostgresUsuarioRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	grupoRepo := repository.NewPostgresGrupoRepo(db)
	chatRepo := repository.NewPostgresChatRepo(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	if err := validateOutboundURLs(ssrfGuard, cfg); err != nil {
		return err
	}
	sanitizer := security.NewContentSanitizer()

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. 外部コラボレータの初期化
	// 外向きHTTPはすべてSSRFガード付きクライアントを通す
	webhookClient := webhook.NewClient(
		ssrfGuard.NewSafeClient(0), // 操作ごとのタイムアウトはクライアント側のcontextで制御
		slog.Default(),
		webhook.Config{
			ChatURL:    cfg.WebhookChatURL,
			SummaryURL: cfg.WebhookSummaryURL,
			ResetURL:   cfg.WebhookResetURL,
		},
	)

	evolutionClient := evolution.NewClient(
		ssrfGuard.NewSafeClient(0), slog.Default(), collector,
		cfg.EvolutionAPIURL, cfg.EvolutionAPIKey,
	)
	groupCache := evolution.NewGroupCache(cfg.GroupCacheTTL)
	evolutionService := evolution.NewService(evolutionClient, groupCache)

	// 6. ドメインサービスの初期化
	authService := auth.NewService(
		usuarioRepo, sessionRepo, webhookClient,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	sessionManager := session.NewManager(sessionRepo, cfg.SessionMaxAge, cfg.SessionRefreshMargin)
	grupoService := group.NewService(grupoRepo, usuarioRepo)
	userService := user.NewService(usuarioRepo, sessionRepo)
	chatService := intellichat.NewService(chatRepo, webhookClient, sanitizer, collector, cfg.IsDevelopment())

	// 7. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitGroupReg > 0 {
		rateLimiterCfg.GroupRegRate = rate.Limit(float64(cfg.RateLimitGroupReg) / 60.0)
		rateLimiterCfg.GroupRegBurst = cfg.RateLimitGroupReg
	}

	deps := &handler.RouterDeps{
		SessionValidator:  sessionManager,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),
		RequestTimeout:    cfg.RequestTimeout,
		IncludeStackTrace: cfg.IsDevelopment(),

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		AuthService:      authService,
		SessionRefresher: sessionManager,

		UserService: userService,

		GrupoService: grupoService,
		Metrics:      collector,

		EvolutionService: evolutionService,

		IntellichatService: chatService,
	}

	router := middleware.NewLoggingMiddleware(slog.Default())(handler.NewRouter(deps))

	// 8. HTTPサーバーの起動
	// WriteTimeoutはゲートウェイのグループ一括取得（最長180秒）を下回らないこと
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 190 * time.Second,
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
// DB接続を開き、要約スケジューラとクリーンアップジョブを起動する。
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
	usuarioRepo := repository.NewPostgresUsuarioRepo(db)
	grupoRepo := repository.NewPostgresGrupoRepo(db)
	chatRepo := repository.NewPostgresChatRepo(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	if err := validateOutboundURLs(ssrfGuard, cfg); err != nil {
		return err
	}
	sanitizer := security.NewContentSanitizer()

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. 外部コラボレータの初期化
	// 外向きHTTPはすべてSSRFガード付きクライアントを通す
	webhookClient := webhook.NewClient(
		ssrfGuard.NewSafeClient(0),
		slog.Default(),
		webhook.Config{
			ChatURL:    cfg.WebhookChatURL,
			SummaryURL: cfg.WebhookSummaryURL,
			ResetURL:   cfg.WebhookResetURL,
		},
	)

	evolutionClient := evolution.NewClient(
		ssrfGuard.NewSafeClient(0), slog.Default(), collector,
		cfg.EvolutionAPIURL, cfg.EvolutionAPIKey,
	)
	groupCache := evolution.NewGroupCache(cfg.GroupCacheTTL)
	evolutionService := evolution.NewService(evolutionClient, groupCache)

	// 6. 要約ジェネレータの初期化
	chatService := intellichat.NewService(chatRepo, webhookClient, sanitizer, collector, cfg.IsDevelopment())
	generator := summarypkg.NewGenerator(
		grupoRepo, usuarioRepo, webhookClient, evolutionService,
		chatService, sanitizer, collector, slog.Default(),
	)

	// 7. スケジューラの起動準備
	scheduler := summarypkg.NewScheduler(
		grupoRepo, generator, slog.Default(), cfg.SummaryMaxConcurrent,
	)

	// 8. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())

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
		slog.Duration("summary_interval", cfg.SummaryInterval),
		slog.Int("max_concurrent", cfg.SummaryMaxConcurrent),
	)

	// 運用エンドポイント（/health, /metrics）をバックグラウンドで公開する
	opsServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      metrics.SetupMetricsRoute(registry, db),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("worker ops server starting",
			slog.String("addr", opsServer.Addr),
		)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops server listen error", slog.String("error", err.Error()))
		}
	}()

	// クリーンアップジョブを日次でバックグラウンド実行
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

	// 要約スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SummaryInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("ops server shutdown failed", slog.String("error", err.Error()))
	}

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
