package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	GroupRegRate    rate.Limit    // グループ登録のレート（req/sec）。10/60
	GroupRegBurst   int           // グループ登録のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、グループ登録 10 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		GroupRegRate:    rate.Limit(10.0 / 60.0), // ~0.167 req/sec
		GroupRegBurst:   10,
		CleanupInterval: 5 * time.Minute,
	}
}

// usuarioLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type usuarioLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般のレート制限とグループ登録のレート制限の2種類を提供する。
// グループ登録は重複・転送判定のためストア照会を複数回伴うので、
// 独立した狭いレーンで守る。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*usuarioLimiter

	groupRegMu       sync.RWMutex
	groupRegLimiters map[string]*usuarioLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:           config,
		generalLimiters:  make(map[string]*usuarioLimiter),
		groupRegLimiters: make(map[string]*usuarioLimiter),
		stopCh:           make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにユーザーIDが含まれている必要がある（SessionMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			usuarioID, err := UsuarioIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreateGeneralLimiter(usuarioID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("usuario_id", usuarioID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GroupRegistrationMiddleware はグループ登録専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) GroupRegistrationMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			usuarioID, err := UsuarioIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreateGroupRegLimiter(usuarioID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GroupRegRate)
				slog.Warn("rate limit exceeded",
					slog.String("usuario_id", usuarioID),
					slog.String("limit_type", "group_registration"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// GroupRegLimiterCount は現在管理されているグループ登録リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GroupRegLimiterCount() int {
	rl.groupRegMu.RLock()
	defer rl.groupRegMu.RUnlock()
	return len(rl.groupRegLimiters)
}

// getOrCreateGeneralLimiter はユーザーのAPI全般リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(usuarioID string) *rate.Limiter {
	rl.generalMu.RLock()
	ul, exists := rl.generalLimiters[usuarioID]
	rl.generalMu.RUnlock()

	if exists {
		rl.generalMu.Lock()
		ul.lastAccess = time.Now()
		rl.generalMu.Unlock()
		return ul.limiter
	}

	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()

	// ダブルチェック
	if ul, exists := rl.generalLimiters[usuarioID]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.generalLimiters[usuarioID] = &usuarioLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// getOrCreateGroupRegLimiter はユーザーのグループ登録リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGroupRegLimiter(usuarioID string) *rate.Limiter {
	rl.groupRegMu.RLock()
	ul, exists := rl.groupRegLimiters[usuarioID]
	rl.groupRegMu.RUnlock()

	if exists {
		rl.groupRegMu.Lock()
		ul.lastAccess = time.Now()
		rl.groupRegMu.Unlock()
		return ul.limiter
	}

	rl.groupRegMu.Lock()
	defer rl.groupRegMu.Unlock()

	// ダブルチェック
	if ul, exists := rl.groupRegLimiters[usuarioID]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rl.config.GroupRegRate, rl.config.GroupRegBurst)
	rl.groupRegLimiters[usuarioID] = &usuarioLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.generalMu.Lock()
	for usuarioID, ul := range rl.generalLimiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.generalLimiters, usuarioID)
		}
	}
	rl.generalMu.Unlock()

	rl.groupRegMu.Lock()
	for usuarioID, ul := range rl.groupRegLimiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.groupRegLimiters, usuarioID)
		}
	}
	rl.groupRegMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(ErrorResponseBody{
		Success: false,
		Code:    "RATE_LIMIT_EXCEEDED",
		Message: "リクエストが多すぎます。しばらく待ってから再度お試しください。",
		Action:  "Retry-Afterヘッダの秒数だけ待ってから再試行してください。",
	})
}
