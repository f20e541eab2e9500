package middleware

import (
	"context"
	"net/http"
	"time"
)

// NewTimeoutMiddleware はリクエストコンテキストに期限を設定する
// ミドルウェアを返す。下流のストア・ゲートウェイ呼び出しはコンテキストを
// 通じて打ち切られ、呼び出し元がタイムアウト種別のエラーとして分類する。
// ゲートウェイのグループ一括取得だけは既知の遅さがあるため、該当ルートには
// 既定より長い期限を個別に設定する。
func NewTimeoutMiddleware(timeout time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
