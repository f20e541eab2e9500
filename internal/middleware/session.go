// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/intellizapp/resumefy/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// usuarioIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var usuarioIDContextKey = contextKey("usuario_id")

// sessionIDContextKey はリクエストコンテキストにセッションIDを格納するためのキー。
var sessionIDContextKey = contextKey("session_id")

// SessionValidator はセッションの検証に必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*model.Session, error)
}

// NewSessionMiddleware はAuthorizationヘッダのBearerトークンからセッションを
// 検証するミドルウェアを返す。認証済みユーザーIDとセッションIDをリクエスト
// コンテキストに注入する。
// トークン不在は401 UNAUTHORIZED、期限切れ・無効は401 SESSION_EXPIREDを返す。
// SESSION_EXPIREDはクライアントにローカル認証状態の破棄とログイン画面への
// 遷移を指示する合図になる。
func NewSessionMiddleware(validator SessionValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := validator.Validate(r.Context(), token)
			if err != nil {
				slog.Error("failed to validate session",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
				return
			}

			ctx := context.WithValue(r.Context(), usuarioIDContextKey, session.UsuarioID)
			ctx = context.WithValue(ctx, sessionIDContextKey, session.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダからBearerトークンを取り出す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// UsuarioIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UsuarioIDFromContext(ctx context.Context) (string, error) {
	usuarioID, ok := ctx.Value(usuarioIDContextKey).(string)
	if !ok || usuarioID == "" {
		return "", fmt.Errorf("usuario ID not found in context")
	}
	return usuarioID, nil
}

// SessionIDFromContext はリクエストコンテキストからセッションIDを取得する。
func SessionIDFromContext(ctx context.Context) (string, error) {
	sessionID, ok := ctx.Value(sessionIDContextKey).(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return sessionID, nil
}

// ContextWithUsuarioID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUsuarioID(ctx context.Context, usuarioID string) context.Context {
	return context.WithValue(ctx, usuarioIDContextKey, usuarioID)
}

// ContextWithSessionID はコンテキストにセッションIDを注入する。
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}
