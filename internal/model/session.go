// Package model はドメインモデルを定義する。
package model

import "time"

// Session はユーザーのログインセッションを表す。
// IDがそのままbearerトークンとなり、Authorizationヘッダーで送信される。
type Session struct {
	ID        string
	UsuarioID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RemainingAt は指定時刻におけるセッションの残り有効時間を返す。
func (s *Session) RemainingAt(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}
