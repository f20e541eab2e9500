// Package model はドメインモデルを定義する。
package model

import "time"

// MessageRole はチャットメッセージの発話者を表す。
type MessageRole string

const (
	// RoleUser はユーザーの発話。
	RoleUser MessageRole = "user"
	// RoleAssistant はアシスタントの応答。
	RoleAssistant MessageRole = "assistant"
)

// ChatSession はIntellichatの会話コンテナを表す。
// ユーザーごとにアクティブなセッションは常に1つ。
// 新規セッションの作成は同一ユーザーの既存セッションを全て非アクティブ化する。
type ChatSession struct {
	ID        string
	UsuarioID string
	Titulo    string
	Ativa     bool
	CriadoEm  time.Time
}

// ChatMessage はセッションに属するメッセージを表す。作成時刻順に並ぶ。
type ChatMessage struct {
	ID       string
	SessaoID string
	Role     MessageRole
	Conteudo string
	CriadoEm time.Time
}
