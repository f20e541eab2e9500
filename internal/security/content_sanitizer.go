// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は外部Webhookが返すテキスト（要約・チャット応答）を
// サニタイズする。応答はプレーンテキストとして扱うため、bluemondayの
// StrictPolicyで全てのHTMLタグを除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はWebhook応答テキストのサニタイズ機能の
// インターフェースを定義する。保存前および配送前に使用される。
type ContentSanitizerService interface {
	// Sanitize はテキストから全てのHTMLタグを除去して返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 要約やチャット応答はWhatsAppやチャットUIへプレーンテキストとして
// 配送されるため、許可タグなしのStrictPolicyを使用する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストから全てのHTMLタグを除去して返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
