// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, group, gateway, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeSessionExpired      = "SESSION_EXPIRED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	ErrCodeDuplicateGroup      = "DUPLICATE_GROUP"
	ErrCodeTransferRequired    = "TRANSFER_REQUIRED"
	ErrCodeGroupLimit          = "GROUP_LIMIT"
	ErrCodeGroupNotFound       = "GROUP_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeChatSessionNotFound = "CHAT_SESSION_NOT_FOUND"
	ErrCodeInstanceNotFound    = "INSTANCE_NOT_FOUND"
	ErrCodeGatewayTimeout      = "GATEWAY_TIMEOUT"
	ErrCodeGatewayError        = "GATEWAY_ERROR"
	ErrCodeWebhookUnavailable  = "WEBHOOK_UNAVAILABLE"
)

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSessionExpiredError はセッション期限切れエラーを生成する。
// このコードを受け取ったクライアントはローカル状態を破棄してログイン画面へ遷移する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メールアドレスの存在有無を推測されないよう、原因を区別しない単一メッセージを返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewDuplicateGroupError は同一モードでのグループ重複登録エラーを生成する。
func NewDuplicateGroupError(nomeGrupo string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateGroup,
		Message:  fmt.Sprintf("グループ「%s」は既にこのモードで登録されています。", nomeGrupo),
		Category: "group",
		Action:   "登録済みグループ一覧を確認してください。",
	}
}

// NewTransferRequiredError は反対モードに登録済みのグループに対する
// 移行確認要求を生成する。新しい行は作成されない。
func NewTransferRequiredError(grupoID string) *APIError {
	return &APIError{
		Code:     ErrCodeTransferRequired,
		Message:  fmt.Sprintf("このグループは反対のモードで登録済みです: %s", grupoID),
		Category: "group",
		Action:   "モードを移行する場合は移行操作を確定してください。",
	}
}

// NewGroupLimitError はグループ登録上限エラーを生成する。
func NewGroupLimitError(maxGrupos int) *APIError {
	return &APIError{
		Code:     ErrCodeGroupLimit,
		Message:  fmt.Sprintf("グループ登録数が上限（%d件）に達しています。", maxGrupos),
		Category: "group",
		Action:   "不要なグループを削除するか、プランをアップグレードしてください。",
	}
}

// NewGroupNotFoundError はグループ未検出エラーを生成する。
func NewGroupNotFoundError(grupoID string) *APIError {
	return &APIError{
		Code:     ErrCodeGroupNotFound,
		Message:  fmt.Sprintf("指定されたグループが見つかりません: %s", grupoID),
		Category: "group",
		Action:   "グループIDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewChatSessionNotFoundError はチャットセッション未検出エラーを生成する。
func NewChatSessionNotFoundError(sessaoID string) *APIError {
	return &APIError{
		Code:     ErrCodeChatSessionNotFound,
		Message:  fmt.Sprintf("指定されたチャットセッションが見つかりません: %s", sessaoID),
		Category: "validation",
		Action:   "セッションIDを確認してください。",
	}
}

// NewInstanceNotFoundError はゲートウェイ側にインスタンスが存在しない場合のエラーを生成する。
func NewInstanceNotFoundError(instance string) *APIError {
	return &APIError{
		Code:     ErrCodeInstanceNotFound,
		Message:  fmt.Sprintf("WhatsAppインスタンスが見つかりません: %s", instance),
		Category: "gateway",
		Action:   "インスタンス名を確認し、接続設定をやり直してください。",
	}
}

// NewGatewayTimeoutError はゲートウェイ呼び出しのタイムアウトエラーを生成する。
// 呼び出し元はこのコードでリトライ対象かを判定するため、一般エラーと区別する。
func NewGatewayTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeGatewayTimeout,
		Message:  "WhatsAppゲートウェイへのリクエストがタイムアウトしました。",
		Category: "gateway",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewGatewayError はゲートウェイからのエラー応答を表すエラーを生成する。
func NewGatewayError(statusCode int) *APIError {
	return &APIError{
		Code:     ErrCodeGatewayError,
		Message:  fmt.Sprintf("WhatsAppゲートウェイがステータス %d を返しました。", statusCode),
		Category: "gateway",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewWebhookUnavailableError は自動化Webhookへの到達失敗エラーを生成する。
func NewWebhookUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeWebhookUnavailable,
		Message:  "アシスタントサービスに接続できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
