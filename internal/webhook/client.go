// Package webhook は外部自動化Webhook（AIアシスタント・要約生成・通知）の
// クライアントを提供する。
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// chatTimeout はチャット応答のタイムアウト。
	chatTimeout = 60 * time.Second
	// summaryTimeout は要約生成のタイムアウト。
	summaryTimeout = 120 * time.Second
	// notifyTimeout は通知送信のタイムアウト。
	notifyTimeout = 15 * time.Second
)

// Config はWebhookエンドポイントの設定。空のURLはその機能が未設定である
// ことを意味し、呼び出し時にErrNotConfiguredを返す。
type Config struct {
	ChatURL    string
	SummaryURL string
	ResetURL   string
}

// ErrNotConfigured は対応するWebhook URLが設定されていない場合のエラー。
var ErrNotConfigured = fmt.Errorf("webhook URLが設定されていません")

// SummaryRequest は要約生成の依頼内容。
type SummaryRequest struct {
	UsuarioID      string `json:"usuario_id"`
	GrupoIDExterno string `json:"grupo_id_externo"`
	NomeGrupo      string `json:"nome_grupo"`
	TomLudico      bool   `json:"tom_ludico"`
	LimiteTokens   int    `json:"limite_tokens"`
	IncluirOntem   bool   `json:"incluir_dia_anterior"`
}

// Client は自動化Webhookのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
}

// NewClient はClient の新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
	}
}

// AskAssistant はユーザー入力をアシスタントWebhookへ転送し、応答テキストを返す。
func (c *Client) AskAssistant(ctx context.Context, usuarioID, input string) (string, error) {
	if c.config.ChatURL == "" {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	body, err := c.post(ctx, c.config.ChatURL, map[string]any{
		"usuario_id": usuarioID,
		"input":      input,
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		Response string `json:"response"`
		Output   string `json:"output"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("アシスタント応答のパースに失敗しました: %w", err)
	}
	// 自動化側のバージョンによりフィールド名が揺れる
	if payload.Response != "" {
		return payload.Response, nil
	}
	return payload.Output, nil
}

// GenerateSummary は要約生成Webhookを呼び出し、要約テキストを返す。
func (c *Client) GenerateSummary(ctx context.Context, req SummaryRequest) (string, error) {
	if c.config.SummaryURL == "" {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()

	body, err := c.post(ctx, c.config.SummaryURL, req)
	if err != nil {
		return "", err
	}

	var payload struct {
		Resumo string `json:"resumo"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("要約応答のパースに失敗しました: %w", err)
	}
	if payload.Resumo == "" {
		return "", fmt.Errorf("要約応答が空でした")
	}
	return payload.Resumo, nil
}

// SendPasswordReset はパスワードリセット通知の送信を依頼する。
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	if c.config.ResetURL == "" {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	_, err := c.post(ctx, c.config.ResetURL, map[string]any{"email": email})
	return err
}

// post はJSONボディをPOSTし、レスポンスボディを返す。
func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Webhookの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Webhookがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("webhookがステータス %d を返しました", resp.StatusCode)
	}

	return body, nil
}
