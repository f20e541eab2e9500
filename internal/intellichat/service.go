// Package intellichat はAIアシスタントとのチャット機能を提供する。
// ユーザー入力の外部Webhookへの仲介と会話履歴の永続化を含む。
package intellichat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/intellizapp/resumefy/internal/model"
	"github.com/intellizapp/resumefy/internal/repository"
)

// Assistant はアシスタント応答の取得インターフェース。実体はwebhook.Client。
type Assistant interface {
	AskAssistant(ctx context.Context, usuarioID, input string) (string, error)
}

// Sanitizer はWebhook応答テキストのサニタイズインターフェース。
// 実体はsecurity.ContentSanitizerService。
type Sanitizer interface {
	Sanitize(raw string) string
}

// ProxyMetrics はチャットWebhook仲介の計測インターフェース。
// 実体はmetrics.Collector。
type ProxyMetrics interface {
	RecordChatProxy(fallback bool)
}

type noopProxyMetrics struct{}

func (noopProxyMetrics) RecordChatProxy(bool) {}

// Service はチャットに関するビジネスロジックを提供する。
type Service struct {
	chatRepo           repository.ChatRepository
	assistant          Assistant
	sanitizer          Sanitizer
	metrics            ProxyMetrics
	devFallbackEnabled bool
}

// NewService はServiceを生成する。
// devFallbackが真の場合、Webhook到達不能時にエコー応答へ縮退する
// （開発環境向けの挙動で、本番では無効にする）。metricsがnilの場合は計測しない。
func NewService(chatRepo repository.ChatRepository, assistant Assistant, sanitizer Sanitizer, metrics ProxyMetrics, devFallback bool) *Service {
	if metrics == nil {
		metrics = noopProxyMetrics{}
	}
	return &Service{
		chatRepo:           chatRepo,
		assistant:          assistant,
		sanitizer:          sanitizer,
		metrics:            metrics,
		devFallbackEnabled: devFallback,
	}
}

// Chat はユーザー入力をアシスタントへ仲介し、往復を履歴に記録して応答を返す。
// アクティブな会話がなければ新規に開始する。
func (s *Service) Chat(ctx context.Context, usuarioID, input string) (string, error) {
	if input == "" {
		return "", model.NewInvalidRequestError("inputは必須です")
	}

	sessao, err := s.chatRepo.FindActiveSession(ctx, usuarioID)
	if err != nil {
		return "", fmt.Errorf("failed to find active chat session: %w", err)
	}
	if sessao == nil {
		sessao, err = s.StartSession(ctx, usuarioID, deriveTitle(input))
		if err != nil {
			return "", err
		}
	}

	if err := s.appendMessage(ctx, sessao.ID, model.RoleUser, input); err != nil {
		return "", err
	}

	fallback := false
	response, err := s.assistant.AskAssistant(ctx, usuarioID, input)
	if err != nil {
		if !s.devFallbackEnabled {
			return "", model.NewWebhookUnavailableError()
		}
		slog.Warn("assistant webhook unreachable, using dev fallback",
			slog.String("error", err.Error()),
		)
		response = fmt.Sprintf("[dev fallback] %s", input)
		fallback = true
	}
	s.metrics.RecordChatProxy(fallback)

	// Webhook応答は信頼できない入力として扱い、保存前にサニタイズする。
	response = s.sanitizer.Sanitize(response)

	if err := s.appendMessage(ctx, sessao.ID, model.RoleAssistant, response); err != nil {
		return "", err
	}

	return response, nil
}

// StartSession は新しい会話を開始する。
// 同一ユーザーのアクティブな会話は常に1件で、既存の会話は同一
// トランザクション内で非アクティブ化される。
func (s *Service) StartSession(ctx context.Context, usuarioID, titulo string) (*model.ChatSession, error) {
	sessao := &model.ChatSession{
		ID:        uuid.New().String(),
		UsuarioID: usuarioID,
		Titulo:    titulo,
		Ativa:     true,
		CriadoEm:  time.Now(),
	}
	if err := s.chatRepo.CreateSession(ctx, sessao); err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	slog.Info("chat session started",
		slog.String("usuario_id", usuarioID),
		slog.String("sessao_id", sessao.ID),
	)
	return sessao, nil
}

// ListSessions はユーザーの会話一覧を返す。
func (s *Service) ListSessions(ctx context.Context, usuarioID string) ([]*model.ChatSession, error) {
	sessoes, err := s.chatRepo.ListSessionsByUsuario(ctx, usuarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	return sessoes, nil
}

// ListMessages は会話のメッセージ履歴を返す。所有者以外には会話の存在を
// 明かさない。
func (s *Service) ListMessages(ctx context.Context, usuarioID, sessaoID string) ([]*model.ChatMessage, error) {
	sessao, err := s.chatRepo.FindSessionByID(ctx, sessaoID)
	if err != nil {
		return nil, fmt.Errorf("failed to find chat session: %w", err)
	}
	if sessao == nil || sessao.UsuarioID != usuarioID {
		return nil, model.NewChatSessionNotFoundError(sessaoID)
	}

	mensagens, err := s.chatRepo.ListMessagesBySession(ctx, sessaoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	return mensagens, nil
}

// StoreAssistantNote はアシスタント発のメッセージをユーザーのアクティブな
// 会話に追記する。非公開モードのグループ要約の配送経路として使う。
// アクティブな会話がなければ新規に開始する。
func (s *Service) StoreAssistantNote(ctx context.Context, usuarioID, titulo, conteudo string) error {
	sessao, err := s.chatRepo.FindActiveSession(ctx, usuarioID)
	if err != nil {
		return fmt.Errorf("failed to find active chat session: %w", err)
	}
	if sessao == nil {
		sessao, err = s.StartSession(ctx, usuarioID, titulo)
		if err != nil {
			return err
		}
	}
	return s.appendMessage(ctx, sessao.ID, model.RoleAssistant, s.sanitizer.Sanitize(conteudo))
}

func (s *Service) appendMessage(ctx context.Context, sessaoID string, role model.MessageRole, conteudo string) error {
	msg := &model.ChatMessage{
		ID:       uuid.New().String(),
		SessaoID: sessaoID,
		Role:     role,
		Conteudo: conteudo,
		CriadoEm: time.Now(),
	}
	if err := s.chatRepo.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to store chat message: %w", err)
	}
	return nil
}

// deriveTitle は最初の入力から会話タイトルを生成する。
func deriveTitle(input string) string {
	const maxTitle = 40
	runes := []rune(input)
	if len(runes) <= maxTitle {
		return input
	}
	return string(runes[:maxTitle]) + "…"
}
