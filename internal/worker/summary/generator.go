// Package summary はグループ要約のバックグラウンド生成処理を提供する。
// スケジューラとジェネレータを含む。要約テキストは外部の自動化Webhookが
// 生成し、ここでは配送先の振り分け（公開モードはWhatsAppグループへ、
// 非公開モードは所有者のチャットへ）を担う。
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/intellizapp/resumefy/internal/model"
	"github.com/intellizapp/resumefy/internal/repository"
	"github.com/intellizapp/resumefy/internal/webhook"
)

// SummaryProducer は要約テキストの生成インターフェース。実体はwebhook.Client。
type SummaryProducer interface {
	GenerateSummary(ctx context.Context, req webhook.SummaryRequest) (string, error)
}

// GroupSender はWhatsAppグループへのテキスト送信インターフェース。
// 実体はevolution.Service。
type GroupSender interface {
	SendText(ctx context.Context, instancia, grupoIDExterno, texto string) error
}

// NoteDeliverer は所有者のチャットへの要約配送インターフェース。
// 実体はintellichat.Service。
type NoteDeliverer interface {
	StoreAssistantNote(ctx context.Context, usuarioID, titulo, conteudo string) error
}

// Sanitizer はWebhook応答テキストのサニタイズインターフェース。
type Sanitizer interface {
	Sanitize(raw string) string
}

// MetricsRecorder は要約生成のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordResumoSuccess(grupoID string)
	RecordResumoFailure(grupoID string, reason string)
}

// Generator はグループ1件分の要約生成と配送を行う。
type Generator struct {
	grupoRepo   repository.GrupoRepository
	usuarioRepo repository.UsuarioRepository
	producer    SummaryProducer
	sender      GroupSender
	deliverer   NoteDeliverer
	sanitizer   Sanitizer
	metrics     MetricsRecorder
	logger      *slog.Logger
}

// NewGenerator はGeneratorの新しいインスタンスを生成する。
func NewGenerator(
	grupoRepo repository.GrupoRepository,
	usuarioRepo repository.UsuarioRepository,
	producer SummaryProducer,
	sender GroupSender,
	deliverer NoteDeliverer,
	sanitizer Sanitizer,
	metrics MetricsRecorder,
	logger *slog.Logger,
) *Generator {
	return &Generator{
		grupoRepo:   grupoRepo,
		usuarioRepo: usuarioRepo,
		producer:    producer,
		sender:      sender,
		deliverer:   deliverer,
		sanitizer:   sanitizer,
		metrics:     metrics,
		logger:      logger,
	}
}

// Generate はグループの要約を生成し、モードに応じた配送先へ届ける。
// 成功時にultimo_resumo_emを更新する。配送まで完了してから更新するため、
// 途中失敗したグループは次のサイクルで再試行される。
func (g *Generator) Generate(ctx context.Context, grupo *model.Grupo) error {
	usuario, err := g.usuarioRepo.FindByID(ctx, grupo.UsuarioID)
	if err != nil {
		g.metrics.RecordResumoFailure(grupo.ID, "owner_lookup")
		return fmt.Errorf("failed to find owner: %w", err)
	}
	if usuario == nil || !usuario.PlanoAtivo {
		// 所有者の削除やプラン失効とスケジューリングが競合した場合は黙ってスキップ
		return nil
	}

	resumo, err := g.producer.GenerateSummary(ctx, webhook.SummaryRequest{
		UsuarioID:      usuario.ID,
		GrupoIDExterno: grupo.GrupoIDExterno,
		NomeGrupo:      grupo.NomeGrupo,
		TomLudico:      grupo.TomLudico,
		LimiteTokens:   usuario.LimiteTokens,
		IncluirOntem:   usuario.IncluirDiaAnterior,
	})
	if err != nil {
		g.metrics.RecordResumoFailure(grupo.ID, "webhook")
		return fmt.Errorf("failed to generate summary: %w", err)
	}

	resumo = g.sanitizer.Sanitize(resumo)
	if resumo == "" {
		g.metrics.RecordResumoFailure(grupo.ID, "empty_summary")
		return fmt.Errorf("summary was empty after sanitization")
	}

	if grupo.IAOculta {
		// 非公開モード: グループには何も送らず、所有者のチャットへ届ける
		titulo := fmt.Sprintf("%s の要約", grupo.NomeGrupo)
		if err := g.deliverer.StoreAssistantNote(ctx, usuario.ID, titulo, resumo); err != nil {
			g.metrics.RecordResumoFailure(grupo.ID, "chat_delivery")
			return fmt.Errorf("failed to deliver summary to chat: %w", err)
		}
	} else {
		if err := g.sender.SendText(ctx, usuario.Instancia, grupo.GrupoIDExterno, resumo); err != nil {
			g.metrics.RecordResumoFailure(grupo.ID, "gateway_delivery")
			return fmt.Errorf("failed to send summary to group: %w", err)
		}
	}

	if err := g.grupoRepo.UpdateUltimoResumo(ctx, grupo.ID, time.Now()); err != nil {
		return fmt.Errorf("failed to record summary timestamp: %w", err)
	}

	g.metrics.RecordResumoSuccess(grupo.ID)
	g.logger.Info("summary delivered",
		slog.String("grupo_id", grupo.ID),
		slog.Bool("iaoculta", grupo.IAOculta),
	)

	return nil
}
