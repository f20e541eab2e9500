// Package user はユーザープロフィール管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/intellizapp/resumefy/internal/model"
	"github.com/intellizapp/resumefy/internal/repository"
)

// horarioPattern はhorario_resumoの形式（HH:MM、24時間表記）。
var horarioPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Service はプロフィールの取得・更新・退会処理を提供する。
type Service struct {
	usuarioRepo repository.UsuarioRepository
	sessionRepo repository.SessionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(usuarioRepo repository.UsuarioRepository, sessionRepo repository.SessionRepository) *Service {
	return &Service{
		usuarioRepo: usuarioRepo,
		sessionRepo: sessionRepo,
	}
}

// GetPerfil はプロフィールを返す。存在しない場合は(nil, nil)。
func (s *Service) GetPerfil(ctx context.Context, usuarioID string) (*model.Usuario, error) {
	usuario, err := s.usuarioRepo.FindByID(ctx, usuarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to find usuario: %w", err)
	}
	return usuario, nil
}

// UpdatePerfil はプロフィールを部分更新する。
// email、id、criado_em、max_grupos、limite_tokensはこの経路では変更できない。
func (s *Service) UpdatePerfil(ctx context.Context, usuarioID string, update *model.PerfilUpdate) (*model.Usuario, error) {
	if update == nil {
		return nil, model.NewInvalidRequestError("更新内容が空です")
	}
	if update.HorarioResumo != nil && !horarioPattern.MatchString(*update.HorarioResumo) {
		return nil, model.NewInvalidRequestError("horario_resumoはHH:MM形式で指定してください")
	}

	usuario, err := s.usuarioRepo.UpdatePerfil(ctx, usuarioID, *update)
	if err != nil {
		return nil, fmt.Errorf("failed to update perfil: %w", err)
	}
	if usuario == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("perfil updated", slog.String("usuario_id", usuarioID))
	return usuario, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → usuario（+ CASCADE: grupos, intellichat_sessions, intellichat_mensagens）
func (s *Service) Withdraw(ctx context.Context, usuarioID string) error {
	usuario, err := s.usuarioRepo.FindByID(ctx, usuarioID)
	if err != nil {
		return fmt.Errorf("failed to find usuario: %w", err)
	}
	if usuario == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("withdrawal started", slog.String("usuario_id", usuarioID))

	if err := s.sessionRepo.DeleteByUsuarioID(ctx, usuarioID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	if err := s.usuarioRepo.DeleteByID(ctx, usuarioID); err != nil {
		return fmt.Errorf("failed to delete usuario: %w", err)
	}

	slog.Info("withdrawal completed", slog.String("usuario_id", usuarioID))
	return nil
}
