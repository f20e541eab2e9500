// Package group はWhatsAppグループの登録・設定・モード転送を提供する。
package group

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/intellizapp/resumefy/internal/model"
	"github.com/intellizapp/resumefy/internal/repository"
)

// CreateInput はグループ登録の入力。
// IAOcultaはクライアントが操作しているUIレーンを示す意図として受け取り、
// サーバー側で登録モードとして確定する。
type CreateInput struct {
	NomeGrupo      string
	GrupoIDExterno string
	IAOculta       bool
}

// Quota はユーザーのグループ登録枠の利用状況。
type Quota struct {
	Usados int `json:"usados"`
	Limite int `json:"limite"`
}

// Service はグループに関するビジネスロジックを提供する。
type Service struct {
	grupoRepo   repository.GrupoRepository
	usuarioRepo repository.UsuarioRepository
}

// NewService はServiceを生成する。
func NewService(grupoRepo repository.GrupoRepository, usuarioRepo repository.UsuarioRepository) *Service {
	return &Service{
		grupoRepo:   grupoRepo,
		usuarioRepo: usuarioRepo,
	}
}

// Create はグループを登録する。同一ユーザー・同一外部IDの組は1件のみ許され、
// 同じモードで既登録ならDUPLICATE_GROUP、逆モードで既登録ならTRANSFER_REQUIREDを
// 返す。登録枠（max_grupos）を使い切っている場合はGROUP_LIMIT。
// ここでの事前チェックは競合時の親切なエラーメッセージのためで、最終的な
// 一意性はデータベースの一意制約が、枠の上限はリポジトリのトランザクションが
// 保証する。
func (s *Service) Create(ctx context.Context, usuarioID string, input CreateInput) (*model.Grupo, error) {
	if input.NomeGrupo == "" || input.GrupoIDExterno == "" {
		return nil, model.NewInvalidRequestError("nome_grupoとgrupo_id_externoは必須です")
	}

	usuario, err := s.usuarioRepo.FindByID(ctx, usuarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to find usuario: %w", err)
	}
	if usuario == nil {
		return nil, model.NewUserNotFoundError()
	}

	existente, err := s.grupoRepo.FindByUsuarioAndExternalID(ctx, usuarioID, input.GrupoIDExterno)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing grupo: %w", err)
	}
	if existente != nil {
		if existente.IAOculta == input.IAOculta {
			return nil, model.NewDuplicateGroupError(existente.NomeGrupo)
		}
		return nil, model.NewTransferRequiredError(existente.ID)
	}

	now := time.Now()
	grupo := &model.Grupo{
		ID:               uuid.New().String(),
		UsuarioID:        usuarioID,
		NomeGrupo:        input.NomeGrupo,
		GrupoIDExterno:   input.GrupoIDExterno,
		IAOculta:         input.IAOculta,
		Ativo:            true,
		TranscricaoAtiva: usuario.TranscricaoAtiva,
		ResumoAtivo:      true,
		TomLudico:        usuario.TomLudico,
		CriadoEm:         now,
		AtualizadoEm:     now,
	}

	// 枠の確認は重複チェックの後で行う。重複はTRANSFER_REQUIREDで案内すべき
	// ケースを含み、枠超過メッセージで隠してはならない。枠の確認と挿入は
	// リポジトリ側が同一トランザクションで直列化する。
	if err := s.grupoRepo.CreateWithinQuota(ctx, grupo, usuario.MaxGrupos); err != nil {
		return nil, err
	}

	slog.Info("grupo registered",
		slog.String("usuario_id", usuarioID),
		slog.String("grupo_id", grupo.ID),
		slog.Bool("iaoculta", grupo.IAOculta),
	)

	return grupo, nil
}

// Transfer はグループの登録モード（iaoculta）だけを切り替える。
// 他の設定、外部ID、履歴は一切変更しない。
func (s *Service) Transfer(ctx context.Context, usuarioID, grupoID string, iaOculta bool) (*model.Grupo, error) {
	grupo, err := s.findOwned(ctx, usuarioID, grupoID)
	if err != nil {
		return nil, err
	}

	if grupo.IAOculta == iaOculta {
		// 既に目的のモード。冪等に現状を返す。
		return grupo, nil
	}

	if err := s.grupoRepo.UpdateModo(ctx, grupoID, iaOculta); err != nil {
		return nil, err
	}
	grupo.IAOculta = iaOculta
	grupo.AtualizadoEm = time.Now()

	slog.Info("grupo transferred",
		slog.String("grupo_id", grupoID),
		slog.Bool("iaoculta", iaOculta),
	)

	return grupo, nil
}

// Update はグループの設定を部分更新する。登録モード（iaoculta）は
// この経路では変更できず、Transferのみが切り替えられる。
func (s *Service) Update(ctx context.Context, usuarioID, grupoID string, update *model.GrupoUpdate) (*model.Grupo, error) {
	if update == nil {
		return nil, model.NewInvalidRequestError("更新内容が空です")
	}
	if _, err := s.findOwned(ctx, usuarioID, grupoID); err != nil {
		return nil, err
	}

	grupo, err := s.grupoRepo.UpdateCampos(ctx, grupoID, *update)
	if err != nil {
		return nil, fmt.Errorf("failed to update grupo: %w", err)
	}
	if grupo == nil {
		return nil, model.NewGroupNotFoundError(grupoID)
	}
	return grupo, nil
}

// Delete はグループ登録を解除する。
func (s *Service) Delete(ctx context.Context, usuarioID, grupoID string) error {
	if _, err := s.findOwned(ctx, usuarioID, grupoID); err != nil {
		return err
	}
	if err := s.grupoRepo.Delete(ctx, grupoID); err != nil {
		return fmt.Errorf("failed to delete grupo: %w", err)
	}

	slog.Info("grupo removed",
		slog.String("usuario_id", usuarioID),
		slog.String("grupo_id", grupoID),
	)
	return nil
}

// List はユーザーのグループをページ付きで返す。
func (s *Service) List(ctx context.Context, usuarioID string, page, limit int) ([]*model.Grupo, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	grupos, total, err := s.grupoRepo.ListByUsuarioID(ctx, usuarioID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list grupos: %w", err)
	}
	return grupos, total, nil
}

// Get は所有権を確認した上でグループを返す。
func (s *Service) Get(ctx context.Context, usuarioID, grupoID string) (*model.Grupo, error) {
	return s.findOwned(ctx, usuarioID, grupoID)
}

// CheckQuota は登録枠の利用状況を返す。
func (s *Service) CheckQuota(ctx context.Context, usuarioID string) (*Quota, error) {
	usuario, err := s.usuarioRepo.FindByID(ctx, usuarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to find usuario: %w", err)
	}
	if usuario == nil {
		return nil, model.NewUserNotFoundError()
	}
	count, err := s.grupoRepo.CountByUsuarioID(ctx, usuarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to count grupos: %w", err)
	}
	return &Quota{Usados: count, Limite: usuario.MaxGrupos}, nil
}

// findOwned はグループを取得し、所有者がusuarioIDであることを確認する。
// 他人のグループは存在自体を明かさずGROUP_NOT_FOUNDとする。
func (s *Service) findOwned(ctx context.Context, usuarioID, grupoID string) (*model.Grupo, error) {
	grupo, err := s.grupoRepo.FindByID(ctx, grupoID)
	if err != nil {
		return nil, fmt.Errorf("failed to find grupo: %w", err)
	}
	if grupo == nil || grupo.UsuarioID != usuarioID {
		return nil, model.NewGroupNotFoundError(grupoID)
	}
	return grupo, nil
}
