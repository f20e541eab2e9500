package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/intellizapp/resumefy/internal/middleware"
	"github.com/intellizapp/resumefy/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetPerfil(ctx context.Context, usuarioID string) (*model.Usuario, error)
	UpdatePerfil(ctx context.Context, usuarioID string, update *model.PerfilUpdate) (*model.Usuario, error)
	Withdraw(ctx context.Context, usuarioID string) error
}

// UserHandler はユーザープロフィール管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// updatePerfilRequest はプロフィール更新リクエストのボディ。
// id、email、criado_em、max_grupos、limite_tokensは受け取っても無視される。
type updatePerfilRequest struct {
	Nome               *string `json:"nome"`
	Instancia          *string `json:"instancia"`
	HorarioResumo      *string `json:"horario_resumo"`
	TranscricaoAtiva   *bool   `json:"transcricao_ativa"`
	TomLudico          *bool   `json:"tom_ludico"`
	AgendamentoAtivo   *bool   `json:"agendamento_ativo"`
	IncluirDiaAnterior *bool   `json:"incluir_dia_anterior"`
}

// GetPerfil はプロフィールを返す。
// GET /api/usuarios/me
func (h *UserHandler) GetPerfil(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	usuario, err := h.service.GetPerfil(r.Context(), usuarioID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if usuario == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{Data: toUsuarioResponse(usuario)})
}

// UpdatePerfil はプロフィールの部分更新を処理する。
// PUT /api/usuarios/me
func (h *UserHandler) UpdatePerfil(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updatePerfilRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	usuario, err := h.service.UpdatePerfil(r.Context(), usuarioID, &model.PerfilUpdate{
		Nome:               req.Nome,
		Instancia:          req.Instancia,
		HorarioResumo:      req.HorarioResumo,
		TranscricaoAtiva:   req.TranscricaoAtiva,
		TomLudico:          req.TomLudico,
		AgendamentoAtivo:   req.AgendamentoAtivo,
		IncluirDiaAnterior: req.IncluirDiaAnterior,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{
		Message: "プロフィールを更新しました。",
		Data:    toUsuarioResponse(usuario),
	})
}

// Withdraw は退会処理を実行する。
// DELETE /api/usuarios/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Withdraw(r.Context(), usuarioID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{
		Message: "退会処理が完了しました。",
	})
}
