package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/intellizapp/resumefy/internal/evolution"
	"github.com/intellizapp/resumefy/internal/middleware"
	"github.com/intellizapp/resumefy/internal/model"
)

// EvolutionServiceInterface はゲートウェイハンドラーが必要とするサービスインターフェース。
type EvolutionServiceInterface interface {
	GetStatus(ctx context.Context, instancia string) (*evolution.InstanceStatus, error)
	GetGroups(ctx context.Context, instancia, usuarioID string) ([]*model.CandidatoGrupo, error)
}

// EvolutionHandler はWhatsAppゲートウェイ照会のHTTPハンドラー。
type EvolutionHandler struct {
	service EvolutionServiceInterface
}

// NewEvolutionHandler はEvolutionHandlerを生成する。
func NewEvolutionHandler(service EvolutionServiceInterface) *EvolutionHandler {
	return &EvolutionHandler{
		service: service,
	}
}

// candidatoResponse はゲートウェイ上のグループ候補のAPIレスポンス。
// ativoは登録画面のチェックボックス初期値で、常にfalse。
type candidatoResponse struct {
	NomeGrupo      string `json:"nome_grupo"`
	GrupoIDExterno string `json:"grupo_id_externo"`
	UsuarioID      string `json:"usuario_id"`
	Ativo          bool   `json:"ativo"`
	Participantes  int    `json:"participantes"`
	Descricao      string `json:"descricao,omitempty"`
}

// Status はインスタンスの接続状態を返す。
// ゲートウェイがインスタンスを知らない場合も200でstate="not_found"を返す。
// GET /api/evolution/status/:instanceName
func (h *EvolutionHandler) Status(w http.ResponseWriter, r *http.Request) {
	instancia := chi.URLParam(r, "instanceName")
	if instancia == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("instanceNameは必須です"))
		return
	}

	status, err := h.service.GetStatus(r.Context(), instancia)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{Data: status})
}

// Groups はインスタンスのグループ一覧を返す（キャッシュまたはゲートウェイから）。
// GET /api/evolution/groups/:instanceName
func (h *EvolutionHandler) Groups(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	instancia := chi.URLParam(r, "instanceName")
	if instancia == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("instanceNameは必須です"))
		return
	}

	candidatos, err := h.service.GetGroups(r.Context(), instancia, usuarioID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data := make([]candidatoResponse, 0, len(candidatos))
	for _, c := range candidatos {
		data = append(data, candidatoResponse{
			NomeGrupo:      c.NomeGrupo,
			GrupoIDExterno: c.GrupoIDExterno,
			UsuarioID:      usuarioID,
			Ativo:          false,
			Participantes:  c.Participantes,
			Descricao:      c.Descricao,
		})
	}

	writeSuccess(w, http.StatusOK, successResponse{Data: data})
}
