package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/intellizapp/resumefy/internal/group"
	"github.com/intellizapp/resumefy/internal/middleware"
	"github.com/intellizapp/resumefy/internal/model"
)

// GrupoServiceInterface はグループハンドラーが必要とするサービスインターフェース。
type GrupoServiceInterface interface {
	Create(ctx context.Context, usuarioID string, input group.CreateInput) (*model.Grupo, error)
	Transfer(ctx context.Context, usuarioID, grupoID string, iaOculta bool) (*model.Grupo, error)
	Update(ctx context.Context, usuarioID, grupoID string, update *model.GrupoUpdate) (*model.Grupo, error)
	Delete(ctx context.Context, usuarioID, grupoID string) error
	List(ctx context.Context, usuarioID string, page, limit int) ([]*model.Grupo, int, error)
	Get(ctx context.Context, usuarioID, grupoID string) (*model.Grupo, error)
	CheckQuota(ctx context.Context, usuarioID string) (*group.Quota, error)
}

// QuotaRejectionRecorder は枠超過拒否のメトリクス記録インターフェース。
type QuotaRejectionRecorder interface {
	RecordQuotaRejection()
}

// GrupoHandler はグループ管理のHTTPハンドラー。
type GrupoHandler struct {
	service GrupoServiceInterface
	metrics QuotaRejectionRecorder
}

// NewGrupoHandler はGrupoHandlerを生成する。metricsはnil可。
func NewGrupoHandler(service GrupoServiceInterface, metrics QuotaRejectionRecorder) *GrupoHandler {
	return &GrupoHandler{
		service: service,
		metrics: metrics,
	}
}

// createGrupoRequest はグループ登録リクエストのボディ。
// iaocultaはクライアントのUIレーンの意図として受け取るが、登録モードとして
// 確定するのはサーバー側で、他のフィールドの値に左右されない。
type createGrupoRequest struct {
	NomeGrupo      string `json:"nome_grupo"`
	GrupoIDExterno string `json:"grupo_id_externo"`
	IAOculta       bool   `json:"iaoculta"`
}

// updateGrupoRequest はグループ設定更新リクエストのボディ。
// id、usuario_id、criado_em、iaocultaは受け取っても無視される。
type updateGrupoRequest struct {
	NomeGrupo        *string `json:"nome_grupo"`
	Ativo            *bool   `json:"ativo"`
	TranscricaoAtiva *bool   `json:"transcricao_ativa"`
	ResumoAtivo      *bool   `json:"resumo_ativo"`
	TomLudico        *bool   `json:"tom_ludico"`
}

// transferGrupoRequest はモード移行リクエストのボディ。
type transferGrupoRequest struct {
	IAOculta bool `json:"iaoculta"`
}

// grupoResponse はグループ情報のAPIレスポンス。
type grupoResponse struct {
	ID               string     `json:"id"`
	UsuarioID        string     `json:"usuario_id"`
	NomeGrupo        string     `json:"nome_grupo"`
	GrupoIDExterno   string     `json:"grupo_id_externo"`
	IAOculta         bool       `json:"iaoculta"`
	Ativo            bool       `json:"ativo"`
	TranscricaoAtiva bool       `json:"transcricao_ativa"`
	ResumoAtivo      bool       `json:"resumo_ativo"`
	TomLudico        bool       `json:"tom_ludico"`
	UltimoResumoEm   *time.Time `json:"ultimo_resumo_em,omitempty"`
	CriadoEm         time.Time  `json:"criado_em"`
}

func toGrupoResponse(g *model.Grupo) grupoResponse {
	return grupoResponse{
		ID:               g.ID,
		UsuarioID:        g.UsuarioID,
		NomeGrupo:        g.NomeGrupo,
		GrupoIDExterno:   g.GrupoIDExterno,
		IAOculta:         g.IAOculta,
		Ativo:            g.Ativo,
		TranscricaoAtiva: g.TranscricaoAtiva,
		ResumoAtivo:      g.ResumoAtivo,
		TomLudico:        g.TomLudico,
		UltimoResumoEm:   g.UltimoResumoEm,
		CriadoEm:         g.CriadoEm,
	}
}

// List はユーザーのグループ一覧をページ付きで返す。
// GET /api/grupos?page=&limit=
func (h *GrupoHandler) List(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	grupos, total, err := h.service.List(r.Context(), usuarioID, page, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data := make([]grupoResponse, 0, len(grupos))
	for _, g := range grupos {
		data = append(data, toGrupoResponse(g))
	}

	writeSuccess(w, http.StatusOK, successResponse{
		Data:       data,
		Pagination: newPagination(page, limit, total),
	})
}

// Get はグループ詳細を返す。
// GET /api/grupos/:id
func (h *GrupoHandler) Get(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	grupo, err := h.service.Get(r.Context(), usuarioID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{Data: toGrupoResponse(grupo)})
}

// Create はグループ登録を処理する。
// POST /api/grupos
func (h *GrupoHandler) Create(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createGrupoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	grupo, err := h.service.Create(r.Context(), usuarioID, group.CreateInput{
		NomeGrupo:      req.NomeGrupo,
		GrupoIDExterno: req.GrupoIDExterno,
		IAOculta:       req.IAOculta,
	})
	if err != nil {
		if h.metrics != nil && isQuotaError(err) {
			h.metrics.RecordQuotaRejection()
		}
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, successResponse{
		Message: "グループを登録しました。",
		Data:    toGrupoResponse(grupo),
	})
}

// Update はグループ設定の部分更新を処理する。
// PUT /api/grupos/:id
func (h *GrupoHandler) Update(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateGrupoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	grupo, err := h.service.Update(r.Context(), usuarioID, chi.URLParam(r, "id"), &model.GrupoUpdate{
		NomeGrupo:        req.NomeGrupo,
		Ativo:            req.Ativo,
		TranscricaoAtiva: req.TranscricaoAtiva,
		ResumoAtivo:      req.ResumoAtivo,
		TomLudico:        req.TomLudico,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{
		Message: "グループ設定を更新しました。",
		Data:    toGrupoResponse(grupo),
	})
}

// Transfer は登録モードの移行を処理する。
// POST /api/grupos/:id/transfer
func (h *GrupoHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req transferGrupoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	grupo, err := h.service.Transfer(r.Context(), usuarioID, chi.URLParam(r, "id"), req.IAOculta)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{
		Message: "グループのモードを移行しました。",
		Data:    toGrupoResponse(grupo),
	})
}

// Delete はグループ登録の解除を処理する。
// DELETE /api/grupos/:id
func (h *GrupoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Delete(r.Context(), usuarioID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{
		Message: "グループを削除しました。",
	})
}

// Quota は登録枠の利用状況を返す。
// GET /api/grupos/quota
func (h *GrupoHandler) Quota(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	quota, err := h.service.CheckQuota(r.Context(), usuarioID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{Data: quota})
}

// isQuotaError はエラーが登録枠超過かを判定する。
func isQuotaError(err error) bool {
	apiErr, ok := err.(*model.APIError)
	return ok && apiErr.Code == model.ErrCodeGroupLimit
}

// queryInt はクエリパラメータを整数として読み取る。不正値はデフォルトを返す。
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
