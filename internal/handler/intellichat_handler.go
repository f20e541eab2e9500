package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/intellizapp/resumefy/internal/middleware"
	"github.com/intellizapp/resumefy/internal/model"
)

// IntellichatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type IntellichatServiceInterface interface {
	Chat(ctx context.Context, usuarioID, input string) (string, error)
	StartSession(ctx context.Context, usuarioID, titulo string) (*model.ChatSession, error)
	ListSessions(ctx context.Context, usuarioID string) ([]*model.ChatSession, error)
	ListMessages(ctx context.Context, usuarioID, sessaoID string) ([]*model.ChatMessage, error)
}

// IntellichatHandler はAIチャットのHTTPハンドラー。
type IntellichatHandler struct {
	service IntellichatServiceInterface
}

// NewIntellichatHandler はIntellichatHandlerを生成する。
func NewIntellichatHandler(service IntellichatServiceInterface) *IntellichatHandler {
	return &IntellichatHandler{
		service: service,
	}
}

// chatRequest はチャットリクエストのボディ。
type chatRequest struct {
	Input string `json:"input"`
}

// startSessionRequest は会話新規作成リクエストのボディ。
type startSessionRequest struct {
	Titulo string `json:"titulo"`
}

// chatSessionResponse は会話のAPIレスポンス。
type chatSessionResponse struct {
	ID       string    `json:"id"`
	Titulo   string    `json:"titulo"`
	Ativa    bool      `json:"ativa"`
	CriadoEm time.Time `json:"criado_em"`
}

// chatMessageResponse はメッセージのAPIレスポンス。
type chatMessageResponse struct {
	ID       string    `json:"id"`
	Role     string    `json:"role"`
	Conteudo string    `json:"conteudo"`
	CriadoEm time.Time `json:"criado_em"`
}

// Chat はユーザー入力をアシスタントへ仲介する。
// POST /api/intellichat
func (h *IntellichatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.Input == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("inputは必須です"))
		return
	}

	response, err := h.service.Chat(r.Context(), usuarioID, req.Input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{
		Data: map[string]string{"response": response},
	})
}

// StartSession は新しい会話を開始する。既存のアクティブな会話は
// ストア側で非アクティブ化される。
// POST /api/intellichat/sessions
func (h *IntellichatHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.Titulo == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("tituloは必須です"))
		return
	}

	sessao, err := h.service.StartSession(r.Context(), usuarioID, req.Titulo)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, successResponse{
		Data: chatSessionResponse{
			ID:       sessao.ID,
			Titulo:   sessao.Titulo,
			Ativa:    sessao.Ativa,
			CriadoEm: sessao.CriadoEm,
		},
	})
}

// ListSessions はユーザーの会話一覧を返す。
// GET /api/intellichat/sessions
func (h *IntellichatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	sessoes, err := h.service.ListSessions(r.Context(), usuarioID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data := make([]chatSessionResponse, 0, len(sessoes))
	for _, s := range sessoes {
		data = append(data, chatSessionResponse{
			ID:       s.ID,
			Titulo:   s.Titulo,
			Ativa:    s.Ativa,
			CriadoEm: s.CriadoEm,
		})
	}

	writeSuccess(w, http.StatusOK, successResponse{Data: data})
}

// ListMessages は会話のメッセージ履歴を返す。
// GET /api/intellichat/sessions/:id/messages
func (h *IntellichatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	mensagens, err := h.service.ListMessages(r.Context(), usuarioID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data := make([]chatMessageResponse, 0, len(mensagens))
	for _, m := range mensagens {
		data = append(data, chatMessageResponse{
			ID:       m.ID,
			Role:     string(m.Role),
			Conteudo: m.Conteudo,
			CriadoEm: m.CriadoEm,
		})
	}

	writeSuccess(w, http.StatusOK, successResponse{Data: data})
}
