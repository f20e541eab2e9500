package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/intellizapp/resumefy/internal/middleware"
	"github.com/intellizapp/resumefy/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, nome, email, senha, instancia string) (*model.Usuario, *model.Session, error)
	Login(ctx context.Context, email, senha string) (*model.Usuario, *model.Session, error)
	ResolveProfile(ctx context.Context, usuarioID string) (*model.Usuario, error)
	ForgotPassword(ctx context.Context, email string) error
	Logout(ctx context.Context, sessionID string) error
}

// SessionRefresher はセッション延長のインターフェース。実体はsession.Manager。
type SessionRefresher interface {
	Refresh(ctx context.Context, token string) (bool, *model.Session, error)
}

// AuthHandler は認証のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	refresher SessionRefresher
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, refresher SessionRefresher) *AuthHandler {
	return &AuthHandler{
		service:   service,
		refresher: refresher,
	}
}

// registerRequest はユーザー登録リクエストのボディ。
type registerRequest struct {
	Nome      string `json:"nome"`
	Email     string `json:"email"`
	Senha     string `json:"senha"`
	Instancia string `json:"instancia"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

// forgotPasswordRequest はパスワードリセット要求のボディ。
type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// usuarioResponse はユーザープロフィールのAPIレスポンス。
// senha_hashは決して含めない。
type usuarioResponse struct {
	ID                 string    `json:"id"`
	Nome               string    `json:"nome"`
	Email              string    `json:"email"`
	Instancia          string    `json:"instancia"`
	PlanoAtivo         bool      `json:"plano_ativo"`
	MaxGrupos          int       `json:"max_grupos"`
	LimiteTokens       int       `json:"limite_tokens"`
	HorarioResumo      string    `json:"horario_resumo"`
	TranscricaoAtiva   bool      `json:"transcricao_ativa"`
	TomLudico          bool      `json:"tom_ludico"`
	AgendamentoAtivo   bool      `json:"agendamento_ativo"`
	IncluirDiaAnterior bool      `json:"incluir_dia_anterior"`
	CriadoEm           time.Time `json:"criado_em"`
}

// authDataResponse は認証成功時のデータ部（ユーザー + トークン）。
type authDataResponse struct {
	User  usuarioResponse `json:"user"`
	Token string          `json:"token"`
}

func toUsuarioResponse(u *model.Usuario) usuarioResponse {
	return usuarioResponse{
		ID:                 u.ID,
		Nome:               u.Nome,
		Email:              u.Email,
		Instancia:          u.Instancia,
		PlanoAtivo:         u.PlanoAtivo,
		MaxGrupos:          u.MaxGrupos,
		LimiteTokens:       u.LimiteTokens,
		HorarioResumo:      u.HorarioResumo,
		TranscricaoAtiva:   u.TranscricaoAtiva,
		TomLudico:          u.TomLudico,
		AgendamentoAtivo:   u.AgendamentoAtivo,
		IncluirDiaAnterior: u.IncluirDiaAnterior,
		CriadoEm:           u.CriadoEm,
	}
}

// Register はユーザー登録を処理する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	usuario, session, err := h.service.Register(r.Context(), req.Nome, req.Email, req.Senha, req.Instancia)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, successResponse{
		Message: "登録が完了しました。",
		Data: authDataResponse{
			User:  toUsuarioResponse(usuario),
			Token: session.ID,
		},
	})
}

// Login はログインを処理する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	usuario, session, err := h.service.Login(r.Context(), req.Email, req.Senha)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{
		Message: "ログインしました。",
		Data: authDataResponse{
			User:  toUsuarioResponse(usuario),
			Token: session.ID,
		},
	})
}

// ForgotPassword はパスワードリセットの起動を処理する。
// メールアドレスの存在有無にかかわらず常に同じ200応答を返す。
// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.Email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("emailは必須です"))
		return
	}

	// 失敗は内部で記録済み。列挙防止のため応答は常に同一。
	_ = h.service.ForgotPassword(r.Context(), req.Email)

	writeSuccess(w, http.StatusOK, successResponse{
		Message: "登録されているメールアドレスであれば、リセット手順を送信しました。受信トレイを確認してください。",
	})
}

// Me は認証済みユーザーのプロフィールを返す。
// プロフィール行が存在しない場合は data:null の成功応答を返し、
// クライアントは縮退状態のUIを表示する。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	usuarioID, err := middleware.UsuarioIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	usuario, err := h.service.ResolveProfile(r.Context(), usuarioID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if usuario == nil {
		writeSuccess(w, http.StatusOK, successResponse{
			Message: "プロフィールが未作成です。",
		})
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{
		Data: toUsuarioResponse(usuario),
	})
}

// Refresh はセッションの確認と延長を処理する。
// 有効なセッションがなければ401 SESSION_EXPIREDを返し、クライアントは
// ローカル状態を破棄してログイン画面へ遷移する。
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	refreshed, session, err := h.refresher.Refresh(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if session == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{
		Data: map[string]any{
			"refreshed":  refreshed,
			"expires_at": session.ExpiresAt,
		},
	})
}

// Logout はログアウトを処理する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Logout(r.Context(), sessionID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, successResponse{
		Message: "ログアウトしました。",
	})
}
