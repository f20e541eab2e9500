// Package auth はパスワード認証、プロフィール解決、セッション発行を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/intellizapp/resumefy/internal/model"
	"github.com/intellizapp/resumefy/internal/repository"
)

// ResetNotifier はパスワードリセット通知の送信インターフェース。
// 実体は外部の自動化Webhookで、送信はベストエフォート。
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	usuarioRepo repository.UsuarioRepository
	sessionRepo repository.SessionRepository
	notifier    ResetNotifier
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	usuarioRepo repository.UsuarioRepository,
	sessionRepo repository.SessionRepository,
	notifier ResetNotifier,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		usuarioRepo: usuarioRepo,
		sessionRepo: sessionRepo,
		notifier:    notifier,
		config:      config,
	}
}

// Register は新規ユーザーを登録し、セッションを発行する。
// プロフィールはplano_ativo=false、max_grupos=3、limite_tokens=1000でシードされる。
// email重複時はDUPLICATE_EMAILエラーを返す。
func (s *Service) Register(ctx context.Context, nome, email, senha, instancia string) (*model.Usuario, *model.Session, error) {
	if err := validateRegistration(nome, email, senha); err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(senha), s.config.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	usuario := &model.Usuario{
		ID:            uuid.New().String(),
		Nome:          nome,
		Email:         email,
		SenhaHash:     string(hash),
		Instancia:     instancia,
		PlanoAtivo:    false,
		MaxGrupos:     model.DefaultMaxGrupos,
		LimiteTokens:  model.DefaultLimiteTokens,
		HorarioResumo: "08:00",
		CriadoEm:      now,
		AtualizadoEm:  now,
	}

	if err := s.usuarioRepo.Create(ctx, usuario); err != nil {
		return nil, nil, err
	}

	session, err := s.createSession(ctx, usuario.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("new user registered",
		slog.String("usuario_id", usuario.ID),
		slog.String("instancia", instancia),
	)

	return usuario, session, nil
}

// Login はメールアドレスとパスワードでユーザーを認証し、セッションを発行する。
// 比較は常にソルト付きハッシュに対して行う。
// 失敗理由（ユーザー不在かパスワード不一致か）は区別せず単一のエラーを返す。
func (s *Service) Login(ctx context.Context, email, senha string) (*model.Usuario, *model.Session, error) {
	if email == "" || senha == "" {
		return nil, nil, model.NewInvalidRequestError("emailとsenhaは必須です")
	}

	usuario, err := s.usuarioRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find usuario: %w", err)
	}
	if usuario == nil {
		// タイミング差によるユーザー存在の推測を避けるため、ダミー比較を行う
		bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000uGZLcjQojBjsmtDFsZbVBTT6VceZ7kS6"), []byte(senha))
		return nil, nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(usuario.SenhaHash), []byte(senha)); err != nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, usuario.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("usuario_id", usuario.ID))

	return usuario, session, nil
}

// ResolveProfile は認証済みアイデンティティからプロフィールを解決する。
// プロフィールが存在しない場合は(nil, nil)を返す。不在はエラーではなく
// ユーザーに提示される第一級の状態であり、呼び出し側が縮退UIを表示する。
func (s *Service) ResolveProfile(ctx context.Context, usuarioID string) (*model.Usuario, error) {
	usuario, err := s.usuarioRepo.FindByID(ctx, usuarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile: %w", err)
	}
	return usuario, nil
}

// ForgotPassword はパスワードリセットを起動する。
// メールアドレスの存在有無にかかわらず常に成功を返す（存在の列挙を防ぐ）。
// 通知Webhookの失敗はログに記録するのみで、呼び出し元には伝えない。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if email == "" {
		return model.NewInvalidRequestError("emailは必須です")
	}

	usuario, err := s.usuarioRepo.FindByEmail(ctx, email)
	if err != nil {
		slog.Error("forgot-password lookup failed", slog.String("error", err.Error()))
		return nil
	}
	if usuario == nil {
		return nil
	}

	if s.notifier != nil {
		if err := s.notifier.SendPasswordReset(ctx, email); err != nil {
			slog.Error("failed to send password reset notification",
				slog.String("usuario_id", usuario.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, usuarioID string) (*model.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &model.Session{
		ID:        token,
		UsuarioID: usuarioID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// validateRegistration は登録入力を検証する。
func validateRegistration(nome, email, senha string) error {
	if nome == "" {
		return model.NewInvalidRequestError("nomeは必須です")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.NewInvalidRequestError("emailの形式が不正です")
	}
	if len(senha) < 6 {
		return model.NewInvalidRequestError("senhaは6文字以上で指定してください")
	}
	return nil
}

// generateSessionToken は暗号的に安全なセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
