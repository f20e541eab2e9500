// Package session はセッションのライフサイクル管理（検証・更新・延長）を提供する。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/intellizapp/resumefy/internal/model"
	"github.com/intellizapp/resumefy/internal/repository"
)

// Manager はセッションの検証と延長を行う。
// 残り有効期間がRefreshMargin未満になったセッションは、検証時に
// 満了時刻を前方へ延長する。延長は最終書き込み優先で、同一セッションに
// 対する並行延長は互いに無害。
type Manager struct {
	repo          repository.SessionRepository
	maxAge        time.Duration
	refreshMargin time.Duration
	now           func() time.Time // テストで差し替える
}

// NewManager はManagerを生成する。maxAgeとrefreshMarginは秒単位。
func NewManager(repo repository.SessionRepository, maxAgeSeconds, refreshMarginSeconds int) *Manager {
	return &Manager{
		repo:          repo,
		maxAge:        time.Duration(maxAgeSeconds) * time.Second,
		refreshMargin: time.Duration(refreshMarginSeconds) * time.Second,
		now:           time.Now,
	}
}

// Validate はトークンに対応する有効なセッションを返す。
// 期限切れまたは不在の場合は(nil, nil)を返す。
func (m *Manager) Validate(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}
	session, err := m.repo.FindByID(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	if !session.ExpiresAt.After(m.now()) {
		return nil, nil
	}
	return session, nil
}

// Refresh はセッションの健全性を確認し、必要に応じて満了時刻を延長する。
// 戻り値は(延長したか, セッション, エラー)。セッションが不在または期限切れの
// 場合は(false, nil, nil)を返し、呼び出し側が認証状態を破棄する。
func (m *Manager) Refresh(ctx context.Context, token string) (bool, *model.Session, error) {
	session, err := m.Validate(ctx, token)
	if err != nil {
		return false, nil, err
	}
	if session == nil {
		return false, nil, nil
	}

	now := m.now()
	if session.RemainingAt(now) >= m.refreshMargin {
		// 残り時間が十分なら書き込みを行わない
		return false, session, nil
	}

	newExpiry := now.Add(m.maxAge)
	if err := m.repo.UpdateExpiry(ctx, session.ID, newExpiry); err != nil {
		return false, nil, fmt.Errorf("failed to extend session: %w", err)
	}
	session.ExpiresAt = newExpiry

	slog.Debug("session extended",
		slog.String("usuario_id", session.UsuarioID),
		slog.Time("expires_at", newExpiry),
	)

	return true, session, nil
}
