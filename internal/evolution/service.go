package evolution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/intellizapp/resumefy/internal/model"
)

// Gateway はゲートウェイ呼び出しのインターフェース。実体はClient。
type Gateway interface {
	Status(ctx context.Context, instancia string) (*InstanceStatus, error)
	FetchGroups(ctx context.Context, instancia string) ([]*model.CandidatoGrupo, error)
	SendText(ctx context.Context, instancia, grupoIDExterno, texto string) error
}

// compile-time interface check
var _ Gateway = (*Client)(nil)

// Service はキャッシュとリトライを組み合わせたゲートウェイ操作を提供する。
type Service struct {
	gateway Gateway
	cache   *GroupCache
}

// NewService はServiceを生成する。
func NewService(gateway Gateway, cache *GroupCache) *Service {
	return &Service{
		gateway: gateway,
		cache:   cache,
	}
}

// GetStatus はインスタンスの接続状態を返す。キャッシュしない。
func (s *Service) GetStatus(ctx context.Context, instancia string) (*InstanceStatus, error) {
	status, err := s.gateway.Status(ctx, instancia)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance status: %w", err)
	}
	return status, nil
}

// GetGroups はインスタンスのグループ一覧を返す。
// 鮮度内のキャッシュがあればそれを返し、なければゲートウェイから
// リトライ付きで取得してキャッシュに格納する。
func (s *Service) GetGroups(ctx context.Context, instancia, usuarioID string) ([]*model.CandidatoGrupo, error) {
	if candidatos, ok := s.cache.Get(instancia, usuarioID); ok {
		return candidatos, nil
	}

	candidatos, err := WithRetry(ctx, func(ctx context.Context) ([]*model.CandidatoGrupo, error) {
		return s.gateway.FetchGroups(ctx, instancia)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(instancia, usuarioID, candidatos)

	slog.Debug("group list fetched from gateway",
		slog.String("instancia", instancia),
		slog.Int("count", len(candidatos)),
	)

	return candidatos, nil
}

// SendText はグループへテキストを送信する。リトライ付き。
func (s *Service) SendText(ctx context.Context, instancia, grupoIDExterno, texto string) error {
	_, err := WithRetry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.gateway.SendText(ctx, instancia, grupoIDExterno, texto)
	})
	return err
}
