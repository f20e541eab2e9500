package summary

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/intellizapp/resumefy/internal/model"
	"github.com/intellizapp/resumefy/internal/repository"
)

// GeneratorService は要約生成の実行インターフェース。
type GeneratorService interface {
	// Generate は指定グループの要約を生成し配送する。
	Generate(ctx context.Context, grupo *model.Grupo) error
}

// Scheduler は要約生成のスケジューリングと並列制御を行う。
// ティッカーで配信予定時刻を過ぎたグループを取得し、semaphoreパターンで
// 最大並列数を制御しながら生成を実行する。
type Scheduler struct {
	grupoRepo      repository.GrupoRepository
	generator      GeneratorService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewScheduler(
	grupoRepo repository.GrupoRepository,
	generator GeneratorService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Scheduler{
		grupoRepo:      grupoRepo,
		generator:      generator,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("要約スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("要約サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("要約スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("要約サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は配信予定のグループを1回取得し、並列で要約生成を実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	// 配信予定グループを取得（FOR UPDATE SKIP LOCKED）
	grupos, err := s.grupoRepo.ListDueForResumo(ctx)
	if err != nil {
		return err
	}

	if len(grupos) == 0 {
		return nil
	}

	s.logger.Info("要約サイクルを開始します",
		slog.Int("grupo_count", len(grupos)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, grupo := range grupos {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(g *model.Grupo) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.generator.Generate(ctx, g); err != nil {
				s.logger.Error("グループ要約の生成に失敗しました",
					slog.String("grupo_id", g.ID),
					slog.String("error", err.Error()),
				)
			}
		}(grupo)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("要約サイクルが完了しました",
		slog.Int("grupo_count", len(grupos)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
