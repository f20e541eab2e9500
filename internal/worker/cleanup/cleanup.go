// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 満了したセッションと、メッセージが1件もないまま放置された古いチャット
// セッションを日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れデータの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db                  Executor
	logger              *slog.Logger
	EmptyChatMaxAgeDays int // 空チャットセッションの保持日数（デフォルト: 7）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:                  db,
		logger:              logger,
		EmptyChatMaxAgeDays: 7,
	}
}

// Run は期限切れセッションと放置された空チャットセッションを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessionsDeleted, err := j.deleteExpiredSessions(ctx)
	if err != nil {
		return err
	}

	chatsDeleted, err := j.deleteStaleEmptyChats(ctx)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("cleanup job completed",
		slog.Int64("sessions_deleted", sessionsDeleted),
		slog.Int64("empty_chats_deleted", chatsDeleted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// deleteExpiredSessions は満了したセッション行を削除する。
// セッション検証は満了行を読まないため、この削除は容量回収のみが目的。
func (j *CleanupJob) deleteExpiredSessions(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < now()`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	return result.RowsAffected()
}

// deleteStaleEmptyChats はメッセージが1件もないまま保持日数を超過した
// チャットセッションを削除する。
func (j *CleanupJob) deleteStaleEmptyChats(ctx context.Context) (int64, error) {
	interval := fmt.Sprintf("%d days", j.EmptyChatMaxAgeDays)

	query := `
		DELETE FROM intellichat_sessions s
		WHERE s.criado_em < now() - $1::interval
		  AND NOT EXISTS (
			SELECT 1 FROM intellichat_mensagens m WHERE m.sessao_id = s.id
		  )`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("空チャットセッションの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("max_age_days", j.EmptyChatMaxAgeDays),
		)
		return 0, fmt.Errorf("空チャットセッションの削除に失敗: %w", err)
	}
	return result.RowsAffected()
}
