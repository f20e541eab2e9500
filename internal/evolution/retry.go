package evolution

import (
	"context"
	"errors"
	"time"
)

// ErrKind はゲートウェイエラーのリトライ方針に基づく分類。
type ErrKind int

const (
	// ErrKindTimeout はタイムアウト。リトライ対象。
	ErrKindTimeout ErrKind = iota
	// ErrKindTransient は一時的な失敗（接続断・5xx）。リトライ対象。
	ErrKindTransient
	// ErrKindTerminal は恒久的な失敗（4xx）。リトライしない。
	ErrKindTerminal
	// ErrKindMalformed はレスポンスの形式不正。リトライしない。
	ErrKindMalformed
)

// Error は種別付きのゲートウェイエラー。
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

const (
	// initialBackoff は指数バックオフの初回遅延（1秒）。
	initialBackoff = 1 * time.Second
	// maxBackoff は指数バックオフの最大遅延（30秒）。
	maxBackoff = 30 * time.Second
	// defaultMaxAttempts はリトライを含めた最大試行回数。
	defaultMaxAttempts = 4
)

// IsRetryable はエラーがリトライ対象かを判定する。
// タイムアウトと一時的な失敗のみリトライし、4xxや形式不正は打ち切る。
func IsRetryable(err error) bool {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind == ErrKindTimeout || gwErr.Kind == ErrKindTransient
	}
	return false
}

// CalculateBackoff は試行回数に基づいて指数バックオフ遅延を計算する。
// 初回1秒、2倍ずつ増加、最大30秒。
func CalculateBackoff(attempt int) time.Duration {
	delay := initialBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// WithRetry はfnをリトライ付きで実行する。
// リトライ対象外のエラーは即座に返す。contextのキャンセルで待機を打ち切る。
func WithRetry[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < defaultMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(CalculateBackoff(attempt - 1)):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}
