package evolution

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalculateBackoff_ExponentialWithCap(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32秒は上限30秒に丸められる
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.attempt); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"タイムアウト", &Error{Kind: ErrKindTimeout, Err: errors.New("timeout")}, true},
		{"一時的な失敗", &Error{Kind: ErrKindTransient, Err: errors.New("503")}, true},
		{"恒久的な失敗", &Error{Kind: ErrKindTerminal, Err: errors.New("400")}, false},
		{"形式不正", &Error{Kind: ErrKindMalformed, Err: errors.New("bad json")}, false},
		{"種別なしのエラー", errors.New("plain error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryable_WrappedError(t *testing.T) {
	inner := &Error{Kind: ErrKindTransient, Err: errors.New("connection reset")}
	wrapped := errors.Join(errors.New("outer"), inner)
	if !IsRetryable(wrapped) {
		t.Error("errors.As should unwrap to the gateway error")
	}
}

func TestWithRetry_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	result, err := WithRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, want %q", result, "ok")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_TerminalError_NoRetry(t *testing.T) {
	calls := 0
	terminal := &Error{Kind: ErrKindTerminal, Err: errors.New("404")}
	_, err := WithRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", terminal
	})
	if !errors.Is(err, terminal) {
		t.Errorf("err = %v, want terminal error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for terminal errors)", calls)
	}
}

func TestWithRetry_TransientError_RetriesThenSucceeds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping retry backoff test in short mode")
	}
	calls := 0
	result, err := WithRetry(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, &Error{Kind: ErrKindTransient, Err: errors.New("503")}
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if result != 42 {
		t.Errorf("result = %d, want 42", result)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestWithRetry_ContextCancelled_AbortsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = WithRetry(ctx, func(ctx context.Context) (string, error) {
			calls++
			return "", &Error{Kind: ErrKindTransient, Err: errors.New("503")}
		})
	}()

	// 初回失敗後のバックオフ待機中にキャンセルする
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WithRetry did not return promptly after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
