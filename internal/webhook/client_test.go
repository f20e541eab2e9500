package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, string) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewClient(ts.Client(), logger, Config{
		ChatURL:    ts.URL + "/chat",
		SummaryURL: ts.URL + "/summary",
		ResetURL:   ts.URL + "/reset",
	}), ts.URL
}

// --- AskAssistant ---

func TestAskAssistant_ResponseField(t *testing.T) {
	var gotBody map[string]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"response": "こんにちは！"})
	})

	got, err := client.AskAssistant(context.Background(), "usuario-1", "おはよう")
	if err != nil {
		t.Fatalf("AskAssistant() error = %v", err)
	}
	if got != "こんにちは！" {
		t.Errorf("got %q, want %q", got, "こんにちは！")
	}
	if gotBody["usuario_id"] != "usuario-1" || gotBody["input"] != "おはよう" {
		t.Errorf("request body = %+v", gotBody)
	}
}

// 自動化側のバージョンによってはresponseではなくoutputで返る。
func TestAskAssistant_OutputFieldFallback(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"output": "旧フォーマット応答"})
	})

	got, err := client.AskAssistant(context.Background(), "usuario-1", "テスト")
	if err != nil {
		t.Fatalf("AskAssistant() error = %v", err)
	}
	if got != "旧フォーマット応答" {
		t.Errorf("got %q, want %q", got, "旧フォーマット応答")
	}
}

// responseとoutputが両方あればresponseを優先する。
func TestAskAssistant_ResponsePreferredOverOutput(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"response": "新",
			"output":   "旧",
		})
	})

	got, err := client.AskAssistant(context.Background(), "usuario-1", "テスト")
	if err != nil {
		t.Fatalf("AskAssistant() error = %v", err)
	}
	if got != "新" {
		t.Errorf("got %q, want %q", got, "新")
	}
}

func TestAskAssistant_NotConfigured(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	client := NewClient(http.DefaultClient, logger, Config{})

	_, err := client.AskAssistant(context.Background(), "usuario-1", "テスト")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestAskAssistant_ErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.AskAssistant(context.Background(), "usuario-1", "テスト")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

// --- GenerateSummary ---

func TestGenerateSummary_Success(t *testing.T) {
	var gotReq SummaryRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]string{"resumo": "本日の要約です"})
	})

	req := SummaryRequest{
		UsuarioID:      "usuario-1",
		GrupoIDExterno: "111@g.us",
		NomeGrupo:      "家族グループ",
		TomLudico:      true,
		LimiteTokens:   1000,
		IncluirOntem:   true,
	}
	got, err := client.GenerateSummary(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateSummary() error = %v", err)
	}
	if got != "本日の要約です" {
		t.Errorf("got %q", got)
	}
	if gotReq != req {
		t.Errorf("request = %+v, want %+v", gotReq, req)
	}
}

// 空の要約は配送してはならないためエラーとして扱う。
func TestGenerateSummary_EmptyResumo_ReturnsError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"resumo": ""})
	})

	_, err := client.GenerateSummary(context.Background(), SummaryRequest{UsuarioID: "usuario-1"})
	if err == nil {
		t.Fatal("expected error for empty resumo")
	}
}

func TestGenerateSummary_NotConfigured(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	client := NewClient(http.DefaultClient, logger, Config{ChatURL: "http://example.com/chat"})

	_, err := client.GenerateSummary(context.Background(), SummaryRequest{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestGenerateSummary_MalformedResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	})

	_, err := client.GenerateSummary(context.Background(), SummaryRequest{UsuarioID: "usuario-1"})
	if err == nil {
		t.Fatal("expected error for malformed response")
	}
}

// --- SendPasswordReset ---

func TestSendPasswordReset_PostsEmail(t *testing.T) {
	var gotBody map[string]string
	var gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
	})

	if err := client.SendPasswordReset(context.Background(), "test@example.com"); err != nil {
		t.Fatalf("SendPasswordReset() error = %v", err)
	}
	if gotPath != "/reset" {
		t.Errorf("path = %q, want /reset", gotPath)
	}
	if gotBody["email"] != "test@example.com" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestSendPasswordReset_NotConfigured(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	client := NewClient(http.DefaultClient, logger, Config{})

	err := client.SendPasswordReset(context.Background(), "test@example.com")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}
