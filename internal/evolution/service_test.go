package evolution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/intellizapp/resumefy/internal/model"
)

type mockGateway struct {
	statusFn      func(ctx context.Context, instancia string) (*InstanceStatus, error)
	fetchGroupsFn func(ctx context.Context, instancia string) ([]*model.CandidatoGrupo, error)
	sendTextFn    func(ctx context.Context, instancia, grupoIDExterno, texto string) error
}

func (m *mockGateway) Status(ctx context.Context, instancia string) (*InstanceStatus, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, instancia)
	}
	return nil, nil
}

func (m *mockGateway) FetchGroups(ctx context.Context, instancia string) ([]*model.CandidatoGrupo, error) {
	if m.fetchGroupsFn != nil {
		return m.fetchGroupsFn(ctx, instancia)
	}
	return nil, nil
}

func (m *mockGateway) SendText(ctx context.Context, instancia, grupoIDExterno, texto string) error {
	if m.sendTextFn != nil {
		return m.sendTextFn(ctx, instancia, grupoIDExterno, texto)
	}
	return nil
}

func TestGetStatus_DelegatesToGateway(t *testing.T) {
	gateway := &mockGateway{
		statusFn: func(ctx context.Context, instancia string) (*InstanceStatus, error) {
			return &InstanceStatus{Connected: true, State: "open", Instance: instancia}, nil
		},
	}
	svc := NewService(gateway, NewGroupCache(0))

	status, err := svc.GetStatus(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if !status.Connected {
		t.Error("expected Connected = true")
	}
}

func TestGetGroups_CacheMiss_FetchesAndStores(t *testing.T) {
	fetches := 0
	gateway := &mockGateway{
		fetchGroupsFn: func(ctx context.Context, instancia string) ([]*model.CandidatoGrupo, error) {
			fetches++
			return candidatos("家族"), nil
		},
	}
	svc := NewService(gateway, NewGroupCache(300*time.Second))

	got, err := svc.GetGroups(context.Background(), "inst-1", "usuario-1")
	if err != nil {
		t.Fatalf("GetGroups() error = %v", err)
	}
	if len(got) != 1 || got[0].NomeGrupo != "家族" {
		t.Errorf("got = %+v", got)
	}

	// 2回目は鮮度内キャッシュから返り、ゲートウェイを呼ばない
	if _, err := svc.GetGroups(context.Background(), "inst-1", "usuario-1"); err != nil {
		t.Fatalf("GetGroups() second call error = %v", err)
	}
	if fetches != 1 {
		t.Errorf("gateway fetches = %d, want 1", fetches)
	}
}

func TestGetGroups_DifferentUsuario_DoesNotShareCache(t *testing.T) {
	fetches := 0
	gateway := &mockGateway{
		fetchGroupsFn: func(ctx context.Context, instancia string) ([]*model.CandidatoGrupo, error) {
			fetches++
			return candidatos("グループ"), nil
		},
	}
	svc := NewService(gateway, NewGroupCache(300*time.Second))

	svc.GetGroups(context.Background(), "inst-1", "usuario-A")
	svc.GetGroups(context.Background(), "inst-1", "usuario-B")

	if fetches != 2 {
		t.Errorf("gateway fetches = %d, want 2 (cache must not be shared across usuarios)", fetches)
	}
}

func TestGetGroups_TerminalError_NotCached(t *testing.T) {
	gateway := &mockGateway{
		fetchGroupsFn: func(ctx context.Context, instancia string) ([]*model.CandidatoGrupo, error) {
			return nil, &Error{Kind: ErrKindTerminal, Err: errors.New("401")}
		},
	}
	cache := NewGroupCache(300 * time.Second)
	svc := NewService(gateway, cache)

	_, err := svc.GetGroups(context.Background(), "inst-1", "usuario-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if _, ok := cache.Get("inst-1", "usuario-1"); ok {
		t.Error("failed fetch must not populate the cache")
	}
}

func TestSendText_DelegatesToGateway(t *testing.T) {
	var gotInstancia, gotGrupo, gotTexto string
	gateway := &mockGateway{
		sendTextFn: func(ctx context.Context, instancia, grupoIDExterno, texto string) error {
			gotInstancia, gotGrupo, gotTexto = instancia, grupoIDExterno, texto
			return nil
		},
	}
	svc := NewService(gateway, NewGroupCache(0))

	if err := svc.SendText(context.Background(), "inst-1", "111@g.us", "要約"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if gotInstancia != "inst-1" || gotGrupo != "111@g.us" || gotTexto != "要約" {
		t.Errorf("gateway called with (%q, %q, %q)", gotInstancia, gotGrupo, gotTexto)
	}
}

func TestSendText_TerminalError_NoRetry(t *testing.T) {
	calls := 0
	gateway := &mockGateway{
		sendTextFn: func(ctx context.Context, instancia, grupoIDExterno, texto string) error {
			calls++
			return &Error{Kind: ErrKindTerminal, Err: errors.New("400")}
		},
	}
	svc := NewService(gateway, NewGroupCache(0))

	if err := svc.SendText(context.Background(), "inst-1", "111@g.us", "要約"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
