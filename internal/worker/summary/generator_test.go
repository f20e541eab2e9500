package summary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/intellizapp/resumefy/internal/model"
	"github.com/intellizapp/resumefy/internal/webhook"
)

// --- モック定義 ---

type mockGrupoRepo struct {
	mu                   sync.Mutex
	listDueForResumoFn   func(ctx context.Context) ([]*model.Grupo, error)
	updateUltimoResumoFn func(ctx context.Context, id string, em time.Time) error
}

func (m *mockGrupoRepo) FindByID(ctx context.Context, id string) (*model.Grupo, error) {
	return nil, nil
}

func (m *mockGrupoRepo) FindByUsuarioAndExternalID(ctx context.Context, usuarioID, grupoIDExterno string) (*model.Grupo, error) {
	return nil, nil
}

func (m *mockGrupoRepo) CountByUsuarioID(ctx context.Context, usuarioID string) (int, error) {
	return 0, nil
}

func (m *mockGrupoRepo) CreateWithinQuota(ctx context.Context, grupo *model.Grupo, maxGrupos int) error {
	return nil
}

func (m *mockGrupoRepo) ListByUsuarioID(ctx context.Context, usuarioID string, page, limit int) ([]*model.Grupo, int, error) {
	return nil, 0, nil
}

func (m *mockGrupoRepo) UpdateCampos(ctx context.Context, id string, update model.GrupoUpdate) (*model.Grupo, error) {
	return nil, nil
}

func (m *mockGrupoRepo) UpdateModo(ctx context.Context, id string, iaoculta bool) error {
	return nil
}

func (m *mockGrupoRepo) Delete(ctx context.Context, id string) error { return nil }

func (m *mockGrupoRepo) ListDueForResumo(ctx context.Context) ([]*model.Grupo, error) {
	if m.listDueForResumoFn != nil {
		return m.listDueForResumoFn(ctx)
	}
	return nil, nil
}

func (m *mockGrupoRepo) UpdateUltimoResumo(ctx context.Context, id string, em time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateUltimoResumoFn != nil {
		return m.updateUltimoResumoFn(ctx, id, em)
	}
	return nil
}

type mockUsuarioRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Usuario, error)
}

func (m *mockUsuarioRepo) FindByID(ctx context.Context, id string) (*model.Usuario, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUsuarioRepo) FindByEmail(ctx context.Context, email string) (*model.Usuario, error) {
	return nil, nil
}

func (m *mockUsuarioRepo) Create(ctx context.Context, usuario *model.Usuario) error { return nil }

func (m *mockUsuarioRepo) UpdatePerfil(ctx context.Context, id string, update model.PerfilUpdate) (*model.Usuario, error) {
	return nil, nil
}

func (m *mockUsuarioRepo) DeleteByID(ctx context.Context, id string) error { return nil }

type mockProducer struct {
	generateSummaryFn func(ctx context.Context, req webhook.SummaryRequest) (string, error)
}

func (m *mockProducer) GenerateSummary(ctx context.Context, req webhook.SummaryRequest) (string, error) {
	if m.generateSummaryFn != nil {
		return m.generateSummaryFn(ctx, req)
	}
	return "要約テキスト", nil
}

type mockSender struct {
	sendTextFn func(ctx context.Context, instancia, grupoIDExterno, texto string) error
}

func (m *mockSender) SendText(ctx context.Context, instancia, grupoIDExterno, texto string) error {
	if m.sendTextFn != nil {
		return m.sendTextFn(ctx, instancia, grupoIDExterno, texto)
	}
	return nil
}

type mockDeliverer struct {
	storeAssistantNoteFn func(ctx context.Context, usuarioID, titulo, conteudo string) error
}

func (m *mockDeliverer) StoreAssistantNote(ctx context.Context, usuarioID, titulo, conteudo string) error {
	if m.storeAssistantNoteFn != nil {
		return m.storeAssistantNoteFn(ctx, usuarioID, titulo, conteudo)
	}
	return nil
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(raw string) string { return strings.TrimSpace(raw) }

type mockMetrics struct {
	mu        sync.Mutex
	successes []string
	failures  map[string]string
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{failures: make(map[string]string)}
}

func (m *mockMetrics) RecordResumoSuccess(grupoID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes = append(m.successes, grupoID)
}

func (m *mockMetrics) RecordResumoFailure(grupoID string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[grupoID] = reason
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func activeUsuario() *model.Usuario {
	return &model.Usuario{
		ID:                 "usuario-1",
		Instancia:          "inst-1",
		PlanoAtivo:         true,
		LimiteTokens:       1000,
		IncluirDiaAnterior: true,
	}
}

func publicGrupo() *model.Grupo {
	return &model.Grupo{
		ID:             "grupo-1",
		UsuarioID:      "usuario-1",
		NomeGrupo:      "家族グループ",
		GrupoIDExterno: "111@g.us",
		IAOculta:       false,
		TomLudico:      true,
	}
}

func hiddenGrupo() *model.Grupo {
	g := publicGrupo()
	g.IAOculta = true
	return g
}

type generatorDeps struct {
	grupoRepo   *mockGrupoRepo
	usuarioRepo *mockUsuarioRepo
	producer    *mockProducer
	sender      *mockSender
	deliverer   *mockDeliverer
	metrics     *mockMetrics
}

func newTestGenerator(deps generatorDeps) *Generator {
	if deps.grupoRepo == nil {
		deps.grupoRepo = &mockGrupoRepo{}
	}
	if deps.usuarioRepo == nil {
		deps.usuarioRepo = &mockUsuarioRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.Usuario, error) {
				return activeUsuario(), nil
			},
		}
	}
	if deps.producer == nil {
		deps.producer = &mockProducer{}
	}
	if deps.sender == nil {
		deps.sender = &mockSender{}
	}
	if deps.deliverer == nil {
		deps.deliverer = &mockDeliverer{}
	}
	if deps.metrics == nil {
		deps.metrics = newMockMetrics()
	}
	return NewGenerator(deps.grupoRepo, deps.usuarioRepo, deps.producer, deps.sender, deps.deliverer, passthroughSanitizer{}, deps.metrics, testLogger())
}

// --- Generate ---

func TestGenerate_PublicMode_SendsToGroup(t *testing.T) {
	var sentInstancia, sentGrupo, sentTexto string
	sender := &mockSender{
		sendTextFn: func(ctx context.Context, instancia, grupoIDExterno, texto string) error {
			sentInstancia, sentGrupo, sentTexto = instancia, grupoIDExterno, texto
			return nil
		},
	}
	deliverer := &mockDeliverer{
		storeAssistantNoteFn: func(ctx context.Context, usuarioID, titulo, conteudo string) error {
			t.Error("public mode must not deliver to chat")
			return nil
		},
	}
	metrics := newMockMetrics()
	gen := newTestGenerator(generatorDeps{sender: sender, deliverer: deliverer, metrics: metrics})

	if err := gen.Generate(context.Background(), publicGrupo()); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if sentInstancia != "inst-1" || sentGrupo != "111@g.us" || sentTexto != "要約テキスト" {
		t.Errorf("SendText called with (%q, %q, %q)", sentInstancia, sentGrupo, sentTexto)
	}
	if len(metrics.successes) != 1 {
		t.Errorf("successes = %v, want 1 entry", metrics.successes)
	}
}

func TestGenerate_HiddenMode_DeliversToChatOnly(t *testing.T) {
	sender := &mockSender{
		sendTextFn: func(ctx context.Context, instancia, grupoIDExterno, texto string) error {
			t.Error("hidden mode must never send to the group")
			return nil
		},
	}
	var notedUsuario, notedTitulo, notedConteudo string
	deliverer := &mockDeliverer{
		storeAssistantNoteFn: func(ctx context.Context, usuarioID, titulo, conteudo string) error {
			notedUsuario, notedTitulo, notedConteudo = usuarioID, titulo, conteudo
			return nil
		},
	}
	gen := newTestGenerator(generatorDeps{sender: sender, deliverer: deliverer})

	if err := gen.Generate(context.Background(), hiddenGrupo()); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if notedUsuario != "usuario-1" {
		t.Errorf("delivered to usuario %q", notedUsuario)
	}
	if !strings.Contains(notedTitulo, "家族グループ") {
		t.Errorf("titulo = %q, should reference the group name", notedTitulo)
	}
	if notedConteudo != "要約テキスト" {
		t.Errorf("conteudo = %q", notedConteudo)
	}
}

func TestGenerate_PassesOwnerSettingsToWebhook(t *testing.T) {
	var gotReq webhook.SummaryRequest
	producer := &mockProducer{
		generateSummaryFn: func(ctx context.Context, req webhook.SummaryRequest) (string, error) {
			gotReq = req
			return "要約", nil
		},
	}
	gen := newTestGenerator(generatorDeps{producer: producer})

	if err := gen.Generate(context.Background(), publicGrupo()); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := webhook.SummaryRequest{
		UsuarioID:      "usuario-1",
		GrupoIDExterno: "111@g.us",
		NomeGrupo:      "家族グループ",
		TomLudico:      true,
		LimiteTokens:   1000,
		IncluirOntem:   true,
	}
	if gotReq != want {
		t.Errorf("request = %+v, want %+v", gotReq, want)
	}
}

// 配送が完了するまでultimo_resumo_emを更新しない。失敗したグループは
// 次のサイクルで再試行される。
func TestGenerate_DeliveryFails_DoesNotRecordTimestamp(t *testing.T) {
	grupoRepo := &mockGrupoRepo{
		updateUltimoResumoFn: func(ctx context.Context, id string, em time.Time) error {
			t.Error("UpdateUltimoResumo must not be called when delivery fails")
			return nil
		},
	}
	sender := &mockSender{
		sendTextFn: func(ctx context.Context, instancia, grupoIDExterno, texto string) error {
			return errors.New("gateway down")
		},
	}
	metrics := newMockMetrics()
	gen := newTestGenerator(generatorDeps{grupoRepo: grupoRepo, sender: sender, metrics: metrics})

	if err := gen.Generate(context.Background(), publicGrupo()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if metrics.failures["grupo-1"] != "gateway_delivery" {
		t.Errorf("failure reason = %q, want gateway_delivery", metrics.failures["grupo-1"])
	}
}

func TestGenerate_SuccessRecordsTimestamp(t *testing.T) {
	var recordedID string
	grupoRepo := &mockGrupoRepo{
		updateUltimoResumoFn: func(ctx context.Context, id string, em time.Time) error {
			recordedID = id
			return nil
		},
	}
	gen := newTestGenerator(generatorDeps{grupoRepo: grupoRepo})

	if err := gen.Generate(context.Background(), publicGrupo()); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if recordedID != "grupo-1" {
		t.Errorf("recorded grupo ID = %q", recordedID)
	}
}

// 所有者のプラン失効やアカウント削除との競合は黙ってスキップする。
func TestGenerate_InactivePlan_SkipsSilently(t *testing.T) {
	usuarioRepo := &mockUsuarioRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Usuario, error) {
			u := activeUsuario()
			u.PlanoAtivo = false
			return u, nil
		},
	}
	producer := &mockProducer{
		generateSummaryFn: func(ctx context.Context, req webhook.SummaryRequest) (string, error) {
			t.Error("webhook must not be called for inactive plans")
			return "", nil
		},
	}
	metrics := newMockMetrics()
	gen := newTestGenerator(generatorDeps{usuarioRepo: usuarioRepo, producer: producer, metrics: metrics})

	if err := gen.Generate(context.Background(), publicGrupo()); err != nil {
		t.Errorf("Generate() error = %v, want nil (silent skip)", err)
	}
	if len(metrics.successes) != 0 || len(metrics.failures) != 0 {
		t.Error("skip should record neither success nor failure")
	}
}

func TestGenerate_MissingOwner_SkipsSilently(t *testing.T) {
	usuarioRepo := &mockUsuarioRepo{}
	gen := newTestGenerator(generatorDeps{usuarioRepo: usuarioRepo})

	if err := gen.Generate(context.Background(), publicGrupo()); err != nil {
		t.Errorf("Generate() error = %v, want nil", err)
	}
}

func TestGenerate_WebhookFails_RecordsFailure(t *testing.T) {
	producer := &mockProducer{
		generateSummaryFn: func(ctx context.Context, req webhook.SummaryRequest) (string, error) {
			return "", errors.New("webhook down")
		},
	}
	metrics := newMockMetrics()
	gen := newTestGenerator(generatorDeps{producer: producer, metrics: metrics})

	if err := gen.Generate(context.Background(), publicGrupo()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if metrics.failures["grupo-1"] != "webhook" {
		t.Errorf("failure reason = %q, want webhook", metrics.failures["grupo-1"])
	}
}

// サニタイズ後に空になった要約は配送しない。
func TestGenerate_EmptyAfterSanitize_Fails(t *testing.T) {
	producer := &mockProducer{
		generateSummaryFn: func(ctx context.Context, req webhook.SummaryRequest) (string, error) {
			return "   \n  ", nil
		},
	}
	sender := &mockSender{
		sendTextFn: func(ctx context.Context, instancia, grupoIDExterno, texto string) error {
			t.Error("empty summary must not be delivered")
			return nil
		},
	}
	metrics := newMockMetrics()
	gen := newTestGenerator(generatorDeps{producer: producer, sender: sender, metrics: metrics})

	if err := gen.Generate(context.Background(), publicGrupo()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if metrics.failures["grupo-1"] != "empty_summary" {
		t.Errorf("failure reason = %q, want empty_summary", metrics.failures["grupo-1"])
	}
}

func TestGenerate_ChatDeliveryFails_RecordsFailure(t *testing.T) {
	deliverer := &mockDeliverer{
		storeAssistantNoteFn: func(ctx context.Context, usuarioID, titulo, conteudo string) error {
			return errors.New("db down")
		},
	}
	metrics := newMockMetrics()
	gen := newTestGenerator(generatorDeps{deliverer: deliverer, metrics: metrics})

	if err := gen.Generate(context.Background(), hiddenGrupo()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if metrics.failures["grupo-1"] != "chat_delivery" {
		t.Errorf("failure reason = %q, want chat_delivery", metrics.failures["grupo-1"])
	}
}
