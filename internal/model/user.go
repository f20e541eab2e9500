// Package model はドメインモデルを定義する。
package model

import "time"

// デフォルトのプロフィール初期値。
// プロフィールは初回認証時に遅延作成され、この値でシードされる。
const (
	DefaultMaxGrupos    = 3
	DefaultLimiteTokens = 1000
)

// Usuario はサービス利用ユーザーのプロフィールを表す。
// IdP側のアイデンティティと1:1で対応する。emailは作成後に変更不可。
type Usuario struct {
	ID           string
	Nome         string
	Email        string
	SenhaHash    string
	Instancia    string // WhatsAppゲートウェイのインスタンス名
	PlanoAtivo   bool
	MaxGrupos    int
	LimiteTokens int

	// 自動化設定
	HorarioResumo      string // "HH:MM" 形式
	TranscricaoAtiva   bool
	TomLudico          bool
	AgendamentoAtivo   bool
	IncluirDiaAnterior bool

	CriadoEm     time.Time
	AtualizadoEm time.Time
}

// PerfilUpdate はプロフィール部分更新の入力を表す。
// nilフィールドは変更しない。ID、Email、CriadoEmは更新対象に含めない。
type PerfilUpdate struct {
	Nome               *string
	Instancia          *string
	HorarioResumo      *string
	TranscricaoAtiva   *bool
	TomLudico          *bool
	AgendamentoAtivo   *bool
	IncluirDiaAnterior *bool
}
