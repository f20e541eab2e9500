// Package model はドメインモデルを定義する。
package model

import "time"

// Grupo は要約対象として登録されたWhatsAppグループを表す。
// (UsuarioID, GrupoIDExterno) の組はユーザーごとに一意。
// IAOcultaがモードを表し、true=非公開（アプリ内のみ）、false=公開（グループに投稿）。
// モードの変更はTransfer操作による単一フィールド更新であり、再作成ではない。
type Grupo struct {
	ID             string
	UsuarioID      string
	NomeGrupo      string
	GrupoIDExterno string
	IAOculta       bool
	Ativo          bool

	// グループ単位のトグル
	TranscricaoAtiva bool
	ResumoAtivo      bool
	TomLudico        bool

	UltimoResumoEm *time.Time
	CriadoEm       time.Time
	AtualizadoEm   time.Time
}

// CandidatoGrupo はゲートウェイから取得した未登録グループの候補を表す。
// 登録時の入力となる。
type CandidatoGrupo struct {
	NomeGrupo      string
	GrupoIDExterno string
	Participantes  int
	Descricao      string
}

// GrupoUpdate はグループ部分更新の入力を表す。nilフィールドは変更しない。
// ID、CriadoEm、UsuarioID、IAOcultaは意図的に含めない。
// モードの変更はTransfer操作のみが行う。
type GrupoUpdate struct {
	NomeGrupo        *string
	Ativo            *bool
	TranscricaoAtiva *bool
	ResumoAtivo      *bool
	TomLudico        *bool
}
