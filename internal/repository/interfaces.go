// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/intellizapp/resumefy/internal/model"
)

// UsuarioRepository はユーザープロフィールの永続化インターフェース。
type UsuarioRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	// プロフィールの不在はエラーではなく状態として扱う。
	FindByID(ctx context.Context, id string) (*model.Usuario, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Usuario, error)

	// Create はユーザーを作成する。
	// email重複時はmodel.NewDuplicateEmailError()を返す。
	Create(ctx context.Context, usuario *model.Usuario) error

	// UpdatePerfil はプロフィールを部分更新する。nilフィールドは変更しない。
	// id、email、criado_emは更新対象から除外される。
	UpdatePerfil(ctx context.Context, id string, update model.PerfilUpdate) (*model.Usuario, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、grupos、intellichat_*はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateExpiry はセッションの有効期限を更新する。
	// 同時リフレッシュはlast-write-winsで収束する。
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUsuarioID は指定ユーザーの全セッションを削除する。
	DeleteByUsuarioID(ctx context.Context, usuarioID string) error
}

// GrupoRepository はグループデータの永続化インターフェース。
type GrupoRepository interface {
	// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Grupo, error)

	// FindByUsuarioAndExternalID は(usuario_id, grupo_id_externo)でグループを検索する。
	// 見つからない場合はnilを返す。重複登録の事前チェックに使用する。
	FindByUsuarioAndExternalID(ctx context.Context, usuarioID, grupoIDExterno string) (*model.Grupo, error)

	// CountByUsuarioID はユーザーの登録グループ数を返す。
	CountByUsuarioID(ctx context.Context, usuarioID string) (int, error)

	// CreateWithinQuota は登録グループ数がmaxGrupos未満の場合に限りグループを
	// 作成する。枠の確認と挿入は同一トランザクションで行い、オーナーのusuarios
	// 行をFOR UPDATEでロックして同一ユーザーの並行登録を直列化する。
	// 枠超過時はmodel.NewGroupLimitError(maxGrupos)、
	// (usuario_id, grupo_id_externo)のUNIQUE制約違反は
	// model.NewDuplicateGroupError()に変換される。
	CreateWithinQuota(ctx context.Context, grupo *model.Grupo, maxGrupos int) error

	// ListByUsuarioID はユーザーのグループ一覧をページネーション付きで返す。
	// 戻り値の2番目は全件数。criado_em降順で返す。
	ListByUsuarioID(ctx context.Context, usuarioID string, page, limit int) ([]*model.Grupo, int, error)

	// Update はグループを部分更新する。nilフィールドは変更しない。
	UpdateCampos(ctx context.Context, id string, update model.GrupoUpdate) (*model.Grupo, error)

	// UpdateModo はモードフィールド（iaoculta）のみを更新する。
	// 他の属性（トグル、外部ID、作成時刻）は保持される。
	UpdateModo(ctx context.Context, id string, iaoculta bool) error

	// Delete は指定IDのグループを削除する。
	Delete(ctx context.Context, id string) error

	// ListDueForResumo は要約生成対象のグループを取得する。
	// resumo_ativoかつオーナーのplano_ativoが真で、要約時刻を過ぎており、
	// 当日分が未生成のグループをFOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForResumo(ctx context.Context) ([]*model.Grupo, error)

	// UpdateUltimoResumo は最終要約時刻を記録する。
	UpdateUltimoResumo(ctx context.Context, id string, em time.Time) error
}

// ChatRepository はIntellichatのセッション・メッセージ永続化インターフェース。
type ChatRepository interface {
	// CreateSession はチャットセッションを作成する。
	// 同一トランザクションで同一ユーザーの既存セッションを全て非アクティブ化し、
	// 「アクティブなセッションは常に1つ」の不変条件を維持する。
	CreateSession(ctx context.Context, sessao *model.ChatSession) error

	// FindSessionByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	FindSessionByID(ctx context.Context, id string) (*model.ChatSession, error)

	// FindActiveSession はユーザーのアクティブなセッションを取得する。
	// 存在しない場合はnilを返す。
	FindActiveSession(ctx context.Context, usuarioID string) (*model.ChatSession, error)

	// ListSessionsByUsuario はユーザーのセッション一覧をcriado_em降順で返す。
	ListSessionsByUsuario(ctx context.Context, usuarioID string) ([]*model.ChatSession, error)

	// CreateMessage はメッセージを作成する。
	CreateMessage(ctx context.Context, msg *model.ChatMessage) error

	// ListMessagesBySession はセッションのメッセージ一覧をcriado_em昇順で返す。
	ListMessagesBySession(ctx context.Context, sessaoID string) ([]*model.ChatMessage, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
