package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/intellizapp/resumefy/internal/model"
)

// PostgresGrupoRepo はPostgreSQLを使用したグループリポジトリ。
type PostgresGrupoRepo struct {
	db *sql.DB
}

// NewPostgresGrupoRepo はPostgresGrupoRepoを生成する。
func NewPostgresGrupoRepo(db *sql.DB) *PostgresGrupoRepo {
	return &PostgresGrupoRepo{db: db}
}

// grupoColumns はSELECT句で使用するカラムリスト。scanGrupoRowと順序を揃えること。
const grupoColumns = `id, usuario_id, nome_grupo, grupo_id_externo, iaoculta, ativo,
	transcricao_ativa, resumo_ativo, tom_ludico, ultimo_resumo_em, criado_em, atualizado_em`

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanGrupoRow は1行をmodel.Grupoに読み取る。
func scanGrupoRow(row rowScanner) (*model.Grupo, error) {
	g := &model.Grupo{}
	var ultimoResumo sql.NullTime
	err := row.Scan(
		&g.ID, &g.UsuarioID, &g.NomeGrupo, &g.GrupoIDExterno, &g.IAOculta, &g.Ativo,
		&g.TranscricaoAtiva, &g.ResumoAtivo, &g.TomLudico, &ultimoResumo,
		&g.CriadoEm, &g.AtualizadoEm,
	)
	if err != nil {
		return nil, err
	}
	if ultimoResumo.Valid {
		t := ultimoResumo.Time
		g.UltimoResumoEm = &t
	}
	return g, nil
}

// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
func (r *PostgresGrupoRepo) FindByID(ctx context.Context, id string) (*model.Grupo, error) {
	g, err := scanGrupoRow(r.db.QueryRowContext(ctx,
		`SELECT `+grupoColumns+` FROM grupos WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find grupo by ID: %w", err)
	}
	return g, nil
}

// FindByUsuarioAndExternalID は(usuario_id, grupo_id_externo)でグループを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresGrupoRepo) FindByUsuarioAndExternalID(ctx context.Context, usuarioID, grupoIDExterno string) (*model.Grupo, error) {
	g, err := scanGrupoRow(r.db.QueryRowContext(ctx,
		`SELECT `+grupoColumns+` FROM grupos
		 WHERE usuario_id = $1 AND grupo_id_externo = $2`,
		usuarioID, grupoIDExterno,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find grupo by external ID: %w", err)
	}
	return g, nil
}

// CountByUsuarioID はユーザーの登録グループ数を返す。
func (r *PostgresGrupoRepo) CountByUsuarioID(ctx context.Context, usuarioID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM grupos WHERE usuario_id = $1`,
		usuarioID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count grupos: %w", err)
	}
	return count, nil
}

// CreateWithinQuota は枠の確認と挿入を同一トランザクションで行いグループを作成する。
// オーナーのusuarios行をFOR UPDATEでロックし、同一ユーザーの並行登録を直列化する。
// 枠超過はGROUP_LIMIT、(usuario_id, grupo_id_externo)のUNIQUE制約違反は
// DUPLICATE_GROUPエラーに変換される。
func (r *PostgresGrupoRepo) CreateWithinQuota(ctx context.Context, grupo *model.Grupo, maxGrupos int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// オーナー行のロックが取れるまで、同一ユーザーの他の登録は待たされる
	var ownerID string
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM usuarios WHERE id = $1 FOR UPDATE`, grupo.UsuarioID,
	).Scan(&ownerID); err != nil {
		if err == sql.ErrNoRows {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("failed to lock usuario row: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM grupos WHERE usuario_id = $1`, grupo.UsuarioID,
	).Scan(&count); err != nil {
		return fmt.Errorf("failed to count grupos: %w", err)
	}
	if count >= maxGrupos {
		return model.NewGroupLimitError(maxGrupos)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO grupos (
			id, usuario_id, nome_grupo, grupo_id_externo, iaoculta, ativo,
			transcricao_ativa, resumo_ativo, tom_ludico, criado_em, atualizado_em
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		grupo.ID, grupo.UsuarioID, grupo.NomeGrupo, grupo.GrupoIDExterno,
		grupo.IAOculta, grupo.Ativo, grupo.TranscricaoAtiva, grupo.ResumoAtivo,
		grupo.TomLudico, grupo.CriadoEm, grupo.AtualizadoEm,
	)
	if isUniqueViolation(err) {
		return model.NewDuplicateGroupError(grupo.NomeGrupo)
	}
	if err != nil {
		return fmt.Errorf("failed to insert grupo: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grupo creation: %w", err)
	}
	return nil
}

// ListByUsuarioID はユーザーのグループ一覧をcriado_em降順で返す。
// 戻り値の2番目は全件数（ページネーション計算用）。
func (r *PostgresGrupoRepo) ListByUsuarioID(ctx context.Context, usuarioID string, page, limit int) ([]*model.Grupo, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM grupos WHERE usuario_id = $1`,
		usuarioID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count grupos: %w", err)
	}

	offset := (page - 1) * limit
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+grupoColumns+` FROM grupos
		 WHERE usuario_id = $1
		 ORDER BY criado_em DESC
		 LIMIT $2 OFFSET $3`,
		usuarioID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list grupos: %w", err)
	}
	defer rows.Close()

	var grupos []*model.Grupo
	for rows.Next() {
		g, err := scanGrupoRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan grupo: %w", err)
		}
		grupos = append(grupos, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate grupos: %w", err)
	}

	return grupos, total, nil
}

// UpdateCampos はグループを部分更新する。nilフィールドは既存値を維持する。
// id、usuario_id、grupo_id_externo、iaoculta、criado_emは更新されない。
func (r *PostgresGrupoRepo) UpdateCampos(ctx context.Context, id string, update model.GrupoUpdate) (*model.Grupo, error) {
	g, err := scanGrupoRow(r.db.QueryRowContext(ctx,
		`UPDATE grupos SET
			nome_grupo = COALESCE($2, nome_grupo),
			ativo = COALESCE($3, ativo),
			transcricao_ativa = COALESCE($4, transcricao_ativa),
			resumo_ativo = COALESCE($5, resumo_ativo),
			tom_ludico = COALESCE($6, tom_ludico),
			atualizado_em = now()
		WHERE id = $1
		RETURNING `+grupoColumns,
		id, update.NomeGrupo, update.Ativo, update.TranscricaoAtiva,
		update.ResumoAtivo, update.TomLudico,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update grupo: %w", err)
	}
	return g, nil
}

// UpdateModo はモードフィールド（iaoculta）のみを更新する。
// トグル、外部ID、作成時刻など他の属性には触れない。
func (r *PostgresGrupoRepo) UpdateModo(ctx context.Context, id string, iaoculta bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE grupos SET iaoculta = $2, atualizado_em = now() WHERE id = $1`,
		id, iaoculta,
	)
	if err != nil {
		return fmt.Errorf("failed to update grupo mode: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewGroupNotFoundError(id)
	}
	return nil
}

// Delete は指定IDのグループを削除する。
func (r *PostgresGrupoRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM grupos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete grupo: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewGroupNotFoundError(id)
	}
	return nil
}

// ListDueForResumo は要約生成対象のグループを取得する。
// オーナーのhorario_resumoを過ぎており、当日分が未生成（ultimo_resumo_emが
// 20時間以上前かNULL）のグループが対象。複数ワーカーの二重処理を避けるため
// FOR UPDATE SKIP LOCKEDで取得する。
func (r *PostgresGrupoRepo) ListDueForResumo(ctx context.Context) ([]*model.Grupo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.usuario_id, g.nome_grupo, g.grupo_id_externo, g.iaoculta, g.ativo,
			g.transcricao_ativa, g.resumo_ativo, g.tom_ludico, g.ultimo_resumo_em,
			g.criado_em, g.atualizado_em
		 FROM grupos g
		 JOIN usuarios u ON u.id = g.usuario_id
		 WHERE g.ativo
		   AND g.resumo_ativo
		   AND u.plano_ativo
		   AND u.horario_resumo <= to_char(now(), 'HH24:MI')
		   AND (g.ultimo_resumo_em IS NULL OR g.ultimo_resumo_em < now() - interval '20 hours')
		 FOR UPDATE OF g SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list grupos due for resumo: %w", err)
	}
	defer rows.Close()

	var grupos []*model.Grupo
	for rows.Next() {
		g, err := scanGrupoRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grupo: %w", err)
		}
		grupos = append(grupos, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate grupos: %w", err)
	}

	return grupos, nil
}

// UpdateUltimoResumo は最終要約時刻を記録する。
func (r *PostgresGrupoRepo) UpdateUltimoResumo(ctx context.Context, id string, em time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE grupos SET ultimo_resumo_em = $2, atualizado_em = now() WHERE id = $1`,
		id, em,
	)
	if err != nil {
		return fmt.Errorf("failed to update ultimo resumo: %w", err)
	}
	return nil
}

// compile-time interface check
var _ GrupoRepository = (*PostgresGrupoRepo)(nil)
