package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/intellizapp/resumefy/internal/model"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pqUniqueViolation = "23505"

// isUniqueViolation はエラーがUNIQUE制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// PostgresUsuarioRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUsuarioRepo struct {
	db *sql.DB
}

// NewPostgresUsuarioRepo はPostgresUsuarioRepoを生成する。
func NewPostgresUsuarioRepo(db *sql.DB) *PostgresUsuarioRepo {
	return &PostgresUsuarioRepo{db: db}
}

// usuarioColumns はSELECT句で使用するカラムリスト。scanUsuarioと順序を揃えること。
const usuarioColumns = `id, nome, email, senha_hash, instancia, plano_ativo, max_grupos,
	limite_tokens, horario_resumo, transcricao_ativa, tom_ludico, agendamento_ativo,
	incluir_dia_anterior, criado_em, atualizado_em`

// scanUsuario は1行をmodel.Usuarioに読み取る。
func scanUsuario(row *sql.Row) (*model.Usuario, error) {
	u := &model.Usuario{}
	err := row.Scan(
		&u.ID, &u.Nome, &u.Email, &u.SenhaHash, &u.Instancia, &u.PlanoAtivo,
		&u.MaxGrupos, &u.LimiteTokens, &u.HorarioResumo, &u.TranscricaoAtiva,
		&u.TomLudico, &u.AgendamentoAtivo, &u.IncluirDiaAnterior,
		&u.CriadoEm, &u.AtualizadoEm,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUsuarioRepo) FindByID(ctx context.Context, id string) (*model.Usuario, error) {
	u, err := scanUsuario(r.db.QueryRowContext(ctx,
		`SELECT `+usuarioColumns+` FROM usuarios WHERE id = $1`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find usuario by ID: %w", err)
	}
	return u, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUsuarioRepo) FindByEmail(ctx context.Context, email string) (*model.Usuario, error) {
	u, err := scanUsuario(r.db.QueryRowContext(ctx,
		`SELECT `+usuarioColumns+` FROM usuarios WHERE email = $1`, email,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find usuario by email: %w", err)
	}
	return u, nil
}

// Create はユーザーを作成する。email重複時はDUPLICATE_EMAILエラーを返す。
func (r *PostgresUsuarioRepo) Create(ctx context.Context, usuario *model.Usuario) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO usuarios (
			id, nome, email, senha_hash, instancia, plano_ativo, max_grupos,
			limite_tokens, horario_resumo, transcricao_ativa, tom_ludico,
			agendamento_ativo, incluir_dia_anterior, criado_em, atualizado_em
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		usuario.ID, usuario.Nome, usuario.Email, usuario.SenhaHash, usuario.Instancia,
		usuario.PlanoAtivo, usuario.MaxGrupos, usuario.LimiteTokens, usuario.HorarioResumo,
		usuario.TranscricaoAtiva, usuario.TomLudico, usuario.AgendamentoAtivo,
		usuario.IncluirDiaAnterior, usuario.CriadoEm, usuario.AtualizadoEm,
	)
	if isUniqueViolation(err) {
		return model.NewDuplicateEmailError()
	}
	if err != nil {
		return fmt.Errorf("failed to insert usuario: %w", err)
	}
	return nil
}

// UpdatePerfil はプロフィールを部分更新する。nilフィールドは既存値を維持する。
// id、email、criado_emは更新されない。
func (r *PostgresUsuarioRepo) UpdatePerfil(ctx context.Context, id string, update model.PerfilUpdate) (*model.Usuario, error) {
	u, err := scanUsuario(r.db.QueryRowContext(ctx,
		`UPDATE usuarios SET
			nome = COALESCE($2, nome),
			instancia = COALESCE($3, instancia),
			horario_resumo = COALESCE($4, horario_resumo),
			transcricao_ativa = COALESCE($5, transcricao_ativa),
			tom_ludico = COALESCE($6, tom_ludico),
			agendamento_ativo = COALESCE($7, agendamento_ativo),
			incluir_dia_anterior = COALESCE($8, incluir_dia_anterior),
			atualizado_em = now()
		WHERE id = $1
		RETURNING `+usuarioColumns,
		id, update.Nome, update.Instancia, update.HorarioResumo,
		update.TranscricaoAtiva, update.TomLudico, update.AgendamentoAtivo,
		update.IncluirDiaAnterior,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update perfil: %w", err)
	}
	return u, nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するsessions、grupos、intellichat_*はCASCADE削除される。
func (r *PostgresUsuarioRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM usuarios WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete usuario: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewUserNotFoundError()
	}
	return nil
}

// compile-time interface check
var _ UsuarioRepository = (*PostgresUsuarioRepo)(nil)
