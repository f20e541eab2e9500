package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/intellizapp/resumefy/internal/model"
)

// PostgresChatRepo はPostgreSQLを使用したIntellichatリポジトリ。
type PostgresChatRepo struct {
	db *sql.DB
}

// NewPostgresChatRepo はPostgresChatRepoを生成する。
func NewPostgresChatRepo(db *sql.DB) *PostgresChatRepo {
	return &PostgresChatRepo{db: db}
}

// CreateSession はチャットセッションを作成する。
// 「アクティブなセッションは常に1つ」を保証するため、既存セッションの
// 非アクティブ化と挿入を同一トランザクションで行う。
func (r *PostgresChatRepo) CreateSession(ctx context.Context, sessao *model.ChatSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 既存のアクティブセッションを全て非アクティブ化
	_, err = tx.ExecContext(ctx,
		`UPDATE intellichat_sessions SET ativa = FALSE WHERE usuario_id = $1 AND ativa`,
		sessao.UsuarioID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate sessions: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO intellichat_sessions (id, usuario_id, titulo, ativa, criado_em)
		 VALUES ($1, $2, $3, TRUE, $4)`,
		sessao.ID, sessao.UsuarioID, sessao.Titulo, sessao.CriadoEm,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindSessionByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresChatRepo) FindSessionByID(ctx context.Context, id string) (*model.ChatSession, error) {
	s := &model.ChatSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, usuario_id, titulo, ativa, criado_em
		 FROM intellichat_sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.UsuarioID, &s.Titulo, &s.Ativa, &s.CriadoEm)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find chat session: %w", err)
	}
	return s, nil
}

// FindActiveSession はユーザーのアクティブなセッションを取得する。
// 存在しない場合はnilを返す。
func (r *PostgresChatRepo) FindActiveSession(ctx context.Context, usuarioID string) (*model.ChatSession, error) {
	s := &model.ChatSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, usuario_id, titulo, ativa, criado_em
		 FROM intellichat_sessions
		 WHERE usuario_id = $1 AND ativa
		 ORDER BY criado_em DESC
		 LIMIT 1`,
		usuarioID,
	).Scan(&s.ID, &s.UsuarioID, &s.Titulo, &s.Ativa, &s.CriadoEm)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active chat session: %w", err)
	}
	return s, nil
}

// ListSessionsByUsuario はユーザーのセッション一覧をcriado_em降順で返す。
func (r *PostgresChatRepo) ListSessionsByUsuario(ctx context.Context, usuarioID string) ([]*model.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, usuario_id, titulo, ativa, criado_em
		 FROM intellichat_sessions
		 WHERE usuario_id = $1
		 ORDER BY criado_em DESC`,
		usuarioID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.ChatSession
	for rows.Next() {
		s := &model.ChatSession{}
		if err := rows.Scan(&s.ID, &s.UsuarioID, &s.Titulo, &s.Ativa, &s.CriadoEm); err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat sessions: %w", err)
	}

	return sessions, nil
}

// CreateMessage はメッセージを作成する。
func (r *PostgresChatRepo) CreateMessage(ctx context.Context, msg *model.ChatMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO intellichat_mensagens (id, sessao_id, role, conteudo, criado_em)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.SessaoID, string(msg.Role), msg.Conteudo, msg.CriadoEm,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// ListMessagesBySession はセッションのメッセージ一覧をcriado_em昇順で返す。
func (r *PostgresChatRepo) ListMessagesBySession(ctx context.Context, sessaoID string) ([]*model.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sessao_id, role, conteudo, criado_em
		 FROM intellichat_mensagens
		 WHERE sessao_id = $1
		 ORDER BY criado_em ASC`,
		sessaoID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.ChatMessage
	for rows.Next() {
		m := &model.ChatMessage{}
		var role string
		if err := rows.Scan(&m.ID, &m.SessaoID, &role, &m.Conteudo, &m.CriadoEm); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		m.Role = model.MessageRole(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}

	return msgs, nil
}

// compile-time interface check
var _ ChatRepository = (*PostgresChatRepo)(nil)
