package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/todoman/internal/model"
)

// PostgresSessionStore はPostgreSQLを使用したセッションストア。
type PostgresSessionStore struct {
	db *sql.DB
}

// NewPostgresSessionStore はPostgresSessionStoreを生成する。
func NewPostgresSessionStore(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

// Create はセッションを作成する。
func (s *PostgresSessionStore) Create(ctx context.Context, session *model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at) VALUES ($1, $2, $3)`,
		session.ID, session.UserID, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// FindByID は指定IDの有効なセッションを取得する。
// 期限切れのセッションは存在しないものとして扱う。
func (s *PostgresSessionStore) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session by ID: %w", err)
	}
	return session, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (s *PostgresSessionStore) DeleteByID(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (s *PostgresSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ SessionStore = (*PostgresSessionStore)(nil)
