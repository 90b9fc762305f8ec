package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/todoman/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反エラーコード。
const pgUniqueViolation = "23505"

// isUniqueViolation はエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}

// PostgresIdentityStore はPostgreSQLを使用した認証アカウントストア。
type PostgresIdentityStore struct {
	db *sql.DB
}

// NewPostgresIdentityStore はPostgresIdentityStoreを生成する。
func NewPostgresIdentityStore(db *sql.DB) *PostgresIdentityStore {
	return &PostgresIdentityStore{db: db}
}

// FindByEmail はメールアドレスでアカウントを検索する。
func (s *PostgresIdentityStore) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	identity := &model.Identity{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM identities WHERE email = $1`,
		email,
	).Scan(&identity.ID, &identity.Email, &identity.PasswordHash, &identity.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by email: %w", err)
	}
	return identity, nil
}

// FindByID は指定IDのアカウントを取得する。
func (s *PostgresIdentityStore) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	identity := &model.Identity{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM identities WHERE id = $1`,
		id,
	).Scan(&identity.ID, &identity.Email, &identity.PasswordHash, &identity.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by id: %w", err)
	}
	return identity, nil
}

// Create はアカウントを作成する。
func (s *PostgresIdentityStore) Create(ctx context.Context, identity *model.Identity) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (id, email, password_hash) VALUES ($1, $2, $3)`,
		identity.ID, identity.Email, identity.PasswordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// compile-time interface check
var _ IdentityStore = (*PostgresIdentityStore)(nil)
