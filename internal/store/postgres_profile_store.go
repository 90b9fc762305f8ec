package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/todoman/internal/model"
)

// PostgresProfileStore はPostgreSQLを使用したプロフィールストア。
type PostgresProfileStore struct {
	db *sql.DB
}

// NewPostgresProfileStore はPostgresProfileStoreを生成する。
func NewPostgresProfileStore(db *sql.DB) *PostgresProfileStore {
	return &PostgresProfileStore{db: db}
}

const profileColumns = `id, email, first_name, last_name, role, avatar_url, bio, created_at, updated_at`

// FindByID は指定IDのプロフィールを取得する。
func (s *PostgresProfileStore) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		id,
	)

	p := &model.Profile{}
	if err := scanProfile(row, p); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return p, nil
}

// Insert はプロフィールを作成し正準行を返す。
// 同一IDの行が既に存在する場合はErrConflictを返す（同時初期化の競合検出用）。
func (s *PostgresProfileStore) Insert(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO profiles (id, email, first_name, last_name, role, avatar_url, bio)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+profileColumns,
		profile.ID, profile.Email, profile.FirstName, profile.LastName,
		profile.Role, profile.AvatarURL, profile.Bio,
	)

	created := &model.Profile{}
	if err := scanProfile(row, created); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}
	return created, nil
}

// Update は指定IDのプロフィールを部分更新し正準行を返す。
func (s *PostgresProfileStore) Update(ctx context.Context, id string, fields ProfileFields) (*model.Profile, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	if fields.Email != nil {
		args = append(args, *fields.Email)
		sets = append(sets, fmt.Sprintf("email = $%d", len(args)))
	}
	if fields.FirstName != nil {
		args = append(args, *fields.FirstName)
		sets = append(sets, fmt.Sprintf("first_name = $%d", len(args)))
	}
	if fields.LastName != nil {
		args = append(args, *fields.LastName)
		sets = append(sets, fmt.Sprintf("last_name = $%d", len(args)))
	}
	if fields.Role != nil {
		args = append(args, string(*fields.Role))
		sets = append(sets, fmt.Sprintf("role = $%d", len(args)))
	}
	if fields.AvatarURL != nil {
		args = append(args, *fields.AvatarURL)
		sets = append(sets, fmt.Sprintf("avatar_url = $%d", len(args)))
	}
	if fields.Bio != nil {
		args = append(args, *fields.Bio)
		sets = append(sets, fmt.Sprintf("bio = $%d", len(args)))
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE profiles SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+profileColumns,
		args...,
	)

	updated := &model.Profile{}
	if err := scanProfile(row, updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return updated, nil
}

// Delete は指定IDのプロフィールを削除する。
func (s *PostgresProfileStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM profiles WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}

// ListAll は全プロフィールをemail昇順で返す。
func (s *PostgresProfileStore) ListAll(ctx context.Context) ([]model.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY email ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list all profiles: %w", err)
	}
	defer rows.Close()

	return scanProfiles(rows)
}

// ListByRole は指定ロールのプロフィールをemail昇順で返す。
func (s *PostgresProfileStore) ListByRole(ctx context.Context, role model.Role) ([]model.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE role = $1 ORDER BY email ASC`,
		string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles by role: %w", err)
	}
	defer rows.Close()

	return scanProfiles(rows)
}

func scanProfile(row rowScanner, p *model.Profile) error {
	return row.Scan(
		&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Role,
		&p.AvatarURL, &p.Bio, &p.CreatedAt, &p.UpdatedAt,
	)
}

func scanProfiles(rows *sql.Rows) ([]model.Profile, error) {
	profiles := []model.Profile{}
	for rows.Next() {
		var p model.Profile
		if err := scanProfile(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile rows: %w", err)
	}
	return profiles, nil
}

// compile-time interface check
var _ ProfileStore = (*PostgresProfileStore)(nil)
