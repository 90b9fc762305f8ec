package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/todoman/internal/model"
)

// PostgresTodoStore はPostgreSQLを使用したtodoストア。
type PostgresTodoStore struct {
	db *sql.DB
}

// NewPostgresTodoStore はPostgresTodoStoreを生成する。
func NewPostgresTodoStore(db *sql.DB) *PostgresTodoStore {
	return &PostgresTodoStore{db: db}
}

const todoColumns = `id, title, description, completed, user_id, created_at, updated_at`

// ListByOwner は指定ユーザーが所有するtodoをcreated_at降順で返す。
func (s *PostgresTodoStore) ListByOwner(ctx context.Context, ownerID string) ([]model.Todo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE user_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos by owner: %w", err)
	}
	defer rows.Close()

	return scanTodos(rows)
}

// ListAll は全todoをcreated_at降順で返す。
func (s *PostgresTodoStore) ListAll(ctx context.Context) ([]model.Todo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+todoColumns+` FROM todos ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list all todos: %w", err)
	}
	defer rows.Close()

	return scanTodos(rows)
}

// ListVisibleToManager はマネージャーの可視範囲をcreated_at降順で返す。
// 所有者のロールはprofilesテーブルにあるため、単一のJOINクエリで
// 「自分の所有分 ∪ userロールの所有分」を取得する。profiles.idは主キーのため
// JOINでtodoが重複することはない。
func (s *PostgresTodoStore) ListVisibleToManager(ctx context.Context, managerID string) ([]model.Todo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.title, t.description, t.completed, t.user_id, t.created_at, t.updated_at
		 FROM todos t
		 JOIN profiles p ON p.id = t.user_id
		 WHERE t.user_id = $1 OR p.role = 'user'
		 ORDER BY t.created_at DESC`,
		managerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos visible to manager: %w", err)
	}
	defer rows.Close()

	return scanTodos(rows)
}

// Insert はtodoを作成し、ストアが確定した正準行を返す。
func (s *PostgresTodoStore) Insert(ctx context.Context, todo *model.Todo) (*model.Todo, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO todos (id, title, description, completed, user_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+todoColumns,
		todo.ID, todo.Title, todo.Description, todo.Completed, todo.UserID,
	)

	created := &model.Todo{}
	if err := scanTodo(row, created); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to insert todo: %w", err)
	}
	return created, nil
}

// Update は指定IDのtodoを部分更新し、正準行を返す。
// nilでないフィールドのみSET句に含める。user_idは更新対象に含めない。
func (s *PostgresTodoStore) Update(ctx context.Context, id string, fields model.TodoFields) (*model.Todo, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	if fields.Title != nil {
		args = append(args, *fields.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if fields.Description != nil {
		args = append(args, *fields.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if fields.Completed != nil {
		args = append(args, *fields.Completed)
		sets = append(sets, fmt.Sprintf("completed = $%d", len(args)))
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE todos SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+todoColumns,
		args...,
	)

	updated := &model.Todo{}
	if err := scanTodo(row, updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}
	return updated, nil
}

// Delete は指定IDのtodoを削除する。
func (s *PostgresTodoStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM todos WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
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

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner, t *model.Todo) error {
	return row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Completed,
		&t.UserID, &t.CreatedAt, &t.UpdatedAt,
	)
}

func scanTodos(rows *sql.Rows) ([]model.Todo, error) {
	todos := []model.Todo{}
	for rows.Next() {
		var t model.Todo
		if err := scanTodo(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan todo row: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todo rows: %w", err)
	}
	return todos, nil
}

// compile-time interface check
var _ TodoStore = (*PostgresTodoStore)(nil)
